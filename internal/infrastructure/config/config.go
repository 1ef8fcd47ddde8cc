package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	// FaceAPIKey is the shared secret devices send in X-API-Key.
	FaceAPIKey string `env:"FACE_API_KEY, required"`
	MaxPayload string `env:"MAX_PAYLOAD,  default=10M"`

	Admin       AdminConfig
	Recognition RecognitionConfig
	Store       StoreConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Capture     CaptureConfig
	S3          S3Config
	Encoder     EncoderConfig

	CameraURL string `env:"CAMERA_URL"`
}

type AdminConfig struct {
	User      string        `env:"ADMIN_USER,      default=admin"`
	Password  string        `env:"ADMIN_PASS,      required"`
	JWTSecret string        `env:"JWT_SECRET,      required"`
	TokenTTL  time.Duration `env:"ADMIN_TOKEN_TTL, default=12h"`
}

type RecognitionConfig struct {
	Tolerance       float64       `env:"FR_TOLERANCE,           default=0.45"`
	RefreshInterval time.Duration `env:"CACHE_REFRESH_INTERVAL, default=300s"`
	FreshWindow     time.Duration `env:"RFID_FRESH_WINDOW,      default=20s"`
	AuditTimeout    time.Duration `env:"AUDIT_TIMEOUT,          default=3s"`
}

type StoreConfig struct {
	Driver     string `env:"STORE_DRIVER, default=sqlite"`
	SQLitePath string `env:"SQLITE_PATH,  default=access.sqlite"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=access_control"`
}

type RedisConfig struct {
	// Backend selects where the last seen token lives: memory or redis.
	Backend string `env:"TRACKER_BACKEND, default=memory"`
	Addr    string `env:"REDIS_ADDR,      default=localhost:6379"`
	DB      int    `env:"REDIS_DB,        default=0"`
}

type CaptureConfig struct {
	Backend string `env:"CAPTURE_BACKEND, default=fs"`
	Save    bool   `env:"SAVE_CAPTURES,   default=true"`
	Dir     string `env:"CAPTURE_DIR,     default=captures"`
}

type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION,     default=us-east-1"`
	Bucket    string `env:"S3_BUCKET"`
	Prefix    string `env:"S3_PREFIX"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
}

type EncoderConfig struct {
	URL     string        `env:"ENCODER_URL,     default=http://localhost:8001"`
	Timeout time.Duration `env:"ENCODER_TIMEOUT, default=10s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings envconfig cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("config: STORE_DRIVER must be sqlite or mongo, got %q", c.Store.Driver)
	}
	switch c.Redis.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: TRACKER_BACKEND must be memory or redis, got %q", c.Redis.Backend)
	}
	switch c.Capture.Backend {
	case "fs":
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: S3_BUCKET is required when CAPTURE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("config: CAPTURE_BACKEND must be fs or s3, got %q", c.Capture.Backend)
	}
	if c.Recognition.Tolerance <= 0 {
		return fmt.Errorf("config: FR_TOLERANCE must be positive, got %v", c.Recognition.Tolerance)
	}
	if c.Recognition.RefreshInterval < time.Second {
		return fmt.Errorf("config: CACHE_REFRESH_INTERVAL must be at least 1s, got %v", c.Recognition.RefreshInterval)
	}
	return nil
}
