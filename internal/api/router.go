package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/access-control/docs"
	"github.com/99minutos/access-control/internal/api/handler"
	"github.com/99minutos/access-control/internal/api/middleware"
	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/metrics"
)

const defaultMaxPayload = "10M"

// Deps carries everything the router wires into handlers.
type Deps struct {
	APIKey     string
	JWTSecret  string
	MaxPayload string

	Recognition ports.RecognitionService
	Credentials ports.CredentialService
	Audit       ports.AuditRecorder
	Auth        ports.AdminAuthService
	Enrollment  ports.EnrollmentService
	Dashboard   ports.DashboardService
	Tracker     ports.TokenTracker
	Captures    ports.CaptureStore
	Camera      handler.Snapshotter

	// Readiness lists the dependencies probed by /health/ready.
	Readiness map[string]handler.Pinger

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))

	maxPayload := d.MaxPayload
	if maxPayload == "" {
		maxPayload = defaultMaxPayload
	}

	// --- Handlers ---
	device := handler.NewDeviceHandler(d.Recognition, d.Credentials, d.Audit, d.Log)
	auth := handler.NewAuthHandler(d.Auth)
	admin := handler.NewAdminHandler(d.Enrollment, d.Dashboard, d.Tracker)
	media := handler.NewMediaHandler(d.Captures, d.Camera, d.Log)

	// --- Device routes (shared secret) ---
	dev := e.Group("/api")
	dev.GET("/health", device.Health, middleware.APIKey(d.APIKey, device.RejectHealth))
	dev.POST("/recognize", device.Recognize,
		middleware.APIKey(d.APIKey, device.RejectRecognize),
		device.PayloadLimit(maxPayload, metrics.ChannelFace),
	)
	dev.POST("/rfid", device.RFID,
		middleware.APIKey(d.APIKey, device.RejectRFID),
		device.PayloadLimit(maxPayload, metrics.ChannelCredential),
	)

	// --- Admin routes (bearer token, admin role) ---
	e.POST("/admin/login", auth.Login)

	adm := e.Group("/admin",
		middleware.Auth(d.JWTSecret),
		middleware.RBAC(domain.RoleAdmin),
		echomiddleware.BodyLimit(maxPayload),
	)
	adm.GET("/stats", admin.Stats)
	adm.GET("/logs", admin.Logs)
	adm.GET("/users", admin.ListUsers)
	adm.POST("/users", admin.CreateUser)
	adm.DELETE("/users/:id", admin.DeleteUser)
	adm.GET("/credentials", admin.ListCredentials)
	adm.POST("/credentials", admin.BindCredential)
	adm.DELETE("/credentials/:id", admin.DeleteCredential)
	adm.GET("/rfid/last", admin.LastToken)
	adm.POST("/rfid/clear", admin.ClearToken)
	adm.GET("/captures/*", media.Capture)
	adm.GET("/camera/snapshot", media.CameraSnapshot)

	// --- Health probes, metrics and docs (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)            // liveness
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: store, tracker, encoder
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
