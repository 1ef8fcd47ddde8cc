// Package encoder talks to the face embedding sidecar. The sidecar owns
// detection and the 128-d face model; this service only matches vectors.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

// DefaultTimeout bounds one encode request.
const DefaultTimeout = 10 * time.Second

// Client implements ports.FaceEncoder over HTTP. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ ports.FaceEncoder = (*Client)(nil)

// NewClient returns a client for the sidecar at baseURL. A non-positive
// timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// encodeResponse is the body of a successful /encode call: one vector per
// detected face.
type encodeResponse struct {
	Encodings [][]float64 `json:"encodings"`
}

// Extract posts the raw image to /encode. The sidecar answers 422 when it
// cannot decode the image and an empty list when it finds no face.
func (c *Client) Extract(ctx context.Context, image []byte) (ports.Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/encode", bytes.NewReader(image))
	if err != nil {
		return ports.Extraction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Extraction{}, fmt.Errorf("encode request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ports.Extraction{Status: ports.ExtractionDecodeFailed}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ports.Extraction{}, fmt.Errorf("encoder returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.Extraction{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Encodings) == 0 {
		return ports.Extraction{Status: ports.ExtractionNoFace}, nil
	}

	vectors := make([]domain.Vector, 0, len(out.Encodings))
	for i, enc := range out.Encodings {
		if len(enc) != domain.EmbeddingDimension {
			return ports.Extraction{}, fmt.Errorf("face %d: %w: got %d values", i, domain.ErrDimensionMismatch, len(enc))
		}
		vectors = append(vectors, domain.Vector(enc))
	}
	return ports.Extraction{Status: ports.ExtractionOK, Vectors: vectors}, nil
}

// Ping checks that the sidecar answers on /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("encoder health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("encoder unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
