// Package camera grabs single frames from an MJPEG network camera.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultDeadline bounds one snapshot, connect included.
	DefaultDeadline = 8 * time.Second
	// MaxBuffer caps how much of the stream is read looking for a frame.
	MaxBuffer = 4 << 20

	connectTimeout = 3 * time.Second
	chunkSize      = 1024
)

var (
	ErrUpstreamConnect = errors.New("camera unreachable")
	ErrNoJPEG          = errors.New("no jpeg found in camera stream")
	ErrNotConfigured   = errors.New("camera url not configured")
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// Client reads snapshots from the camera stream at url.
type Client struct {
	url        string
	deadline   time.Duration
	maxBuffer  int
	httpClient *http.Client
}

// NewClient returns a client for the stream at url.
func NewClient(url string) *Client {
	return &Client{
		url:       url,
		deadline:  DefaultDeadline,
		maxBuffer: MaxBuffer,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: connectTimeout,
			},
		},
	}
}

// Snapshot returns the first complete JPEG (SOI through EOI) in the stream.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamConnect, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamConnect, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamConnect, resp.StatusCode)
	}

	return extractFrame(resp.Body, c.maxBuffer)
}

// extractFrame scans r for the first SOI..EOI span, reading at most max
// bytes.
func extractFrame(r io.Reader, max int) ([]byte, error) {
	var (
		buf   []byte
		start = -1
		chunk = make([]byte, chunkSize)
	)
	for len(buf) < max {
		n, err := r.Read(chunk)
		if n > 0 {
			// rescan one byte back so a marker split across chunks is found
			from := len(buf) - 1
			if from < 0 {
				from = 0
			}
			buf = append(buf, chunk[:n]...)

			if start < 0 {
				if i := bytes.Index(buf[from:], soi); i >= 0 {
					start = from + i
					from = start + len(soi)
				}
			}
			if start >= 0 {
				if from < start+len(soi) {
					from = start + len(soi)
				}
				if i := bytes.Index(buf[from:], eoi); i >= 0 {
					end := from + i + len(eoi)
					return append([]byte(nil), buf[start:end]...), nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrNoJPEG, err)
		}
	}
	return nil, ErrNoJPEG
}
