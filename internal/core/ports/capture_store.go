package ports

import (
	"context"
	"io"
)

// CaptureStore keeps request frames and enrollment images. The returned
// reference is what gets recorded as evidence in the audit log.
type CaptureStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}
