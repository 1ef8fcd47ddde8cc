package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/99minutos/access-control/internal/core/ports"
)

// FSStore keeps captures under a local directory.
type FSStore struct {
	root string
}

var _ ports.CaptureStore = (*FSStore)(nil)

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Save writes data to a temp file and renames it into place, so a reader
// never sees a partial image.
func (s *FSStore) Save(_ context.Context, key string, data []byte) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("save capture: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".capture-*")
	if err != nil {
		return "", fmt.Errorf("save capture: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save capture: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save capture: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save capture: %w", err)
	}
	return key, nil
}

func (s *FSStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	key, err := CleanKey(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return f, nil
}
