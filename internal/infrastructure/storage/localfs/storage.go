package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage is the scratch area for downloaded source documents. Every file it
// creates is owned by a single pipeline run.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "health-ai")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save writes data to a fresh uniquely named file and returns its path. A partial
// file is removed when the copy fails.
func (s *Storage) Save(ctx context.Context, ext string, data io.Reader) (string, int64, error) {
	path := filepath.Join(s.basePath, uuid.NewString()+sanitizeExt(ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	size, copyErr := io.Copy(f, contextReader{ctx: ctx, r: data})
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write scratch file: %w", copyErr)
	}
	return path, size, nil
}

func (s *Storage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if err := s.owns(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scratch file: %w", err)
	}
	return f, nil
}

func (s *Storage) ReadFile(path string) ([]byte, error) {
	if err := s.owns(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes a scratch file. The returned error wraps fs.ErrNotExist when the
// file is already gone.
func (s *Storage) Remove(path string) error {
	if err := s.owns(path); err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *Storage) owns(path string) error {
	rel, err := filepath.Rel(s.basePath, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q is outside scratch dir", path)
	}
	return nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			return r
		default:
			return -1
		}
	}, ext)
	if len(clean) > 8 {
		return ""
	}
	return clean
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
