package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viaifoundation/ttsgate/internal/filex"
)

// LocalStore writes objects below a directory that the HTTP router serves
// at <baseURL>output/.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStore{dir: abs, baseURL: baseURL}, nil
}

// Dir is the absolute root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	if err := filex.WriteFileAtomic(filepath.Join(s.dir, clean), data, 0o640); err != nil {
		return "", err
	}
	return s.baseURL + "output/" + filepath.ToSlash(clean), nil
}
