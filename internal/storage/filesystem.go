package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"promoreel/internal/domain"
)

// FileStore persists artifacts onto the local filesystem and maps keys to
// public URLs served by a static file host. It is intended for development
// and single-node deployments where an object storage service is not
// available.
type FileStore struct {
	basePath string
	baseURL  string
	maxBytes int64

	mu   sync.Mutex
	used int64
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL prefixes
// public URLs; maxBytes of zero disables the capacity limit. Existing usage
// under basePath counts against the limit.
func NewFileStore(basePath, baseURL string, maxBytes int64) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	used, err := usageBytes(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: measure usage: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		maxBytes: maxBytes,
		used:     used,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// EnsureCapacity reports whether size additional bytes fit under the limit.
func (s *FileStore) EnsureCapacity(ctx context.Context, size int64) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCapacityLocked(size)
}

func (s *FileStore) ensureCapacityLocked(size int64) error {
	if s.maxBytes <= 0 {
		return nil
	}
	if s.used+size > s.maxBytes {
		return fmt.Errorf("storage: %w: need %d bytes, %d of %d used",
			domain.ErrCapacityExceeded, size, s.used, s.maxBytes)
	}
	return nil
}

// Save persists the bytes under destination/filename and returns the stored
// object with its public URL. Keys are cleaned to prevent directory
// traversal.
func (s *FileStore) Save(ctx context.Context, data []byte, filename, mimeType, destination string) (StoredObject, error) {
	if s == nil {
		return StoredObject{}, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return StoredObject{}, err
	}
	key, err := sanitizeKey(strings.TrimLeft(destination+"/"+filename, "/"))
	if err != nil {
		return StoredObject{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCapacityLocked(int64(len(data))); err != nil {
		return StoredObject{}, err
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("storage: write file: %w", err)
	}
	s.used += int64(len(data))

	obj := StoredObject{
		ID:    uuid.NewString(),
		Key:   key,
		Bytes: int64(len(data)),
	}
	if s.baseURL != "" {
		obj.PublicURL = s.baseURL + "/" + key
	}
	return obj, nil
}

// Read returns the bytes stored under key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: %w: %s", domain.ErrNotFound, cleanKey)
		}
		return nil, fmt.Errorf("storage: read file: %w", err)
	}
	return data, nil
}

func usageBytes(basePath string) (int64, error) {
	var total int64
	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
