// Package bytecodestore persists encoded module records for the module cache.
package bytecodestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reglet-dev/scripthost/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.BytecodeStore = (*FileStore)(nil)

// DefaultExt is appended to module names to form cache file names.
const DefaultExt = ".bin"

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	dir      string      // Cache root
	ext      string      // File extension of cache entries
	dirPerm  os.FileMode // Permission for created directories
	filePerm os.FileMode // Permission for cache files
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		dir:      "cache",
		ext:      DefaultExt,
		dirPerm:  0o755,
		filePerm: 0o644,
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithDir sets the cache root directory.
func WithDir(dir string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dir = dir
	}
}

// WithExt sets the cache file extension.
func WithExt(ext string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.ext = ext
	}
}

// WithFilePermissions sets the permissions of written cache files.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the permissions of created directories.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore keeps one file per module under a directory. The file's
// modification time is the entry's timestamp.
type FileStore struct {
	config fileStoreConfig
}

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Path returns the cache file of a module.
func (s *FileStore) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid module name %q", name)
	}
	return filepath.Join(s.config.dir, clean+s.config.ext), nil
}

// Load returns the cached bytes and the file's modification time.
func (s *FileStore) Load(name string) ([]byte, time.Time, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to stat cache entry: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, info.ModTime(), nil
}

// Save writes the entry through a temporary file so readers never observe
// a partial write.
func (s *FileStore) Save(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Chmod(s.config.filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install cache file: %w", err)
	}
	return nil
}

// Delete removes a module's entry. Deleting a missing entry is not an error.
func (s *FileStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Close implements ports.BytecodeStore.
func (s *FileStore) Close() error { return nil }

// Dir returns the cache root.
func (s *FileStore) Dir() string {
	return s.config.dir
}
