package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stalefree/httpcache"
)

// FileManager owns the payload spill tree under a root directory. Files are
// sharded two levels deep by the key digest: root/AB/CD/<hex-digest>.
// Files are written once through a temp file + rename and read-only after.
type FileManager struct {
	root string
}

// NewFileManager creates the root directory if needed.
func NewFileManager(root string) (*FileManager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	return &FileManager{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FileManager) Root() string { return f.root }

// Path returns the payload file location for key.
func (f *FileManager) Path(key httpcache.Key) string {
	digest := key.Digest()
	return filepath.Join(f.root, digest[:2], digest[2:4], digest)
}

// Create writes the stream to the payload file for key, atomically.
func (f *FileManager) Create(key httpcache.Key, stream io.Reader) (string, error) {
	path := f.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating payload directory")
	}
	temp := filepath.Join(dir, "."+uuid.NewString())
	file, err := os.Create(temp)
	if err != nil {
		return "", errors.Wrap(err, "creating payload file")
	}
	_, err = io.Copy(file, stream)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(temp)
		return "", errors.Wrap(err, "writing payload file")
	}
	if err := os.Rename(temp, path); err != nil {
		os.Remove(temp)
		return "", errors.Wrap(err, "publishing payload file")
	}
	return path, nil
}

// Remove deletes the payload file for key, if present.
func (f *FileManager) Remove(key httpcache.Key) error {
	if err := os.Remove(f.Path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing payload file")
	}
	return nil
}

// Clear deletes every shard directory under the root. Other files at the
// root (such as the metadata snapshot) are left alone.
func (f *FileManager) Clear() error {
	dirs, err := os.ReadDir(f.root)
	if err != nil {
		return errors.Wrap(err, "listing storage root")
	}
	for _, dir := range dirs {
		if dir.IsDir() && len(dir.Name()) == 2 {
			if err := os.RemoveAll(filepath.Join(f.root, dir.Name())); err != nil {
				return errors.Wrap(err, "removing payload shard")
			}
		}
	}
	return nil
}
