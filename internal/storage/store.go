package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrObjectExists is returned when uploading over an existing object.
var ErrObjectExists = errors.New("object already exists")

// ErrObjectNotFound is returned when reading an object that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidPath is returned for object paths that are empty, absolute or escape the bucket.
var ErrInvalidPath = errors.New("invalid object path")

// Object describes a stored file.
type Object struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FileStore keeps objects on the local filesystem under root/<bucket>/<path>.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store over it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// CleanPath validates an object path and returns it in canonical form.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned != p || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

func (s *FileStore) resolve(bucket, p string) (string, error) {
	if _, err := CleanPath(bucket); err != nil || strings.Contains(bucket, "/") {
		return "", ErrInvalidPath
	}
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(cleaned)), nil
}

// Put writes a new object. Existing objects are never overwritten.
func (s *FileStore) Put(bucket, p string, r io.Reader) (int64, error) {
	full, err := s.resolve(bucket, p)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("creating object folder: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrObjectExists
		}
		return 0, fmt.Errorf("creating object: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return 0, fmt.Errorf("writing object: %w", err)
	}

	return n, nil
}

// List returns the objects directly inside folder prefix, newest first.
// An empty or missing folder yields an empty list.
func (s *FileStore) List(bucket, prefix string) ([]Object, error) {
	dir := filepath.Join(s.root, bucket)
	if _, err := CleanPath(bucket); err != nil || strings.Contains(bucket, "/") {
		return nil, ErrInvalidPath
	}
	if prefix != "" {
		cleaned, err := CleanPath(strings.TrimSuffix(prefix, "/"))
		if err != nil {
			return nil, err
		}
		prefix = cleaned
		dir = filepath.Join(dir, filepath.FromSlash(cleaned))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Object{}, nil
		}
		return nil, fmt.Errorf("listing objects: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("reading object info: %w", err)
		}
		objects = append(objects, newObject(path.Join(prefix, e.Name()), info))
	}

	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].CreatedAt.Equal(objects[j].CreatedAt) {
			return objects[i].CreatedAt.After(objects[j].CreatedAt)
		}
		return objects[i].Name > objects[j].Name
	})

	return objects, nil
}

// Delete removes the given objects. Missing objects are skipped.
func (s *FileStore) Delete(bucket string, paths []string) error {
	for _, p := range paths {
		full, err := s.resolve(bucket, p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting object %s: %w", p, err)
		}
	}
	return nil
}

// Open returns a reader for an object along with its metadata.
func (s *FileStore) Open(bucket, p string) (*os.File, Object, error) {
	full, err := s.resolve(bucket, p)
	if err != nil {
		return nil, Object{}, err
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, ErrObjectNotFound
		}
		return nil, Object{}, fmt.Errorf("opening object: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("reading object info: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, Object{}, ErrObjectNotFound
	}

	cleaned, _ := CleanPath(p)
	return f, newObject(cleaned, info), nil
}

func newObject(p string, info fs.FileInfo) Object {
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Object{
		Name:        path.Base(p),
		Path:        p,
		Size:        info.Size(),
		ContentType: contentType,
		CreatedAt:   info.ModTime().UTC(),
	}
}
