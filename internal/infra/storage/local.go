package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bryanwahyu/biosight/internal/domain/analysis"
)

// LocalStore writes specimens into a single directory.
type LocalStore struct {
	dir string
}

func NewLocal(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(_ context.Context, name, _ string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("storage: invalid file name %q", name)
	}
	// O_EXCL: never overwrite an existing specimen
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	return f.Close()
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	if !validName(name) {
		return nil, "", analysis.ErrImageNotFound
	}
	path := filepath.Join(s.dir, name)
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", analysis.ErrImageNotFound
		}
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, mt.String(), nil
}

// Check verifies the directory is still writable.
func (s *LocalStore) Check(context.Context) error {
	f, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// validName rejects anything that could escape the storage root.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}

var _ analysis.ImageStore = (*LocalStore)(nil)
