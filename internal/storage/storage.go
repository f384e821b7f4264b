package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("stored object not found")

// Store persists raw uploaded bytes behind an opaque location string.
type Store interface {
	Save(ctx context.Context, ext string, data []byte) (location string, err error)
	Load(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}

// DiskStore keeps objects on the local filesystem under a single root
// directory, keyed by random UUIDs.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) Save(_ context.Context, ext string, data []byte) (string, error) {
	key := uuid.NewString() + ext
	path := filepath.Join(s.root, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write stored object failed: %w", err)
	}
	return key, nil
}

func (s *DiskStore) Load(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.Base(location)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read stored object failed: %w", err)
	}
	return data, nil
}

func (s *DiskStore) Delete(_ context.Context, location string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(location)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored object failed: %w", err)
	}
	return nil
}
