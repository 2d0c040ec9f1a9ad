// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package store

import (
	"os"
	"path/filepath"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
)

// FileStore is a JSON-file-backed Store: one file per key under a root
// directory, written atomically via a temp file plus rename. Grounded
// on internal/island/recovery.go's PersistState/RecoverState
// (os.MkdirAll + os.WriteFile/os.ReadFile), hardened with the
// temp-file-then-rename pattern so a crash mid-write never leaves a
// truncated snapshot on disk.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if
// necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.New(errs.InvalidInput, "store.NewFileStore", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Save writes data for key atomically: write to a temp file in the
// same directory, then rename over the destination.
func (s *FileStore) Save(key string, data []byte) error {
	dest := s.path(key)
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return errs.New(errs.InvalidInput, "store.Save", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.New(errs.InvalidInput, "store.Save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.New(errs.InvalidInput, "store.Save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.InvalidInput, "store.Save", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return errs.New(errs.InvalidInput, "store.Save", err)
	}
	return nil
}

// Load reads the data last saved for key. Returns NotFound if key has
// never been saved.
func (s *FileStore) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "store.Load", err)
		}
		return nil, errs.New(errs.InvalidInput, "store.Load", err)
	}
	return data, nil
}
