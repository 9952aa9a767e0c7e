// Package atomicfile writes files so that a crash mid-write never leaves a
// corrupt or partially-written record: data goes to a temporary file in the
// same directory, is fsynced, and is renamed into place.
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Write atomically replaces the file at path with data.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return errors.Wrapf(err, "ensure directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "fsync temp file")
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		cleanup()
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "rename into %s", path)
	}

	// fsync the directory so the rename itself survives a crash
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "open directory %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrapf(err, "fsync directory %s", dir)
	}

	return nil
}

// Read loads the file at path. os.IsNotExist on the returned error
// distinguishes a missing file from a read fault.
func Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}
