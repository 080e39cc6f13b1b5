// Package persist provides storage backends for the token store of the
// recommend client. Every backend stores the whole token map as one JSON blob
// and reports a missing blob with an error wrapping fs.ErrNotExist.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// LockTimeout bounds how long File.Update waits for the lock file.
const LockTimeout = 5 * time.Second

// File persists the token blob to a JSON file on disk.
type File struct {
	path string
}

// NewFile creates a file backend writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the credential file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) lockPath() string {
	return f.path + ".lock"
}

// Load reads the credential file.
func (f *File) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("credential file %s is empty: %w", f.path, fs.ErrNotExist)
	}
	return data, nil
}

// Update holds an exclusive lock on the credential file for the whole
// read-modify-write cycle, so concurrent writers in other processes cannot
// drop each other's token kinds.
func (f *File) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	lock := flock.New(f.lockPath())
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock credential file: %w", err)
	}
	if !locked {
		return fmt.Errorf("timed out locking credential file %s", f.path)
	}
	defer func() { _ = lock.Unlock() }()

	current, err := f.Load(ctx)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	return f.write(next)
}

func (f *File) write(data []byte) error {
	dir := filepath.Dir(f.path)

	// Atomic write with randomized temp file name
	tmpFile, err := os.CreateTemp(dir, filepath.Base(f.path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(f.path)
			return os.Rename(tmpPath, f.path)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
