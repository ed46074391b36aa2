package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileOptions describes a log file. A zero MaxSize disables rotation.
type FileOptions struct {
	Path string
	// MaxSize is the size in bytes at which the file is rotated.
	MaxSize int64
	// MaxBackups is how many rotated files are kept as Path.1, Path.2, ...
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// RotatingFile is an io.WriteCloser that rotates its file by size. Backups are
// numbered, with .1 the most recent.
type RotatingFile struct {
	mu   sync.Mutex
	opts FileOptions
	file *os.File
	size int64
}

// OpenRotatingFile opens opts.Path for appending, creating parent directories.
func OpenRotatingFile(opts FileOptions) (*RotatingFile, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 1
	}
	rf := &RotatingFile{opts: opts}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(rf.opts.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rf.opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rf.file, rf.size = f, info.Size()
	return nil
}

// Write implements io.Writer. A record is never split across files.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.opts.MaxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.opts.MaxSize {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotate moves the current file to the first backup slot and starts a new one.
func (rf *RotatingFile) Rotate() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return os.ErrClosed
	}
	return rf.rotate()
}

func (rf *RotatingFile) backup(i int) string {
	name := rf.opts.Path + "." + strconv.Itoa(i)
	if rf.opts.Compress {
		name += ".gz"
	}
	return name
}

func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rf.file = nil

	_ = os.Remove(rf.backup(rf.opts.MaxBackups))
	for i := rf.opts.MaxBackups - 1; i >= 1; i-- {
		if err := os.Rename(rf.backup(i), rf.backup(i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to shift log backup: %w", err)
		}
	}

	if rf.opts.Compress {
		if err := gzipFile(rf.opts.Path, rf.backup(1)); err != nil {
			return err
		}
	} else if err := os.Rename(rf.opts.Path, rf.backup(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return rf.open()
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to compress log backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Close closes the current file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
