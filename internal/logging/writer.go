// Package logging builds the diagnostic logger for devtoken. Logs go to
// stderr, stdout, or a size-rotated file.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingFile is an io.WriteCloser that rotates its file by size.
// Backups are numbered <base>.1<ext> (newest) to <base>.N<ext> (oldest).
type RotatingFile struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	size       int64
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration
}

// OpenRotatingFile opens path for appending, creating parent directories.
// maxAgeDays of zero keeps backups regardless of age.
func OpenRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingFile, error) {
	rf := &RotatingFile{
		path:       path,
		maxBytes:   int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating first if p would overflow the file.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.size > 0 && rf.size+int64(len(p)) > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Close closes the underlying file.
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

func (rf *RotatingFile) backupName(n int) string {
	ext := filepath.Ext(rf.path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(rf.path, ext), n, ext)
}

func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	rf.file = nil

	if rf.maxBackups > 0 {
		os.Remove(rf.backupName(rf.maxBackups)) //nolint:errcheck
		for n := rf.maxBackups - 1; n >= 1; n-- {
			err := os.Rename(rf.backupName(n), rf.backupName(n+1))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("shifting log backup: %w", err)
			}
		}
		if err := os.Rename(rf.path, rf.backupName(1)); err != nil {
			return fmt.Errorf("rotating log file: %w", err)
		}
	} else if err := os.Remove(rf.path); err != nil {
		return fmt.Errorf("truncating log file: %w", err)
	}

	rf.pruneExpired()
	return rf.open()
}

// pruneExpired removes backups older than maxAge.
func (rf *RotatingFile) pruneExpired() {
	if rf.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-rf.maxAge)
	for n := 1; n <= rf.maxBackups; n++ {
		name := rf.backupName(n)
		info, err := os.Stat(name)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(name) //nolint:errcheck
		}
	}
}
