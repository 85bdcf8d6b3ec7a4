// Package lock keeps two daemons from serving the same session.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockHeldError is returned when another process holds the lock.
type LockHeldError struct {
	PID     int
	Session string
	Path    string
}

func (e *LockHeldError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("session %q is served by PID %d (%s)", e.Session, e.PID, e.Path)
	}
	return fmt.Sprintf("lock held by PID %d (%s)", e.PID, e.Path)
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Session string
	Since   time.Time
}

// Lock is an acquired lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on path for session, creating the file
// and its directory as needed. It returns *LockHeldError if another process
// already holds it.
func Acquire(path, session string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		h, _ := Read(path)
		return nil, &LockHeldError{PID: h.PID, Session: h.Session, Path: path}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nsession=%s\ntime=%s\n", os.Getpid(), session, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. Safe to call on nil receiver and more than
// once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Read parses the holder recorded in a lock file.
func Read(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	var h Holder
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(val)
		case "session":
			h.Session = val
		case "time":
			h.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	return h, nil
}
