package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "CHATSYNC_HOME"

// BaseDir returns $CHATSYNC_HOME, or ~/.chatsync.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Paths locates the files of one session.
type Paths struct {
	Name string
	Dir  string
}

// For returns the paths of session name under BaseDir.
func For(name string) Paths {
	return Paths{Name: name, Dir: filepath.Join(BaseDir(), "sessions", name)}
}

// Socket is the gRPC control socket.
func (p Paths) Socket() string { return filepath.Join(p.Dir, "chatsyncd.sock") }

// Lock is the daemon lock file.
func (p Paths) Lock() string { return filepath.Join(p.Dir, "LOCK") }

// DB is the local SQLite database holding drafts, settings and the outbox.
func (p Paths) DB() string { return filepath.Join(p.Dir, "chatsync.db") }

// LogDir returns the log directory.
func (p Paths) LogDir() string { return filepath.Join(p.Dir, "logs") }

// LogFile returns the daemon log file.
func (p Paths) LogFile() string { return filepath.Join(p.LogDir(), "chatsyncd.log") }

// Ensure creates the session directory tree with owner-only permissions.
func (p Paths) Ensure() error {
	for _, d := range []string{p.Dir, p.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
