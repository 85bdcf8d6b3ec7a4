package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	if got := BaseDir(); got != dir {
		t.Errorf("BaseDir() = %q, want %q", got, dir)
	}
	if got := ConfigPath(); got != filepath.Join(dir, "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestBaseDirDefault(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".chatsync"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	t.Setenv(HomeEnv, "/base")
	p := For("work")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", p.Dir, "/base/sessions/work"},
		{"socket", p.Socket(), "/base/sessions/work/chatsyncd.sock"},
		{"lock", p.Lock(), "/base/sessions/work/LOCK"},
		{"db", p.DB(), "/base/sessions/work/chatsync.db"},
		{"log", p.LogFile(), "/base/sessions/work/logs/chatsyncd.log"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnsure(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	p := For("test")
	if err := p.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	info, err := os.Stat(p.LogDir())
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
}
