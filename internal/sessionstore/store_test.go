package sessionstore

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	sess := &PersistedSession{
		Cookies: map[string]string{
			"ASP.NET_SessionId": "abc123",
			"AUTH_SESSION_ID":   "def456",
			".ASPXAUTH":         "tok789",
		},
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0",
		},
	}

	if err := Save(sess, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(loaded.Cookies, sess.Cookies) {
		t.Errorf("cookies did not round-trip: got %v, want %v", loaded.Cookies, sess.Cookies)
	}
	if !reflect.DeepEqual(loaded.Headers, sess.Headers) {
		t.Errorf("headers did not round-trip: got %v, want %v", loaded.Headers, sess.Headers)
	}
}

func TestSaveFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "session.json")
	sess := &PersistedSession{Cookies: map[string]string{"a": "b"}}

	if err := Save(sess, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 0600", perm)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	first := &PersistedSession{Cookies: map[string]string{"old": "1"}}
	if err := Save(first, path); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := &PersistedSession{Cookies: map[string]string{"new": "2"}}
	if err := Save(second, path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := loaded.Cookies["old"]; ok {
		t.Error("old session data survived overwrite")
	}
	if loaded.Cookies["new"] != "2" {
		t.Errorf("cookies = %v", loaded.Cookies)
	}
}

func TestSaveUnwritableLocation(t *testing.T) {
	err := Save(&PersistedSession{Cookies: map[string]string{"a": "b"}},
		filepath.Join(t.TempDir(), "missing-dir", "session.json"))
	if err == nil {
		t.Fatal("Save should fail when the directory does not exist")
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "wrong shape", content: `"just a string"`},
		{name: "missing cookies", content: `{"headers":{"User-Agent":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			_, err := Load(path)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load error = %v, want ErrCorrupt", err)
			}
		})
	}
}
