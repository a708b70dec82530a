package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"

	"github.com/bluecap/bluecap/libcapsule"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	base := t.TempDir()
	s := &libcapsule.Store{Root: filepath.Join(base, "capsules")}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("foo", "img", nil); err != nil {
		t.Fatal(err)
	}
	return &Manager{
		Store: s,
		Base:  base,
		Root:  filepath.Join(base, ".local", "share", "bluecap", "persistence"),
		UID:   os.Getuid(),
		GID:   os.Getgid(),
	}
}

func TestCheckLogicalDir(t *testing.T) {
	for _, test := range []struct {
		in, out string
		valid   bool
	}{
		{"/data", "/data", true},
		{"/data/", "/data", true},
		{"/a/../b", "/b", true},
		{"data", "", false},
		{"./data", "", false},
		{"/", "", false},
		{"/..", "", false},
	} {
		out, err := CheckLogicalDir(test.in)
		if test.valid {
			if err != nil || out != test.out {
				t.Errorf("CheckLogicalDir(%q) = %q, %v; want %q", test.in, out, err, test.out)
			}
			continue
		}
		var verr *libcapsule.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("CheckLogicalDir(%q) = %v, expected ValidationError", test.in, err)
		}
	}
}

func TestAddRemove(t *testing.T) {
	m := newTestManager(t)
	hostPath, err := m.Add("foo", "/data")
	if err != nil {
		t.Fatal(err)
	}
	if expected := filepath.Join(m.Root, "foo", "data"); hostPath != expected {
		t.Errorf("host path = %q, want %q", hostPath, expected)
	}
	fi, err := os.Stat(hostPath)
	if err != nil {
		t.Fatal(err)
	}
	st := fi.Sys().(*syscall.Stat_t)
	if int(st.Uid) != m.UID || int(st.Gid) != m.GID {
		t.Errorf("owner = %d:%d, want %d:%d", st.Uid, st.Gid, m.UID, m.GID)
	}
	c, err := m.Store.Load("foo")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Persistence, []string{"/data"}) {
		t.Errorf("persistence = %q", c.Persistence)
	}

	// Adding twice is harmless.
	if _, err := m.Add("foo", "/data/"); err != nil {
		t.Fatal(err)
	}
	if c, _ = m.Store.Load("foo"); len(c.Persistence) != 1 {
		t.Errorf("persistence = %q", c.Persistence)
	}

	if err := os.WriteFile(filepath.Join(hostPath, "file"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("foo", "/data", false); err != nil {
		t.Fatal(err)
	}
	if c, _ = m.Store.Load("foo"); len(c.Persistence) != 0 {
		t.Errorf("persistence = %q", c.Persistence)
	}
	if _, err := os.Stat(hostPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backing directory still exists: %v", err)
	}
}

func TestRemoveKeep(t *testing.T) {
	m := newTestManager(t)
	hostPath, err := m.Add("foo", "/var/cache")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("foo", "/var/cache", true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(hostPath); err != nil {
		t.Errorf("kept backing directory is gone: %v", err)
	}
	var verr *libcapsule.ValidationError
	if err := m.Remove("foo", "/var/cache", false); !errors.As(err, &verr) {
		t.Errorf("removing an absent directory: %v, expected ValidationError", err)
	}
}

func TestAddMissingCapsule(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("bar", "/data"); !errors.Is(err, libcapsule.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := os.Stat(m.Root); !errors.Is(err, os.ErrNotExist) {
		t.Error("persistence root created for a missing capsule")
	}
}

// A symlink planted under the base cannot redirect directory creation
// outside of it.
func TestSymlinkEscape(t *testing.T) {
	m := newTestManager(t)
	outside := t.TempDir()
	if err := os.MkdirAll(filepath.Dir(m.Root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, m.Root); err != nil {
		t.Fatal(err)
	}
	hostPath, err := m.Add("foo", "/data")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(outside)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("directories created outside of the base: %s", entries[0].Name())
	}
	if rel, err := filepath.Rel(m.Base, hostPath); err != nil || rel[:2] == ".." {
		t.Errorf("host path %s escaped %s", hostPath, m.Base)
	}
}

func TestRemoveAllAndUsage(t *testing.T) {
	m := newTestManager(t)
	a, err := m.Add("foo", "/a")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(a, "f"), make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := Usage(a)
	if err != nil {
		t.Fatal(err)
	}
	if size != 1000 {
		t.Errorf("Usage() = %d, want 1000", size)
	}
	if err := m.RemoveAll("foo"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(m.Root, "foo")); !errors.Is(err, os.ErrNotExist) {
		t.Error("capsule persistence root still exists")
	}
}

func TestDotNames(t *testing.T) {
	m := newTestManager(t)
	// Admin layout: the persistence root is a sibling of the capsule store.
	m.Root = filepath.Join(m.Base, "persistence")
	for _, name := range []string{".", ".."} {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Store.Create(name, "img", nil); err != nil {
				t.Fatal(err)
			}
			var verr *libcapsule.ValidationError
			if _, err := m.HostPath(name, "/capsules"); !errors.As(err, &verr) {
				t.Errorf("HostPath(%q) = %v, expected ValidationError", name, err)
			}
			if _, err := m.Add(name, "/capsules"); !errors.As(err, &verr) {
				t.Errorf("Add(%q) = %v, expected ValidationError", name, err)
			}
			if err := m.RemoveAll(name); err != nil {
				t.Fatal(err)
			}
			if _, err := os.Stat(m.Store.Path("foo")); err != nil {
				t.Errorf("capsule record outside the persistence root is gone: %v", err)
			}
		})
	}
}
