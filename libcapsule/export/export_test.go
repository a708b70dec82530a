package export

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bluecap/bluecap/libcapsule"
)

func newTestManager(t *testing.T, rootless bool) *Manager {
	t.Helper()
	base := t.TempDir()
	s := &libcapsule.Store{Root: filepath.Join(base, "capsules"), Rootless: rootless}
	m := &Manager{Dir: filepath.Join(base, "bin"), Store: s, Executable: "/usr/bin/bluecap"}
	for _, dir := range []string{s.Root, m.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Create("foo", "img", nil); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestExport(t *testing.T) {
	m := newTestManager(t, false)
	path, err := m.Export("foo", "mc", []string{"mycmd", "--flag"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := "#!/usr/bin/bluecap --bluecap-reenter=foo\n[\"mycmd\",\"--flag\"]\n"
	if string(data) != expected {
		t.Errorf("shim = %q, want %q", data, expected)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", fi.Mode().Perm())
	}
	c, err := m.Store.Load("foo")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Exports, []string{"mc"}) {
		t.Errorf("exports = %q", c.Exports)
	}

	if _, err := m.Export("foo", "mc", []string{"other"}); !errors.Is(err, libcapsule.ErrExportExist) {
		t.Errorf("expected ErrExportExist, got %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(after) != expected {
		t.Error("existing shim was overwritten")
	}

	shim, err := ReadShim(path)
	if err != nil {
		t.Fatal(err)
	}
	if shim.Capsule != "foo" || shim.Rootless || !slices.Equal(shim.Args, []string{"mycmd", "--flag"}) {
		t.Errorf("ReadShim() = %+v", shim)
	}

	if err := m.Remove("foo", "mc"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("shim still exists")
	}
	if c, _ = m.Store.Load("foo"); len(c.Exports) != 0 {
		t.Errorf("exports = %q", c.Exports)
	}
}

func TestExportRootless(t *testing.T) {
	m := newTestManager(t, true)
	path, err := m.Export("foo", "sh", []string{"/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	shim, err := ReadShim(path)
	if err != nil {
		t.Fatal(err)
	}
	if !shim.Rootless || shim.Capsule != "foo" {
		t.Errorf("ReadShim() = %+v", shim)
	}
}

func TestExportInvalid(t *testing.T) {
	m := newTestManager(t, false)
	var verr *libcapsule.ValidationError
	if _, err := m.Export("foo", "../escape", []string{"x"}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	for _, exposed := range []string{".", ".."} {
		if _, err := m.Export("foo", exposed, []string{"x"}); !errors.As(err, &verr) {
			t.Errorf("Export(%q): expected ValidationError, got %v", exposed, err)
		}
		if err := m.Remove("foo", exposed); !errors.As(err, &verr) {
			t.Errorf("Remove(%q): expected ValidationError, got %v", exposed, err)
		}
	}
	if _, err := m.Export("foo", "x", nil); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if _, err := m.Export("bar", "x", []string{"x"}); !errors.Is(err, libcapsule.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestRemoveForeignShim(t *testing.T) {
	m := newTestManager(t, false)
	if _, err := m.Store.Create("bar", "img", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Export("bar", "b", []string{"b"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("foo", "b"); err == nil {
		t.Fatal("removed a shim belonging to another capsule")
	}
	c, err := m.Store.Load("bar")
	if err != nil {
		t.Fatal(err)
	}
	// Deleting foo must not touch bar's shim even if foo's record claims it.
	if err := m.RemoveAll("foo", &libcapsule.Capsule{Exports: []string{"b"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.Path("b")); err != nil {
		t.Errorf("foreign shim removed: %v", err)
	}
	if err := m.RemoveAll("bar", c); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(m.Path("b")); !errors.Is(err, os.ErrNotExist) {
		t.Error("shim not removed")
	}
}

func TestParseMarker(t *testing.T) {
	for _, test := range []struct {
		arg      string
		capsule  string
		rootless bool
		ok       bool
	}{
		{"--bluecap-reenter=foo", "foo", false, true},
		{"--bluecap-reenter=rootless:foo", "foo", true, true},
		{"run", "", false, false},
		{"--rootless", "", false, false},
	} {
		capsule, rootless, ok := ParseMarker(test.arg)
		if capsule != test.capsule || rootless != test.rootless || ok != test.ok {
			t.Errorf("ParseMarker(%q) = %q, %v, %v", test.arg, capsule, rootless, ok)
		}
	}
	if got := DefaultName([]string{"/usr/bin/firefox", "--new-window"}); got != "firefox" {
		t.Errorf("DefaultName() = %q", got)
	}
}
