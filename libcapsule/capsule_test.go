package libcapsule

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestValidateName(t *testing.T) {
	for _, test := range []struct {
		name  string
		valid bool
	}{
		{"foo", true},
		{"Foo_Bar-1.2", true},
		{".", true},
		{"..", true},
		{"", false},
		{"foo bar", false},
		{"foo/bar", false},
		{"../etc", false},
		{`foo"bar`, false},
		{"foo;rm", false},
		{"foo\n", false},
		{"tëst", false},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateName(test.name)
			var verr *ValidationError
			if test.valid && err != nil {
				t.Errorf("ValidateName(%q) = %v, expected success", test.name, err)
			}
			if !test.valid && !errors.As(err, &verr) {
				t.Errorf("ValidateName(%q) = %v, expected ValidationError", test.name, err)
			}
		})
	}
}

func TestCreateWithDefaults(t *testing.T) {
	dir := t.TempDir()
	defaultsPath := filepath.Join(dir, "defaults.json")
	if err := os.WriteFile(defaultsPath, []byte(`{"options": ["net=none"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	defaults, err := LoadDefaults(defaultsPath)
	if err != nil {
		t.Fatal(err)
	}
	s := &Store{Root: dir}
	if _, err := s.Create("foo", "image:bar", defaults); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(s.Path("foo"))
	if err != nil {
		t.Fatal(err)
	}
	expected := `{
  "image": "image:bar",
  "options": [
    "net=none"
  ],
  "persistence": []
}
`
	if string(data) != expected {
		t.Errorf("record = %s, want %s", data, expected)
	}
}

func TestCreateExisting(t *testing.T) {
	s := &Store{Root: t.TempDir()}
	if _, err := s.Create("foo", "img", nil); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(s.Path("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("foo", "other", nil); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	after, err := os.ReadFile(s.Path("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed create modified the existing record")
	}
}

func TestCreateInvalid(t *testing.T) {
	dir := t.TempDir()
	s := &Store{Root: dir}
	if _, err := s.Create("../x", "img", nil); err == nil {
		t.Fatal("expected error for invalid name")
	}
	if _, err := s.Create("x", "", nil); err == nil {
		t.Fatal("expected error for missing image")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed create left %d entries behind", len(entries))
	}
}

func TestLoadDefaultsMissing(t *testing.T) {
	d, err := LoadDefaults(filepath.Join(t.TempDir(), "defaults.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Options) != 0 {
		t.Errorf("options = %q", d.Options)
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := &Store{Root: t.TempDir()}
	if _, err := s.Load("foo"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	for _, name := range []string{"b", "a", ".hidden"} {
		if _, err := s.Create(name, "img", nil); err != nil {
			t.Fatal(err)
		}
	}
	c, err := s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	c.Persistence = []string{"/data"}
	if err := s.Save("a", c); err != nil {
		t.Fatal(err)
	}
	c, err = s.Load("a")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Persistence, []string{"/data"}) {
		t.Errorf("persistence = %q", c.Persistence)
	}
	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{".hidden", "a", "b"}) {
		t.Errorf("List() = %q", names)
	}
	if err := s.Destroy("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy("b"); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
