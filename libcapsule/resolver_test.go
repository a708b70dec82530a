package libcapsule

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	base := t.TempDir()
	r := &Resolver{
		Global:   &Store{Root: filepath.Join(base, "global")},
		Rootless: &Store{Root: filepath.Join(base, "rootless"), Rootless: true},
	}
	for _, s := range []*Store{r.Global, r.Rootless} {
		if err := os.MkdirAll(s.Root, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return r, base
}

func TestResolveLiteral(t *testing.T) {
	r, _ := newTestResolver(t)
	if _, err := r.Resolve("foo", true); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	res, err := r.Resolve("foo", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "foo" || res.Rootless || res.Path != r.Global.Path("foo") {
		t.Errorf("unexpected resolution %+v", res)
	}
	if _, err := r.Global.Create("foo", "img", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("foo", false); !errors.Is(err, ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	if _, err := r.Resolve("foo", true); err != nil {
		t.Fatal(err)
	}

	r.RootlessMode = true
	res, err = r.Resolve("foo", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Rootless || res.Path != r.Rootless.Path("foo") {
		t.Errorf("unexpected rootless resolution %+v", res)
	}
}

func TestResolveInvalidName(t *testing.T) {
	r, _ := newTestResolver(t)
	for _, name := range []string{"", "a/b", "a b", "$(id)"} {
		var verr *ValidationError
		if _, err := r.Resolve(name, false); !errors.As(err, &verr) {
			t.Errorf("Resolve(%q) = %v, expected ValidationError", name, err)
		}
	}
}

func TestResolveLink(t *testing.T) {
	r, base := newTestResolver(t)
	if _, err := r.Rootless.Create("proj", "img", nil); err != nil {
		t.Fatal(err)
	}
	project := filepath.Join(base, "home", "project")
	deep := filepath.Join(project, "src", "pkg")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	r.Getwd = func() (string, error) { return deep, nil }

	if _, err := r.Resolve(CurrentLink, true); !errors.Is(err, ErrNoCapsuleLinked) {
		t.Fatalf("expected ErrNoCapsuleLinked, got %v", err)
	}

	if err := Link(project, &Resolved{Name: "proj", Path: r.Rootless.Path("proj"), Rootless: true}); err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(CurrentLink, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "proj" || !res.Rootless {
		t.Errorf("unexpected resolution %+v", res)
	}

	// A closer link wins and relinking overwrites.
	if _, err := r.Global.Create("inner", "img", nil); err != nil {
		t.Fatal(err)
	}
	inner := filepath.Join(project, "src")
	for i := 0; i < 2; i++ {
		if err := Link(inner, &Resolved{Name: "inner", Path: r.Global.Path("inner")}); err != nil {
			t.Fatal(err)
		}
	}
	res, err = r.Resolve(CurrentLink, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "inner" || res.Rootless {
		t.Errorf("unexpected resolution %+v", res)
	}
	entries, err := os.ReadDir(filepath.Join(inner, LinkDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the link pointer, found %d entries", len(entries))
	}

	if err := Unlink(inner); err != nil {
		t.Fatal(err)
	}
	if err := Unlink(inner); !errors.Is(err, ErrNoCapsuleLinked) {
		t.Errorf("expected ErrNoCapsuleLinked, got %v", err)
	}
	res, err = r.Resolve(CurrentLink, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "proj" {
		t.Errorf("expected fallback to outer link, got %+v", res)
	}
}

func TestResolveLinkOutsideStores(t *testing.T) {
	r, base := newTestResolver(t)
	elsewhere := filepath.Join(base, "elsewhere")
	if err := os.MkdirAll(filepath.Join(elsewhere, LinkDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/etc/passwd.json", filepath.Join(elsewhere, LinkDir, LinkFile)); err != nil {
		t.Fatal(err)
	}
	r.Getwd = func() (string, error) { return elsewhere, nil }
	var verr *ValidationError
	if _, err := r.Resolve(CurrentLink, true); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
