package libcapsule

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Link pointer location, relative to the directory it is linked into.
const (
	LinkDir  = ".bluecap"
	LinkFile = "default.json"
)

// CurrentLink is the identifier resolving to the capsule linked into the
// current directory or its nearest ancestor.
const CurrentLink = "."

// Resolved is a capsule identifier resolved to its canonical location.
type Resolved struct {
	Name     string
	Path     string
	Rootless bool
}

// Resolver maps capsule identifiers to capsule records.
type Resolver struct {
	Global   *Store
	Rootless *Store
	// RootlessMode selects the store used for literal names.
	RootlessMode bool
	// Getwd returns the directory "." is resolved from.
	Getwd func() (string, error)
}

// Store returns the store a resolved capsule lives in.
func (r *Resolver) Store(res *Resolved) *Store {
	if res.Rootless {
		return r.Rootless
	}
	return r.Global
}

// Resolve resolves identifier and checks that the capsule's existence matches
// shouldExist.
func (r *Resolver) Resolve(identifier string, shouldExist bool) (*Resolved, error) {
	var res *Resolved
	if identifier == CurrentLink {
		var err error
		if res, err = r.resolveLink(); err != nil {
			return nil, err
		}
	} else {
		if err := ValidateName(identifier); err != nil {
			return nil, err
		}
		res = &Resolved{Name: identifier, Rootless: r.RootlessMode}
		res.Path = r.Store(res).Path(identifier)
	}

	exists, err := r.Store(res).Exists(res.Name)
	if err != nil {
		return nil, err
	}
	switch {
	case shouldExist && !exists:
		return nil, fmt.Errorf("%w: %s", ErrNotExist, res.Name)
	case !shouldExist && exists:
		return nil, fmt.Errorf("%w: %s", ErrExist, res.Name)
	}
	return res, nil
}

func (r *Resolver) resolveLink() (*Resolved, error) {
	getwd := r.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	dir, err := getwd()
	if err != nil {
		return nil, err
	}
	for {
		link := filepath.Join(dir, LinkDir, LinkFile)
		target, err := os.Readlink(link)
		if err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(link), target)
			}
			return r.fromRecordPath(filepath.Clean(target))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to read link %s: %w", link, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoCapsuleLinked
		}
		dir = parent
	}
}

func (r *Resolver) fromRecordPath(path string) (*Resolved, error) {
	name, ok := strings.CutSuffix(filepath.Base(path), recordExt)
	if !ok {
		return nil, NewValidationError("link target %s is not a capsule record", path)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	res := &Resolved{Name: name, Path: path}
	switch filepath.Dir(path) {
	case filepath.Clean(r.Global.Root):
	case filepath.Clean(r.Rootless.Root):
		res.Rootless = true
	default:
		return nil, NewValidationError("link target %s is outside of the capsule stores", path)
	}
	return res, nil
}

// Link points dir's link pointer at res, replacing any existing link.
func Link(dir string, res *Resolved) error {
	linkDir := filepath.Join(dir, LinkDir)
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(linkDir, "."+LinkFile+"."+uuid.NewString())
	if err := os.Symlink(res.Path, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(linkDir, LinkFile)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Unlink removes dir's link pointer.
func Unlink(dir string) error {
	err := os.Remove(filepath.Join(dir, LinkDir, LinkFile))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoCapsuleLinked
	}
	return err
}
