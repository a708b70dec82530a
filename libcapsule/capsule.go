package libcapsule

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jellydator/validation"

	"github.com/bluecap/bluecap/libcapsule/store"
)

// NamePattern is the pattern every capsule name must match. It is also
// embedded in the generated authorization policy.
const NamePattern = `^[A-Za-z0-9_.-]+$`

var (
	nameRegexp = regexp.MustCompile(NamePattern)
	nameRule   = validation.Match(nameRegexp).Error("must consist of letters, digits, '_', '.' and '-'")
)

const recordExt = ".json"

// ValidateName checks name against NamePattern. Nothing derived from a name
// may be written anywhere before this check passes.
func ValidateName(name string) error {
	if err := validation.Validate(name, validation.Required.Error("must not be empty"), nameRule); err != nil {
		return NewValidationError("capsule name %q: %v", name, err)
	}
	return nil
}

// IsDotName reports whether name is "." or "..". Both are valid names, but
// neither may be used as a path component on its own.
func IsDotName(name string) bool {
	return name == "." || name == ".."
}

// Capsule is the on-disk capsule record.
type Capsule struct {
	Image       string   `json:"image"`
	Options     []string `json:"options"`
	Persistence []string `json:"persistence"`
	// Exports are the shim names generated for this capsule.
	Exports []string `json:"exports,omitempty"`
}

// Defaults is the administrator-provisioned defaults record.
type Defaults struct {
	Options []string `json:"options"`
}

// LoadDefaults reads the defaults record. A missing record means no defaults.
func LoadDefaults(path string) (*Defaults, error) {
	d, err := store.Read[Defaults](path)
	if errors.Is(err, store.ErrNotFound) {
		return &Defaults{}, nil
	}
	return d, err
}

// Store is a directory holding one record per capsule.
type Store struct {
	Root     string
	Rootless bool
}

// Path returns the canonical path of the record for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Root, name+recordExt)
}

// Exists reports whether a record for name exists.
func (s *Store) Exists(name string) (bool, error) {
	_, err := os.Lstat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads the record for name.
func (s *Store) Load(name string) (*Capsule, error) {
	c, err := store.Read[Capsule](s.Path(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	return c, err
}

// Save atomically replaces the record for name.
func (s *Store) Save(name string, c *Capsule) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	out := *c
	for _, set := range []*[]string{&out.Options, &out.Persistence} {
		if *set == nil {
			*set = []string{}
		}
	}
	return store.WriteJSON(s.Path(name), &out, 0o644)
}

// Create writes a new capsule record for image, seeded with the options from
// defaults.
func (s *Store) Create(name, image string, defaults *Defaults) (*Capsule, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if image == "" {
		return nil, NewValidationError("an image is required")
	}
	exists, err := s.Exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrExist, name)
	}
	c := &Capsule{Image: image}
	if defaults != nil {
		c.Options = store.MergeSet(nil, defaults.Options, false)
	}
	if err := s.Save(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Destroy removes the record for name.
func (s *Store) Destroy(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return err
	}
	return nil
}

// List returns the names of all capsules in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), recordExt)
		if !ok || e.IsDir() || !nameRegexp.MatchString(name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
