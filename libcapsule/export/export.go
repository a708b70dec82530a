// Package export generates shims: small executables that re-enter bluecap
// to run a fixed command in a fixed capsule.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/store"
)

// Marker is the option a shim passes to bluecap through its interpreter
// line. The kernel hands it over as the first argument, followed by the
// shim's path and the arguments the shim was invoked with.
const Marker = "--bluecap-reenter="

const rootlessPrefix = "rootless:"

// Shim is the content of an export shim.
type Shim struct {
	Capsule  string
	Rootless bool
	Args     []string
}

// MarkerArg encodes the capsule as the shim's interpreter argument.
func (s *Shim) MarkerArg() string {
	if s.Rootless {
		return Marker + rootlessPrefix + s.Capsule
	}
	return Marker + s.Capsule
}

// Marshal renders the shim for the bluecap binary at executable.
func (s *Shim) Marshal(executable string) ([]byte, error) {
	args, err := json.Marshal(s.Args)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#!%s %s\n", executable, s.MarkerArg())
	buf.Write(args)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ParseMarker decodes a marker argument. ok is false if arg is not one.
func ParseMarker(arg string) (capsule string, rootless, ok bool) {
	value, ok := strings.CutPrefix(arg, Marker)
	if !ok {
		return "", false, false
	}
	capsule, rootless = strings.CutPrefix(value, rootlessPrefix)
	return capsule, rootless, true
}

// ReadShim parses the shim at path.
func ReadShim(path string) (*Shim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	var lines []string
	for len(lines) < 2 && s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "#!") {
		return nil, fmt.Errorf("%s is not an export shim", path)
	}
	fields := strings.Fields(lines[0])
	capsule, rootless, ok := ParseMarker(fields[len(fields)-1])
	if !ok {
		return nil, fmt.Errorf("%s is not an export shim", path)
	}
	shim := &Shim{Capsule: capsule, Rootless: rootless}
	if err := json.Unmarshal([]byte(lines[1]), &shim.Args); err != nil {
		return nil, fmt.Errorf("%s: malformed command line: %w", path, err)
	}
	return shim, nil
}

// DefaultName is the exposed name used when none is given: the base name of
// the command.
func DefaultName(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return filepath.Base(args[0])
}

// Manager owns the shims in Dir, for the capsules in Store.
type Manager struct {
	Dir   string
	Store *libcapsule.Store
	// Executable is the bluecap binary shims re-enter.
	Executable string
}

// Path returns the path of the shim named exposed.
func (m *Manager) Path(exposed string) string {
	return filepath.Join(m.Dir, exposed)
}

func checkExposed(exposed string) error {
	if err := libcapsule.ValidateName(exposed); err != nil || libcapsule.IsDotName(exposed) {
		return libcapsule.NewValidationError("export name %q is not valid", exposed)
	}
	return nil
}

// Export writes a shim named exposed running args in capsule name.
func (m *Manager) Export(name, exposed string, args []string) (string, error) {
	if err := checkExposed(exposed); err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", libcapsule.NewValidationError("a command to export is required")
	}
	c, err := m.Store.Load(name)
	if err != nil {
		return "", err
	}
	path := m.Path(exposed)
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("%w: %s", libcapsule.ErrExportExist, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	shim := &Shim{Capsule: name, Rootless: m.Store.Rootless, Args: args}
	data, err := shim.Marshal(m.Executable)
	if err != nil {
		return "", err
	}
	if err := store.WriteAtomic(path, data, 0o755); err != nil {
		return "", err
	}
	c.Exports = store.MergeSet(c.Exports, []string{exposed}, false)
	if err := m.Store.Save(name, c); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes the shim named exposed, which must belong to capsule name.
func (m *Manager) Remove(name, exposed string) error {
	if err := checkExposed(exposed); err != nil {
		return err
	}
	c, err := m.Store.Load(name)
	if err != nil {
		return err
	}
	path := m.Path(exposed)
	shim, err := ReadShim(path)
	if err != nil {
		return err
	}
	if shim.Capsule != name {
		return libcapsule.NewValidationError("%s exports capsule %s, not %s", exposed, shim.Capsule, name)
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	c.Exports = store.MergeSet(c.Exports, []string{exposed}, true)
	return m.Store.Save(name, c)
}

// RemoveAll deletes every shim recorded for c. Shims that are already gone
// or that belong to another capsule are skipped.
func (m *Manager) RemoveAll(name string, c *libcapsule.Capsule) error {
	for _, exposed := range c.Exports {
		if checkExposed(exposed) != nil {
			continue
		}
		path := m.Path(exposed)
		shim, err := ReadShim(path)
		if err != nil || shim.Capsule != name {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
