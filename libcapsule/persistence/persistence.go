// Package persistence maps a capsule's logical persistence directories to
// host directories owned by the original caller.
package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/selinux/go-selinux/label"
	"golang.org/x/sys/unix"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/store"
)

// ContainerFileLabel is applied to new persistence directories when SELinux
// is enabled, so that sandboxes can use them.
const ContainerFileLabel = "system_u:object_r:container_file_t:s0"

// Manager owns the persistence directories of the capsules in Store.
type Manager struct {
	Store *libcapsule.Store
	// Base is an existing directory that Root lies within. Directories
	// between Base and a persistence directory are created by the manager
	// and owned by UID:GID; symlinks below Base are resolved within it.
	Base string
	Root string
	// UID and GID are the original caller's identity.
	UID, GID int
	// Label, if set, is the SELinux file label given to new directories.
	Label string
}

// CheckLogicalDir validates a logical directory as accepted across the
// privilege boundary: absolute and not the sandbox root.
func CheckLogicalDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		return "", libcapsule.NewValidationError("persistence directory %q must be an absolute path", dir)
	}
	dir = filepath.Clean(dir)
	if dir == "/" {
		return "", libcapsule.NewValidationError("the sandbox root cannot be a persistence directory")
	}
	return dir, nil
}

func (m *Manager) capsuleRoot(name string) (string, error) {
	if err := libcapsule.ValidateName(name); err != nil {
		return "", err
	}
	if libcapsule.IsDotName(name) {
		return "", libcapsule.NewValidationError("capsule %q cannot have persistence directories", name)
	}
	return filepath.Join(m.Root, name), nil
}

// HostPath returns the host directory backing logicalDir of capsule name.
func (m *Manager) HostPath(name, logicalDir string) (string, error) {
	root, err := m.capsuleRoot(name)
	if err != nil {
		return "", err
	}
	dir, err := CheckLogicalDir(logicalDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.Base, filepath.Join(root, dir))
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("persistence root %s is not within %s", m.Root, m.Base)
	}
	return securejoin.SecureJoin(m.Base, rel)
}

// Add creates the backing directory for logicalDir and records it in the
// capsule's persistence set. It returns the host path.
func (m *Manager) Add(name, logicalDir string) (string, error) {
	dir, err := CheckLogicalDir(logicalDir)
	if err != nil {
		return "", err
	}
	c, err := m.Store.Load(name)
	if err != nil {
		return "", err
	}
	hostPath, err := m.HostPath(name, dir)
	if err != nil {
		return "", err
	}
	if err := m.mkdirOwned(hostPath); err != nil {
		return "", err
	}
	if m.Label != "" {
		if err := label.Relabel(hostPath, m.Label, true); err != nil {
			return "", fmt.Errorf("unable to relabel %s: %w", hostPath, err)
		}
	}
	c.Persistence = store.MergeSet(c.Persistence, []string{dir}, false)
	if err := m.Store.Save(name, c); err != nil {
		return "", err
	}
	return hostPath, nil
}

// Remove drops logicalDir from the capsule's persistence set and, unless
// keep is set, deletes its backing directory tree.
func (m *Manager) Remove(name, logicalDir string, keep bool) error {
	dir, err := CheckLogicalDir(logicalDir)
	if err != nil {
		return err
	}
	c, err := m.Store.Load(name)
	if err != nil {
		return err
	}
	if !slices.Contains(c.Persistence, dir) {
		return libcapsule.NewValidationError("%s is not a persistence directory of %s", dir, name)
	}
	hostPath, err := m.HostPath(name, dir)
	if err != nil {
		return err
	}
	c.Persistence = store.MergeSet(c.Persistence, []string{dir}, true)
	if err := m.Store.Save(name, c); err != nil {
		return err
	}
	if keep {
		return nil
	}
	return os.RemoveAll(hostPath)
}

// RemoveAll deletes every backing directory of capsule name.
func (m *Manager) RemoveAll(name string) error {
	if libcapsule.IsDotName(name) {
		// Add never created a tree for it.
		return nil
	}
	root, err := m.capsuleRoot(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(root)
}

// mkdirOwned creates every missing directory between Base and path, owned by
// UID:GID, and hands path itself to UID:GID even if it already existed.
// Existing components must be real directories.
func (m *Manager) mkdirOwned(path string) error {
	rel, err := filepath.Rel(m.Base, path)
	if err != nil {
		return err
	}
	cur := m.Base
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		switch {
		case err == nil:
			if !fi.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", cur)
			}
			continue
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		if err := os.Mkdir(cur, 0o755); err != nil {
			return err
		}
		if err := lchown(cur, m.UID, m.GID); err != nil {
			return err
		}
	}
	return lchown(path, m.UID, m.GID)
}

func lchown(path string, uid, gid int) error {
	if err := unix.Lchown(path, uid, gid); err != nil {
		return &os.PathError{Op: "lchown", Path: path, Err: err}
	}
	return nil
}

// Usage returns the apparent size in bytes of the tree at path.
func Usage(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			size += fi.Size()
		}
		return nil
	})
	return size, err
}
