// Package sandbox translates a capsule into a single container runtime
// invocation.
package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/bluecap/bluecap/internal/pathrs"
	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/identity"
)

const (
	// HomeMount is where the original caller's home directory appears
	// inside every sandbox.
	HomeMount = "/var/home/bluecap"
	// ScratchDir is the sandbox's ephemeral writable area; it doubles as
	// the minimal in-sandbox $HOME.
	ScratchDir = "/tmp"

	entrypoint  = "/bin/sh"
	entryScript = `exec "$@"`
	entryArgv0  = "bluecap-entry"

	defaultShell = "/bin/sh"
)

// Invocation is everything the runtime is asked to do for one run.
type Invocation struct {
	Name     string
	Image    string
	Workdir  string
	User     *specs.User
	Mounts   []specs.Mount
	Env      []string
	Tmpfs    []string
	Terminal bool
	// Options are passed to the runtime verbatim.
	Options []string
	Args    []string
}

// Argv renders the runtime command line, starting with runtime itself.
func (inv *Invocation) Argv(runtime string) []string {
	argv := []string{runtime, "run", "--rm", "--interactive"}
	if inv.Terminal {
		argv = append(argv, "--tty")
	}
	argv = append(argv, "--name="+inv.Name, "--security-opt=label=disable")
	for _, t := range inv.Tmpfs {
		argv = append(argv, "--tmpfs="+t)
	}
	for _, e := range inv.Env {
		argv = append(argv, "--env="+e)
	}
	if inv.User != nil {
		argv = append(argv, "--user="+strconv.FormatUint(uint64(inv.User.UID), 10)+":"+strconv.FormatUint(uint64(inv.User.GID), 10))
	}
	for _, m := range inv.Mounts {
		v := "--volume=" + m.Source + ":" + m.Destination
		if len(m.Options) > 0 {
			v += ":" + strings.Join(m.Options, ",")
		}
		argv = append(argv, v)
	}
	argv = append(argv, "--workdir="+inv.Workdir, "--entrypoint="+entrypoint)
	argv = append(argv, inv.Options...)
	argv = append(argv, inv.Image, "-c", entryScript, entryArgv0)
	return append(argv, inv.Args...)
}

// HostPather resolves a capsule's logical persistence directory to the host
// directory backing it.
type HostPather interface {
	HostPath(name, logicalDir string) (string, error)
}

// Target is what a run executes: a named capsule, or a bare image.
type Target struct {
	// Name is empty for a direct image run.
	Name    string
	Capsule *libcapsule.Capsule
}

// Builder builds invocations for the original caller.
type Builder struct {
	Identity    identity.Context
	User        *identity.User
	Persistence HostPather
	// Terminal requests a pseudo-terminal for the sandbox.
	Terminal bool
}

// Build creates the invocation running args in t with workdir as working
// directory. workdir must be within the original caller's home directory.
func (b *Builder) Build(t Target, workdir string, args []string) (*Invocation, error) {
	if t.Capsule == nil || t.Capsule.Image == "" {
		return nil, errors.New("sandbox target has no image")
	}
	home := filepath.Clean(b.User.Home)
	sandboxWorkdir, ok := pathrs.Translate(home, HomeMount, workdir)
	if !ok {
		return nil, &libcapsule.ContainmentError{Dir: workdir, Home: home}
	}
	if len(args) == 0 {
		args = []string{defaultShell}
	}

	label := "image"
	if t.Name != "" {
		label = t.Name
	}
	inv := &Invocation{
		Name:     "bluecap-" + label + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Image:    t.Capsule.Image,
		Workdir:  sandboxWorkdir,
		Env:      []string{"HOME=" + ScratchDir},
		Tmpfs:    []string{ScratchDir},
		Terminal: b.Terminal,
		Mounts: []specs.Mount{{
			Type:        "bind",
			Source:      home,
			Destination: HomeMount,
		}},
		Options: t.Capsule.Options,
		Args:    args,
	}
	if !b.Identity.Rootless {
		inv.User = &specs.User{UID: uint32(b.User.UID), GID: uint32(b.User.GID)}
	}
	for _, dir := range t.Capsule.Persistence {
		if t.Name == "" {
			break
		}
		src, err := b.Persistence.HostPath(t.Name, dir)
		if err != nil {
			return nil, fmt.Errorf("persistence directory %s: %w", dir, err)
		}
		inv.Mounts = append(inv.Mounts, specs.Mount{Type: "bind", Source: src, Destination: dir})
	}
	return inv, nil
}
