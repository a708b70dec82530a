package main

import (
	"fmt"
	"os"

	"github.com/moby/sys/userns"
	"github.com/opencontainers/selinux/go-selinux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/internal/linux"
	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/config"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
	"github.com/bluecap/bluecap/libcapsule/export"
	"github.com/bluecap/bluecap/libcapsule/identity"
	"github.com/bluecap/bluecap/libcapsule/persistence"
	"github.com/bluecap/bluecap/libcapsule/trust"
)

// environment is everything one invocation acts on: who the original caller
// is and where their capsules live.
type environment struct {
	config     *config.Config
	identity   identity.Context
	user       *identity.User
	layout     *config.Layout
	resolver   *libcapsule.Resolver
	executable string
}

func newEnvironment(context *cli.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	id := identity.FromEnvironment()
	if context.GlobalBool("verbose") {
		id.Verbose = true
	}
	rootless, err := parseBoolOrAuto(context.GlobalString("rootless"))
	if err != nil {
		return nil, fmt.Errorf("invalid --rootless value: %w", err)
	}
	switch {
	case rootless != nil:
		id.Rootless = *rootless
	case !id.Rootless && userns.RunningInUserNS():
		// Root in a user namespace cannot reach the host's authorization
		// service or its global store.
		logrus.Debug("running in a user namespace, enabling rootless mode")
		id.Rootless = true
	}
	u, err := id.User()
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("unable to locate the bluecap executable: %w", err)
	}
	return newEnvironmentFor(cfg, id, u, exe), nil
}

func newEnvironmentFor(cfg *config.Config, id identity.Context, u *identity.User, exe string) *environment {
	e := &environment{
		config:     cfg,
		identity:   id,
		user:       u,
		executable: exe,
	}
	e.setRootless(id.Rootless)
	return e
}

func (e *environment) setRootless(rootless bool) {
	e.identity.Rootless = rootless
	e.layout = e.config.Layout(e.identity, e.user.Home)
	e.resolver = &libcapsule.Resolver{
		Global:       &libcapsule.Store{Root: e.layout.GlobalCapsules},
		Rootless:     &libcapsule.Store{Root: e.layout.RootlessCapsules, Rootless: true},
		RootlessMode: rootless,
		Getwd:        linux.Getwd,
	}
}

// resolve resolves identifier and switches the environment to the mode of
// the capsule found, which may differ from the requested one when a link is
// followed.
func (e *environment) resolve(identifier string, shouldExist bool) (*libcapsule.Resolved, error) {
	res, err := e.resolver.Resolve(identifier, shouldExist)
	if err != nil {
		return nil, err
	}
	if res.Rootless != e.identity.Rootless {
		logrus.Debugf("capsule %s is in the %s store", res.Name, modeName(res.Rootless))
		e.setRootless(res.Rootless)
	}
	return res, nil
}

func modeName(rootless bool) string {
	if rootless {
		return "rootless"
	}
	return "global"
}

func (e *environment) store() *libcapsule.Store {
	return &libcapsule.Store{Root: e.layout.CapsuleDir(), Rootless: e.layout.Rootless}
}

func (e *environment) syncer() *trust.Syncer {
	return &trust.Syncer{
		TrustFile:  e.layout.TrustFile,
		PolicyFile: e.layout.PolicyFile,
		Policy: trust.PolicyInput{
			Program:    e.config.EnvProgram,
			RunCommand: []string{e.executable, dispatch.PrivilegedCommand, actionRun},
		},
	}
}

func (e *environment) persistence() *persistence.Manager {
	m := &persistence.Manager{
		Store: e.store(),
		Base:  e.layout.PersistenceBase,
		Root:  e.layout.PersistenceRoot,
		UID:   e.user.UID,
		GID:   e.user.GID,
	}
	if selinux.GetEnabled() {
		m.Label = persistence.ContainerFileLabel
	}
	return m
}

func (e *environment) exports() *export.Manager {
	return &export.Manager{
		Dir:        e.layout.ExportDir(),
		Store:      e.store(),
		Executable: e.executable,
	}
}

func (e *environment) dispatcher() *dispatch.Dispatcher {
	return &dispatch.Dispatcher{
		Identity:   e.identity,
		Actions:    e.actions(),
		Executable: e.executable,
		Escalator:  e.config.Escalator,
		EnvProgram: e.config.EnvProgram,
		Report:     report,
	}
}
