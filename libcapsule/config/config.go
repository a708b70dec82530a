// Package config holds process-wide bluecap settings and derives the on-disk
// layout of capsule state from them.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	"github.com/bluecap/bluecap/libcapsule/identity"
)

// DotEnvFile is an optional administrator-provided file of KEY=value
// settings. Variables already present in the environment take precedence,
// except in an escalated process.
const DotEnvFile = "/etc/bluecap/bluecap.env"

// Config is the process configuration.
type Config struct {
	// StateDir holds global capsules, exports, persistence and the trust record.
	StateDir string
	// ConfigDir holds administrator-provisioned files (defaults.json).
	ConfigDir string
	// PolicyFile is the generated authorization policy.
	PolicyFile string
	// Runtime is the container runtime executable.
	Runtime string
	// Escalator is the escalation primitive executable.
	Escalator string
	// EnvProgram is the program the escalation primitive starts to forward
	// the identity context.
	EnvProgram string
}

// Load reads the configuration from DotEnvFile and the environment. A
// process started by the escalation primitive runs with an environment its
// caller chose, so it reads DotEnvFile alone.
func Load() (*Config, error) {
	return load(DotEnvFile, identity.Escalated())
}

func load(path string, escalated bool) (*Config, error) {
	if escalated {
		vars, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return fromLookup(func(key, defaultValue string) string {
			if v := vars[key]; v != "" {
				return v
			}
			return defaultValue
		}), nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return fromLookup(env.GetString), nil
}

func fromLookup(get func(key, defaultValue string) string) *Config {
	return &Config{
		StateDir:   get("BLUECAP_STATE_DIR", "/var/lib/bluecap"),
		ConfigDir:  get("BLUECAP_CONFIG_DIR", "/etc/bluecap"),
		PolicyFile: get("BLUECAP_POLICY_FILE", "/etc/polkit-1/rules.d/49-bluecap.rules"),
		Runtime:    get("BLUECAP_RUNTIME", "podman"),
		Escalator:  get("BLUECAP_ESCALATOR", "/usr/bin/pkexec"),
		EnvProgram: get("BLUECAP_ENV_PROGRAM", "/usr/bin/env"),
	}
}

// Layout is the set of paths one invocation operates on.
type Layout struct {
	Rootless bool

	GlobalCapsules   string
	RootlessCapsules string
	GlobalExports    string
	RootlessExports  string
	// PersistenceBase is the existing directory PersistenceRoot is
	// created under.
	PersistenceBase string
	PersistenceRoot string
	TrustFile       string
	PolicyFile      string
	DefaultsFile    string
}

// userDataDir is relative to the original caller's home directory.
const userDataDir = ".local/share/bluecap"

// Layout derives the paths for the given identity. home is the original
// caller's home directory.
func (c *Config) Layout(id identity.Context, home string) *Layout {
	userData := filepath.Join(home, userDataDir)
	l := &Layout{
		Rootless:         id.Rootless,
		GlobalCapsules:   filepath.Join(c.StateDir, "capsules"),
		RootlessCapsules: filepath.Join(userData, "capsules"),
		GlobalExports:    filepath.Join(c.StateDir, "exports", "bin"),
		RootlessExports:  filepath.Join(userData, "exports", "bin"),
		PersistenceBase:  home,
		PersistenceRoot:  filepath.Join(userData, "persistence"),
		TrustFile:        filepath.Join(c.StateDir, "trusted.json"),
		PolicyFile:       c.PolicyFile,
		DefaultsFile:     filepath.Join(c.ConfigDir, "defaults.json"),
	}
	if id.IsAdmin() {
		l.PersistenceBase = c.StateDir
		l.PersistenceRoot = filepath.Join(c.StateDir, "persistence")
	}
	return l
}

// CapsuleDir is the capsule store of the active mode.
func (l *Layout) CapsuleDir() string {
	if l.Rootless {
		return l.RootlessCapsules
	}
	return l.GlobalCapsules
}

// ExportDir is the export shim directory of the active mode.
func (l *Layout) ExportDir() string {
	if l.Rootless {
		return l.RootlessExports
	}
	return l.GlobalExports
}

// EnsureDirs creates the directories of the active mode that mutating
// operations write into.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.CapsuleDir(), l.ExportDir(), l.PersistenceBase} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
