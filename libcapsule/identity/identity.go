// Package identity carries the caller's identity across the privilege
// boundary. The effective identity of the privileged phase is always the
// elevated one, so every decision that depends on "who asked" is made from
// a Context rather than from the process credentials.
package identity

import (
	"fmt"
	"os"
	"strconv"

	"github.com/allisson/go-env"
	"github.com/moby/sys/user"
)

// Environment variables forwarded through the escalation primitive.
const (
	EnvOriginalUID = "BLUECAP_ORIGINAL_UID"
	EnvRootless    = "BLUECAP_ROOTLESS"
	EnvVerbose     = "BLUECAP_VERBOSE"

	// Set by the escalation primitive itself, not forgeable by the caller.
	envEscalatorUID = "PKEXEC_UID"
	envSudoUID      = "SUDO_UID"
)

// Context is the identity context of one bluecap invocation.
type Context struct {
	// OriginalUID is the numeric identity of the user who initiated the
	// request, before any elevation.
	OriginalUID int
	Rootless    bool
	Verbose     bool
}

// Escalated reports whether this process was started by the escalation
// primitive, on behalf of a caller who chose its environment.
func Escalated() bool {
	_, ok := os.LookupEnv(envEscalatorUID)
	return ok
}

// FromEnvironment builds the Context of the running process.
func FromEnvironment() Context {
	return fromEnvironment(os.Getuid, os.Geteuid)
}

func fromEnvironment(getuid, geteuid func() int) Context {
	c := Context{
		OriginalUID: -1,
		Rootless:    env.GetBool(EnvRootless, false),
		Verbose:     env.GetBool(EnvVerbose, false),
	}
	forwarded := env.GetInt(EnvOriginalUID, -1)
	escalator := env.GetInt(envEscalatorUID, -1)
	switch {
	case escalator > 0:
		// A non-root caller went through the escalation primitive: it names
		// the caller, and whatever the caller forwarded is ignored.
		c.OriginalUID = escalator
	case escalator == 0 || geteuid() == 0:
		// Already elevated before this process started: trust what the
		// elevated parent forwarded, then sudo, then ourselves.
		c.OriginalUID = forwarded
		if c.OriginalUID < 0 {
			c.OriginalUID = env.GetInt(envSudoUID, -1)
		}
		if c.OriginalUID < 0 {
			c.OriginalUID = getuid()
		}
	default:
		c.OriginalUID = getuid()
	}
	return c
}

// Environ returns the context encoded as environment assignments, in the
// form forwarded through the escalation primitive.
func (c Context) Environ() []string {
	return []string{
		EnvOriginalUID + "=" + strconv.Itoa(c.OriginalUID),
		EnvRootless + "=" + strconv.FormatBool(c.Rootless),
		EnvVerbose + "=" + strconv.FormatBool(c.Verbose),
	}
}

// IsAdmin reports whether the original caller is the administrative identity.
func (c Context) IsAdmin() bool {
	return c.OriginalUID == 0
}

// User is the subset of a passwd entry bluecap needs.
type User struct {
	Name string
	UID  int
	GID  int
	Home string
}

var lookupUid = user.LookupUid

// User looks up the original caller's passwd entry.
func (c Context) User() (*User, error) {
	u, err := lookupUid(c.OriginalUID)
	if err != nil {
		return nil, fmt.Errorf("unable to look up original user %d: %w", c.OriginalUID, err)
	}
	if u.Home == "" {
		return nil, fmt.Errorf("original user %d has no home directory", c.OriginalUID)
	}
	return &User{Name: u.Name, UID: u.Uid, GID: u.Gid, Home: u.Home}, nil
}
