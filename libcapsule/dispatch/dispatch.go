// Package dispatch implements the two-phase privilege protocol. The
// unprivileged phase validates a request and calls Dispatch; the privileged
// phase, in this process or in a re-executed one, runs the action's handler
// and terminates.
//
// Escalation replaces the calling process. Nothing written after a call to
// Dispatch or RunPrivileged ever runs.
package dispatch

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bluecap/bluecap/internal/linux"
	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/audit"
	"github.com/bluecap/bluecap/libcapsule/identity"
)

// PrivilegedCommand is the command line word introducing the privileged
// phase of an action.
const PrivilegedCommand = "privileged"

// Action identifies a privileged operation.
type Action uint8

const (
	ActCreate Action = iota + 1
	ActDelete
	ActOptions
	ActPersistence
	ActTrust
	ActExport
	ActRun
)

// Handler is the privileged phase of an action. It receives the positional
// arguments produced by the unprivileged phase.
type Handler func(args []string) error

// Entry binds an action to its command line name and privileged handler.
type Entry struct {
	Name    string
	MinArgs int
	Handler Handler
}

// Table is the static action table.
type Table map[Action]Entry

// Lookup finds an action by its command line name.
func (t Table) Lookup(name string) (Action, Entry, bool) {
	for a, e := range t {
		if e.Name == name {
			return a, e, true
		}
	}
	return 0, Entry{}, false
}

// State is a step of the protocol, for diagnostics.
type State uint8

const (
	Requesting State = iota
	Escalating
	Privileged
	Terminated
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Escalating:
		return "escalating"
	case Privileged:
		return "privileged"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Dispatcher routes actions to their privileged handlers.
type Dispatcher struct {
	Identity identity.Context
	Actions  Table

	// Executable is the bluecap binary re-executed for the privileged phase.
	Executable string
	// Escalator is the escalation primitive.
	Escalator string
	// EnvProgram runs under the escalation primitive and forwards the
	// identity context to Executable.
	EnvProgram string

	// The fields below default to the real process operations.
	Exec    func(path string, argv, env []string) error
	Exit    func(code int)
	Geteuid func() int
	// Escalated reports whether the escalation primitive started this
	// process.
	Escalated func() bool
	Report    func(err error)
	Audit     func(action string, uid int, args []string)
	Stderr    io.Writer

	state State
}

// HasRights reports whether this process may run privileged handlers
// itself: it already runs elevated, or rootless mode needs no elevation.
func (d *Dispatcher) HasRights() bool {
	if d.Identity.Rootless {
		return true
	}
	geteuid := d.Geteuid
	if geteuid == nil {
		geteuid = os.Geteuid
	}
	return geteuid() == 0
}

// EscalationArgv returns the command line that re-executes bluecap through
// the escalation primitive to run action a with args.
func (d *Dispatcher) EscalationArgv(a Action, args []string) ([]string, error) {
	e, ok := d.Actions[a]
	if !ok {
		return nil, fmt.Errorf("unknown action %d", a)
	}
	argv := []string{d.Escalator, d.EnvProgram}
	argv = append(argv, d.Identity.Environ()...)
	argv = append(argv, d.Executable, PrivilegedCommand, e.Name)
	return append(argv, args...), nil
}

// Dispatch runs action a with args in the privileged phase: in process when
// HasRights, otherwise by replacing this process with an escalated one. It
// does not return.
func (d *Dispatcher) Dispatch(a Action, args []string) {
	e, ok := d.Actions[a]
	if !ok {
		d.fail(fmt.Errorf("unknown action %d", a))
	}
	if d.HasRights() {
		d.run(e, args)
	}

	d.transition(Escalating)
	argv, err := d.EscalationArgv(a, args)
	if err != nil {
		d.fail(err)
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		d.fail(fmt.Errorf("escalation primitive unavailable: %w", err))
	}
	logrus.Debugf("escalating: %s", strings.Join(argv, " "))
	execFn := d.Exec
	if execFn == nil {
		execFn = linux.Exec
	}
	// The exit status of the escalated process, and with it any
	// authorization denial, is the caller's only result from here on.
	err = execFn(path, argv, os.Environ())
	d.fail(err)
}

// RunPrivileged is the entry point of a re-executed privileged phase: it
// runs the action named name with args. It does not return.
func (d *Dispatcher) RunPrivileged(name string, args []string) {
	_, e, ok := d.Actions.Lookup(name)
	if !ok {
		d.fail(libcapsule.NewValidationError("unknown privileged action %q", name))
	}
	escalated := d.Escalated
	if escalated == nil {
		escalated = identity.Escalated
	}
	if d.Identity.Rootless && escalated() {
		// Rootless requests never escalate: this one was forged.
		d.fail(libcapsule.NewValidationError("rootless mode cannot be requested through the escalation primitive"))
	}
	if !d.HasRights() {
		d.fail(libcapsule.ErrNotPrivileged)
	}
	d.run(e, args)
}

func (d *Dispatcher) run(e Entry, args []string) {
	d.transition(Privileged)
	if len(args) < e.MinArgs {
		d.fail(libcapsule.NewValidationError("%s requires at least %d arguments, got %d", e.Name, e.MinArgs, len(args)))
	}
	record := d.Audit
	if record == nil {
		record = audit.Record
	}
	record(e.Name, d.Identity.OriginalUID, args)
	if err := e.Handler(args); err != nil {
		d.fail(err)
	}
	d.terminate(0)
}

func (d *Dispatcher) fail(err error) {
	if d.Report != nil {
		d.Report(err)
	} else {
		logrus.Error(err)
		stderr := d.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		fmt.Fprintln(stderr, err)
	}
	d.terminate(1)
}

func (d *Dispatcher) terminate(code int) {
	d.transition(Terminated)
	exit := d.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code)
	panic("dispatch: process did not terminate")
}

func (d *Dispatcher) transition(s State) {
	logrus.Debugf("dispatch: %s -> %s", d.state, s)
	d.state = s
}
