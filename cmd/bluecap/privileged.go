package main

import (
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
)

// Command line names of the privileged actions.
const (
	actionCreate      = "create"
	actionDelete      = "delete"
	actionOptions     = "options"
	actionPersistence = "persistence"
	actionTrust       = "trust"
	actionExport      = "export"
	actionRun         = "run"
)

// actions is the action table: every privileged operation, its name on the
// escalated command line and the minimum number of arguments its handler
// is given.
func (e *environment) actions() dispatch.Table {
	return dispatch.Table{
		dispatch.ActCreate:      {Name: actionCreate, MinArgs: 2, Handler: e.privilegedCreate},
		dispatch.ActDelete:      {Name: actionDelete, MinArgs: 2, Handler: e.privilegedDelete},
		dispatch.ActOptions:     {Name: actionOptions, MinArgs: 3, Handler: e.privilegedOptions},
		dispatch.ActPersistence: {Name: actionPersistence, MinArgs: 4, Handler: e.privilegedPersistence},
		dispatch.ActTrust:       {Name: actionTrust, MinArgs: 2, Handler: e.privilegedTrust},
		dispatch.ActExport:      {Name: actionExport, MinArgs: 3, Handler: e.privilegedExport},
		dispatch.ActRun:         {Name: actionRun, MinArgs: 2, Handler: e.privilegedRun},
	}
}

// dispatchAction hands a validated request to the privileged phase. It does
// not return.
var dispatchAction = func(e *environment, a dispatch.Action, args []string) {
	e.dispatcher().Dispatch(a, args)
}

var privilegedCommand = cli.Command{
	Name:            dispatch.PrivilegedCommand,
	Usage:           "run the privileged phase of an action (internal)",
	ArgsUsage:       `<action> [arguments...]`,
	Hidden:          true,
	SkipFlagParsing: true,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, minArgs); err != nil {
			return err
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		args := context.Args()
		e.dispatcher().RunPrivileged(args.First(), args.Tail())
		return nil
	},
}

// capsuleArg validates a capsule name received by a privileged handler. The
// unprivileged phase has resolved it already; it is checked again because
// the privileged command line can be typed by anyone.
func (e *environment) capsuleArg(name string) (*libcapsule.Capsule, error) {
	if err := libcapsule.ValidateName(name); err != nil {
		return nil, err
	}
	return e.store().Load(name)
}

func boolArg(what, s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, libcapsule.NewValidationError("%s must be true or false, got %q", what, s)
}

func modeArg(s string) (remove bool, err error) {
	switch s {
	case "add":
		return false, nil
	case "remove":
		return true, nil
	}
	return false, libcapsule.NewValidationError("mode must be add or remove, got %q", s)
}
