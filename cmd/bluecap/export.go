package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
	"github.com/bluecap/bluecap/libcapsule/export"
)

var exportCommand = cli.Command{
	Name:  "export",
	Usage: "make a command of a capsule runnable from the host",
	ArgsUsage: `<capsule> <command> [arguments...]

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory. A shim running the command in the capsule is
written to the export directory, named after the command unless --as is
given. Arguments the shim is called with are appended to the exported ones.
--as and --remove may also follow the capsule or the command; a command
using those flags itself goes after "--".

With --remove, the arguments are "<capsule> <name>" and the shim called
<name> is removed.

EXAMPLE:

       # bluecap export --as dev-make dev make -j8`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "as",
			Usage: "name of the shim on the host",
		},
		cli.BoolFlag{
			Name:  "remove",
			Usage: "remove an exported shim",
		},
	},
	// The exported command line may contain flags of its own; ours are
	// picked out of it by hand.
	SkipArgReorder: true,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 2, minArgs); err != nil {
			return err
		}
		capsule, req, err := exportRequest(context)
		if err != nil {
			return err
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		res, err := e.resolve(capsule, true)
		if err != nil {
			return err
		}
		dispatchAction(e, dispatch.ActExport, append([]string{res.Name}, req...))
		return nil
	},
}

// exportRequest splits an export command line into the capsule and the
// privileged arguments that follow its name.
func exportRequest(context *cli.Context) (string, []string, error) {
	args := context.Args()
	flags, command, err := extractFlags(args.Tail(), []string{"remove"}, []string{"as"})
	if err != nil {
		return "", nil, err
	}
	if boolFlag(context, flags, "remove") {
		if len(command) != 1 {
			return "", nil, libcapsule.NewValidationError("--remove takes the name of one shim")
		}
		return args.First(), []string{"remove", command[0]}, nil
	}
	if len(command) == 0 {
		return "", nil, libcapsule.NewValidationError("a command to export is required")
	}
	exposed := stringFlag(context, flags, "as")
	if exposed == "" {
		exposed = export.DefaultName(command)
	}
	return args.First(), append([]string{"add", exposed}, command...), nil
}

func (e *environment) privilegedExport(args []string) error {
	name, exposed := args[0], args[2]
	remove, err := modeArg(args[1])
	if err != nil {
		return err
	}
	if _, err := e.capsuleArg(name); err != nil {
		return err
	}
	m := e.exports()
	if remove {
		if err := m.Remove(name, exposed); err != nil {
			return err
		}
		logrus.Infof("removed export %s of capsule %s", exposed, name)
		return nil
	}
	if err := e.layout.EnsureDirs(); err != nil {
		return err
	}
	path, err := m.Export(name, exposed, args[3:])
	if err != nil {
		return err
	}
	logrus.Infof("exported %s of capsule %s", path, name)
	return nil
}
