package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
	"github.com/bluecap/bluecap/libcapsule/store"
)

var optionsCommand = cli.Command{
	Name:  "options",
	Usage: "add or remove container runtime options of a capsule",
	ArgsUsage: `<capsule> <option> [option...]

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory. Options are passed verbatim to the container
runtime on every run of the capsule; those already set are left alone.
--remove may also follow the capsule. Options after "--" are taken as is.

EXAMPLE:

       # bluecap options dev --network=none --cap-drop=ALL`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "remove",
			Usage: "remove the options instead of adding them",
		},
	},
	// Options look like flags; they are picked out of the arguments by hand.
	SkipArgReorder: true,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 2, minArgs); err != nil {
			return err
		}
		capsule, req, err := optionsRequest(context)
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
		dispatchAction(e, dispatch.ActOptions, append([]string{res.Name}, req...))
		return nil
	},
}

// optionsRequest splits an options command line into the capsule and the
// privileged arguments that follow its name.
func optionsRequest(context *cli.Context) (string, []string, error) {
	args := context.Args()
	flags, opts, err := extractFlags(args.Tail(), []string{"remove"}, nil)
	if err != nil {
		return "", nil, err
	}
	if len(opts) == 0 {
		return "", nil, libcapsule.NewValidationError("at least one option is required")
	}
	mode := "add"
	if boolFlag(context, flags, "remove") {
		mode = "remove"
	}
	return args.First(), append([]string{mode}, opts...), nil
}

func (e *environment) privilegedOptions(args []string) error {
	name := args[0]
	remove, err := modeArg(args[1])
	if err != nil {
		return err
	}
	opts := args[2:]
	for _, o := range opts {
		if o == "" {
			return libcapsule.NewValidationError("empty option")
		}
	}
	c, err := e.capsuleArg(name)
	if err != nil {
		return err
	}
	c.Options = store.MergeSet(c.Options, opts, remove)
	if err := e.store().Save(name, c); err != nil {
		return err
	}
	logrus.Debugf("capsule %s options: %v", name, c.Options)
	return nil
}
