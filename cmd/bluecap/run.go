package main

import (
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/internal/linux"
	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
	"github.com/bluecap/bluecap/libcapsule/sandbox"
)

// imageTarget prefixes the run target of a direct image run.
const imageTarget = "image:"

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run a command in a capsule",
	ArgsUsage: `[--image] <capsule> [command [arguments...]]

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory. The command runs in a fresh sandbox with the
current directory as its working directory, which must be within the home
directory. Without a command, a shell is started.

Everything after the capsule is passed to the command as is.

OPTIONS:
   --image, -i    "<capsule>" is a container image, run without a capsule

EXAMPLE:

       # bluecap run dev make -C src --jobs=8`,
	// Parsed by hand: nothing after the capsule may be taken as a flag.
	SkipFlagParsing: true,
	Action: func(context *cli.Context) error {
		options, capsule, command, err := dispatch.SplitAtCapsule(context.Args())
		if err != nil {
			return err
		}
		image := false
		for _, o := range options {
			switch o {
			case "--image", "-i":
				image = true
			case "--help", "-h":
				return cli.ShowCommandHelp(context, context.Command.Name)
			default:
				return libcapsule.NewValidationError("unknown option %s", o)
			}
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		target := imageTarget + capsule
		if !image {
			res, err := e.resolve(capsule, true)
			if err != nil {
				return err
			}
			target = res.Name
		}
		cwd, err := linux.Getwd()
		if err != nil {
			return err
		}
		if err := dispatch.CheckContainment(e.user.Home, cwd); err != nil {
			return err
		}
		dispatchAction(e, dispatch.ActRun, append([]string{target, cwd}, command...))
		return nil
	},
}

// runTarget rebuilds the target of a run request.
func (e *environment) runTarget(target string) (sandbox.Target, error) {
	if image, ok := strings.CutPrefix(target, imageTarget); ok {
		if image == "" {
			return sandbox.Target{}, libcapsule.NewValidationError("an image is required")
		}
		defaults, err := libcapsule.LoadDefaults(e.layout.DefaultsFile)
		if err != nil {
			return sandbox.Target{}, err
		}
		return sandbox.Target{Capsule: &libcapsule.Capsule{Image: image, Options: defaults.Options}}, nil
	}
	c, err := e.capsuleArg(target)
	if err != nil {
		return sandbox.Target{}, err
	}
	return sandbox.Target{Name: target, Capsule: c}, nil
}

func (e *environment) invocation(args []string) (*sandbox.Invocation, error) {
	t, err := e.runTarget(args[0])
	if err != nil {
		return nil, err
	}
	b := &sandbox.Builder{
		Identity:    e.identity,
		User:        e.user,
		Persistence: e.persistence(),
		Terminal:    sandbox.IsTerminal(os.Stdin) && sandbox.IsTerminal(os.Stdout),
	}
	// Build checks the working directory against the home directory again:
	// the privileged command line can be typed by anyone.
	return b.Build(t, args[1], args[2:])
}

func (e *environment) privilegedRun(args []string) error {
	inv, err := e.invocation(args)
	if err != nil {
		return err
	}
	return inv.Exec(e.config.Runtime, os.Environ())
}
