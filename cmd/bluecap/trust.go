package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
)

var trustCommand = cli.Command{
	Name:  "trust",
	Usage: "let a capsule run without asking for authorization",
	ArgsUsage: `<capsule>

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory. Runs of a trusted capsule by a local, active user
are authorized without a prompt. Rootless capsules need no trust.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "untrust",
			Usage: "withdraw the capsule's trust",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		res, err := e.resolve(context.Args().First(), true)
		if err != nil {
			return err
		}
		if res.Rootless {
			return libcapsule.NewValidationError("rootless capsule %s runs without authorization already", res.Name)
		}
		mode := "trust"
		if context.Bool("untrust") {
			mode = "untrust"
		}
		dispatchAction(e, dispatch.ActTrust, []string{res.Name, mode})
		return nil
	},
}

func (e *environment) privilegedTrust(args []string) error {
	name := args[0]
	var trusted bool
	switch args[1] {
	case "trust":
		trusted = true
	case "untrust":
	default:
		return libcapsule.NewValidationError("mode must be trust or untrust, got %q", args[1])
	}
	if e.identity.Rootless {
		return libcapsule.NewValidationError("trust does not apply to rootless capsules")
	}
	if _, err := e.capsuleArg(name); err != nil {
		return err
	}
	if err := e.syncer().SetTrust(name, trusted); err != nil {
		return err
	}
	if trusted {
		logrus.Infof("capsule %s is trusted", name)
	} else {
		logrus.Infof("capsule %s is no longer trusted", name)
	}
	return nil
}
