package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/dispatch"
)

var createCommand = cli.Command{
	Name:  "create",
	Usage: "create a capsule",
	ArgsUsage: `<capsule> <image>

Where "<capsule>" is the name of the new capsule and "<image>" the container
image it is built on. The capsule starts with the default options of
/etc/bluecap/defaults.json.

EXAMPLE:

       # bluecap create dev registry.fedoraproject.org/fedora:latest`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 2, exactArgs); err != nil {
			return err
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		res, err := e.resolve(context.Args().Get(0), false)
		if err != nil {
			return err
		}
		image := context.Args().Get(1)
		if image == "" {
			return libcapsule.NewValidationError("an image is required")
		}
		dispatchAction(e, dispatch.ActCreate, []string{res.Name, image})
		return nil
	},
}

func (e *environment) privilegedCreate(args []string) error {
	name, image := args[0], args[1]
	if image == "" {
		return libcapsule.NewValidationError("an image is required")
	}
	if err := e.layout.EnsureDirs(); err != nil {
		return err
	}
	defaults, err := libcapsule.LoadDefaults(e.layout.DefaultsFile)
	if err != nil {
		return err
	}
	if _, err := e.store().Create(name, image, defaults); err != nil {
		return err
	}
	logrus.Infof("created capsule %s from %s", name, image)
	return nil
}
