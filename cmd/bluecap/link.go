package main

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/internal/linux"
	"github.com/bluecap/bluecap/libcapsule"
)

var linkCommand = cli.Command{
	Name:  "link",
	Usage: `link a capsule into a directory, making it the "." capsule there`,
	ArgsUsage: `<capsule> [directory]

Where "<capsule>" is the name of the capsule and "[directory]" defaults to the
current directory. "." then resolves to the capsule in the directory and all
directories below it that have no link of their own.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, minArgs); err != nil {
			return err
		}
		if err := checkArgs(context, 2, maxArgs); err != nil {
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
		dir, err := linkDir(context.Args().Get(1))
		if err != nil {
			return err
		}
		if err := libcapsule.Link(dir, res); err != nil {
			return err
		}
		logrus.Infof("linked capsule %s into %s", res.Name, dir)
		return nil
	},
}

var unlinkCommand = cli.Command{
	Name:  "unlink",
	Usage: "remove the capsule link of a directory",
	ArgsUsage: `[directory]

Where "[directory]" defaults to the current directory.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, maxArgs); err != nil {
			return err
		}
		dir, err := linkDir(context.Args().First())
		if err != nil {
			return err
		}
		return libcapsule.Unlink(dir)
	},
}

func linkDir(dir string) (string, error) {
	if dir == "" {
		return linux.Getwd()
	}
	return dir, nil
}
