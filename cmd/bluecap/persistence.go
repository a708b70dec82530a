package main

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule/dispatch"
	"github.com/bluecap/bluecap/libcapsule/persistence"
)

var persistenceCommand = cli.Command{
	Name:  "persistence",
	Usage: "add or remove a persistence directory of a capsule",
	ArgsUsage: `<capsule> <directory>

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory, and "<directory>" an absolute path inside the
sandbox whose contents outlive each run. It is backed by a directory owned by
the caller on the host.

EXAMPLE:

       # bluecap persistence dev /var/cache/dnf`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "remove",
			Usage: "remove the directory instead of adding it",
		},
		cli.BoolFlag{
			Name:  "keep",
			Usage: "with --remove, keep the backing directory on the host",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 2, exactArgs); err != nil {
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
		dir, err := persistence.CheckLogicalDir(context.Args().Get(1))
		if err != nil {
			return err
		}
		mode := "add"
		if context.Bool("remove") {
			mode = "remove"
		}
		keep := strconv.FormatBool(context.Bool("keep"))
		dispatchAction(e, dispatch.ActPersistence, []string{res.Name, mode, dir, keep})
		return nil
	},
}

func (e *environment) privilegedPersistence(args []string) error {
	name, dir := args[0], args[2]
	remove, err := modeArg(args[1])
	if err != nil {
		return err
	}
	keep, err := boolArg("keep", args[3])
	if err != nil {
		return err
	}
	if _, err := e.capsuleArg(name); err != nil {
		return err
	}
	m := e.persistence()
	if remove {
		return m.Remove(name, dir, keep)
	}
	if err := e.layout.EnsureDirs(); err != nil {
		return err
	}
	hostPath, err := m.Add(name, dir)
	if err != nil {
		return err
	}
	logrus.Infof("capsule %s: %s is backed by %s", name, dir, hostPath)
	return nil
}
