package main

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule/dispatch"
)

var deleteCommand = cli.Command{
	Name:  "delete",
	Usage: "delete a capsule",
	ArgsUsage: `<capsule>

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory. The capsule's exports are removed and it loses
its trust. Its persistence directories are removed unless --keep-persistence
is given.`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "keep-persistence",
			Usage: "keep the capsule's persistence directories on the host",
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
		keep := strconv.FormatBool(context.Bool("keep-persistence"))
		dispatchAction(e, dispatch.ActDelete, []string{res.Name, keep})
		return nil
	},
}

func (e *environment) privilegedDelete(args []string) error {
	name := args[0]
	keep, err := boolArg("keep", args[1])
	if err != nil {
		return err
	}
	c, err := e.capsuleArg(name)
	if err != nil {
		return err
	}
	// The record goes first. A failure in the cleanup below leaves orphaned
	// shims or data, never a capsule without them.
	if err := e.store().Destroy(name); err != nil {
		return err
	}
	if err := e.exports().RemoveAll(name, c); err != nil {
		return err
	}
	if !e.identity.Rootless {
		s := e.syncer()
		trusted, err := s.IsTrusted(name)
		if err != nil {
			return err
		}
		if trusted {
			if err := s.SetTrust(name, false); err != nil {
				return err
			}
		}
	}
	if !keep {
		if err := e.persistence().RemoveAll(name); err != nil {
			return err
		}
	}
	logrus.Infof("deleted capsule %s", name)
	return nil
}
