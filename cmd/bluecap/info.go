package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule/persistence"
)

var infoCommand = cli.Command{
	Name:  "info",
	Usage: "show the configuration of a capsule",
	ArgsUsage: `<capsule>

Where "<capsule>" is the name of the capsule, or "." for the capsule linked
into the current directory.`,
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
		c, err := e.store().Load(res.Name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", res.Name)
		fmt.Fprintf(w, "Record:\t%s\n", res.Path)
		fmt.Fprintf(w, "Mode:\t%s\n", modeName(res.Rootless))
		fmt.Fprintf(w, "Image:\t%s\n", c.Image)
		for _, o := range c.Options {
			fmt.Fprintf(w, "Option:\t%s\n", o)
		}
		m := e.persistence()
		for _, dir := range c.Persistence {
			host, err := m.HostPath(res.Name, dir)
			if err != nil {
				return err
			}
			size := "missing"
			if n, err := persistence.Usage(host); err == nil {
				size = units.HumanSize(float64(n))
			}
			fmt.Fprintf(w, "Persistence:\t%s -> %s (%s)\n", dir, host, size)
		}
		x := e.exports()
		for _, exposed := range c.Exports {
			fmt.Fprintf(w, "Export:\t%s\n", x.Path(exposed))
		}
		if !res.Rootless {
			s := e.syncer()
			trusted, err := s.IsTrusted(res.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Trusted:\t%t\n", trusted)
			if ok, err := s.InSync(); err != nil {
				logrus.Warnf("unable to check the authorization policy: %v", err)
			} else if !ok {
				logrus.Warnf("authorization policy %s does not match trust record %s", e.layout.PolicyFile, e.layout.TrustFile)
			}
		}
		return w.Flush()
	},
}
