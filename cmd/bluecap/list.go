package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"
)

const formatOptions = `table or json`

type capsuleState struct {
	Name    string `json:"name"`
	Image   string `json:"image"`
	Mode    string `json:"mode"`
	Trusted bool   `json:"trusted"`
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "lists capsules",
	ArgsUsage: `

The capsules listed are those of the active mode: the global store, or with
--rootless the caller's own.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: `select one of: ` + formatOptions,
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "display only capsule names",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		e, err := newEnvironment(context)
		if err != nil {
			return err
		}
		s, err := e.getCapsules()
		if err != nil {
			return err
		}

		if context.Bool("quiet") {
			for _, item := range s {
				fmt.Println(item.Name)
			}
			return nil
		}

		switch context.String("format") {
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
			fmt.Fprint(w, "NAME\tIMAGE\tMODE\tTRUSTED\n")
			for _, item := range s {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", item.Name, item.Image, item.Mode, item.Trusted)
			}
			return w.Flush()
		case "json":
			return json.NewEncoder(os.Stdout).Encode(s)
		default:
			return fmt.Errorf("invalid format option")
		}
	},
}

func (e *environment) getCapsules() ([]capsuleState, error) {
	st := e.store()
	names, err := st.List()
	if err != nil {
		return nil, err
	}
	var trusted map[string]bool
	if !e.identity.Rootless {
		r, err := e.syncer().Load()
		if err != nil {
			return nil, err
		}
		trusted = make(map[string]bool, len(r.Trusted))
		for _, name := range r.Trusted {
			trusted[name] = true
		}
	}
	s := []capsuleState{}
	for _, name := range names {
		c, err := st.Load(name)
		if err != nil {
			// The capsule may have been deleted since the listing.
			fmt.Fprintf(os.Stderr, "load capsule %s: %v\n", name, err)
			continue
		}
		s = append(s, capsuleState{
			Name:    name,
			Image:   c.Image,
			Mode:    modeName(st.Rootless),
			Trusted: trusted[name],
		})
	}
	return s, nil
}
