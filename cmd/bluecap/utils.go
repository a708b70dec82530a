package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/export"
)

const (
	exactArgs = iota
	minArgs
	maxArgs
)

func checkArgs(context *cli.Context, expected, checkType int) error {
	var err error
	cmdName := context.Command.Name
	switch checkType {
	case exactArgs:
		if context.NArg() != expected {
			err = fmt.Errorf("%s: %q requires exactly %d argument(s)", os.Args[0], cmdName, expected)
		}
	case minArgs:
		if context.NArg() < expected {
			err = fmt.Errorf("%s: %q requires a minimum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	case maxArgs:
		if context.NArg() > expected {
			err = fmt.Errorf("%s: %q requires a maximum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	}

	if err != nil {
		fmt.Printf("Incorrect Usage.\n\n")
		_ = cli.ShowCommandHelp(context, cmdName)
		return err
	}
	return nil
}

func logrusToStderr() bool {
	l, ok := logrus.StandardLogger().Out.(*os.File)
	return ok && l.Fd() == os.Stderr.Fd()
}

// report writes err to the log, and to stderr unless the log already goes
// there.
func report(err error) {
	logrus.Error(err)
	if !logrusToStderr() {
		fmt.Fprintln(os.Stderr, err)
	}
}

// fatal reports err then exits the program with an exit status of 1.
func fatal(err error) {
	report(err)
	os.Exit(1)
}

// extractFlags takes the flags named in boolFlags and valueFlags out of args,
// the arguments that follow a capsule, and returns their values by name
// along with the remaining arguments. Only the "--name" forms are taken. A
// "--" ends the search; it is dropped and everything after it is kept.
func extractFlags(args, boolFlags, valueFlags []string) (map[string]string, []string, error) {
	flags := map[string]string{}
	rest := []string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}
		trimmed, ok := strings.CutPrefix(arg, "--")
		if !ok {
			rest = append(rest, arg)
			continue
		}
		name, value, hasValue := strings.Cut(trimmed, "=")
		switch {
		case slices.Contains(boolFlags, name):
			if !hasValue {
				value = "true"
			} else if _, err := strconv.ParseBool(value); err != nil {
				return nil, nil, libcapsule.NewValidationError("invalid value %q for --%s", value, name)
			}
		case slices.Contains(valueFlags, name):
			if !hasValue {
				if i+1 >= len(args) {
					return nil, nil, libcapsule.NewValidationError("--%s requires a value", name)
				}
				i++
				value = args[i]
			}
		default:
			rest = append(rest, arg)
			continue
		}
		flags[name] = value
	}
	return flags, rest, nil
}

// boolFlag is the value of the boolean flag name, given either before the
// capsule or among flags extracted after it.
func boolFlag(context *cli.Context, flags map[string]string, name string) bool {
	if v, ok := flags[name]; ok {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return context.Bool(name)
}

// stringFlag is the value of the flag name, given either before the capsule
// or among flags extracted after it.
func stringFlag(context *cli.Context, flags map[string]string, name string) string {
	if v, ok := flags[name]; ok {
		return v
	}
	return context.String(name)
}

// parseBoolOrAuto returns (nil, nil) if s is empty or "auto"
func parseBoolOrAuto(s string) (*bool, error) {
	if s == "" || strings.ToLower(s) == "auto" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	return &b, err
}

// reenter rewrites the command line of an export shim into the run request
// it stands for. The kernel starts a shim as
//
//	bluecap --bluecap-reenter=<capsule> <shim> [args...]
//
// Any other command line is returned unchanged.
func reenter(args []string) ([]string, error) {
	if len(args) < 3 {
		return args, nil
	}
	capsule, rootless, ok := export.ParseMarker(args[1])
	if !ok {
		return args, nil
	}
	shim, err := export.ReadShim(args[2])
	if err != nil {
		return nil, err
	}
	if shim.Capsule != capsule || shim.Rootless != rootless {
		return nil, fmt.Errorf("export shim %s: interpreter line does not match its contents", args[2])
	}
	out := []string{args[0]}
	if rootless {
		out = append(out, "--rootless=true")
	}
	out = append(out, "run", "--", capsule)
	out = append(out, shim.Args...)
	return append(out, args[3:]...), nil
}
