package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bluecap/bluecap/libcapsule/identity"
)

// version must be set from the contents of VERSION file by go build's
// -X main.version= option in the Makefile.
var version = "unknown"

// gitCommit will be the hash that the binary was built from
// and will be populated by the Makefile
var gitCommit = ""

const usage = `container-backed capsules for the desktop

bluecap manages capsules: named, persistent sandbox configurations built on a
container image. Commands run in a capsule see the caller's home directory and
the capsule's persistence directories, and nothing else of the host.

Changing a capsule needs administrative rights, which bluecap requests through
the system authorization service. Trusted capsules run without asking.

To run a shell in a new capsule:

    # bluecap create dev registry.fedoraproject.org/fedora:latest
    # bluecap run dev

With --rootless, capsules are kept in the caller's home directory and no
rights are requested.`

func main() {
	// Export shims re-enter through the kernel's interpreter handling, before
	// anything else looks at the arguments.
	args, err := reenter(os.Args)
	if err != nil {
		fatal(err)
	}

	// If the command returns an error, cli takes upon itself to print
	// the error on cli.ErrWriter and exit.
	// Use our own writer here to ensure the log gets sent to the right location.
	cli.ErrWriter = &FatalWriter{cli.ErrWriter}
	if err := newApp().Run(args); err != nil {
		fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "bluecap"
	app.Usage = usage

	v := []string{version}
	if gitCommit != "" {
		v = append(v, "commit: "+gitCommit)
	}
	v = append(v, "spec: "+specs.Version)
	v = append(v, "go: "+runtime.Version())
	app.Version = strings.Join(v, "\n")

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "set the log file to write bluecap logs to (default is '/dev/stderr')",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "set the log format ('text' (default), or 'json')",
		},
		cli.StringFlag{
			Name:  "rootless",
			Value: "auto",
			Usage: "use the caller's own capsule store and never request rights ('true', 'false', or 'auto')",
		},
	}
	app.Commands = []cli.Command{
		createCommand,
		deleteCommand,
		exportCommand,
		infoCommand,
		linkCommand,
		listCommand,
		optionsCommand,
		persistenceCommand,
		privilegedCommand,
		runCommand,
		trustCommand,
		unlinkCommand,
	}
	app.Before = configLogrus
	return app
}

type FatalWriter struct {
	cliErrWriter io.Writer
}

func (f *FatalWriter) Write(p []byte) (n int, err error) {
	logrus.Error(string(p))
	if !logrusToStderr() {
		return f.cliErrWriter.Write(p)
	}
	return len(p), nil
}

func configLogrus(context *cli.Context) error {
	if verboseRequested(context) {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetReportCaller(true)
		// Shorten function and file names reported by the logger, by
		// trimming common "github.com/bluecap/bluecap" prefix.
		// This is only done for text formatter.
		_, file, _, _ := runtime.Caller(0)
		prefix := filepath.Dir(filepath.Dir(filepath.Dir(file))) + "/"
		logrus.SetFormatter(&logrus.TextFormatter{
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				function := strings.TrimPrefix(f.Function, "github.com/bluecap/bluecap/") + "()"
				fileLine := strings.TrimPrefix(f.File, prefix) + ":" + strconv.Itoa(f.Line)
				return function, fileLine
			},
		})
	}

	switch f := context.GlobalString("log-format"); f {
	case "":
		// do nothing
	case "text":
		// do nothing
	case "json":
		logrus.SetFormatter(new(logrus.JSONFormatter))
	default:
		return errors.New("invalid log-format: " + f)
	}

	if file := context.GlobalString("log"); file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o644)
		if err != nil {
			return err
		}
		logrus.SetOutput(f)
	}

	return nil
}

// verboseRequested reports whether debug logging was asked for on the
// command line, or forwarded from the unprivileged phase.
func verboseRequested(context *cli.Context) bool {
	return context.GlobalBool("verbose") || identity.FromEnvironment().Verbose
}
