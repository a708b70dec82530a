package sandbox

import (
	"os"
	"os/exec"

	"github.com/containerd/console"
	"github.com/sirupsen/logrus"

	"github.com/bluecap/bluecap/internal/linux"
)

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	_, err := console.ConsoleFromFile(f)
	return err == nil
}

// Exec replaces the current process with the runtime executing inv. It only
// returns on failure.
func (inv *Invocation) Exec(runtime string, env []string) error {
	path, err := exec.LookPath(runtime)
	if err != nil {
		return err
	}
	argv := inv.Argv(runtime)
	logrus.Debugf("executing %s %q", path, argv[1:])
	return linux.Exec(path, argv, env)
}
