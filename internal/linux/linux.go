// Package linux wraps the few system calls bluecap makes directly.
package linux

import (
	"os"

	"golang.org/x/sys/unix"
)

// Exec wraps [unix.Exec]. On success it does not return: the calling
// process image is replaced.
func Exec(cmd string, args []string, env []string) error {
	err := retryOnEINTR(func() error {
		return unix.Exec(cmd, args, env)
	})
	return &os.PathError{Op: "exec", Path: cmd, Err: err}
}

// Getwd wraps [unix.Getwd].
func Getwd() (wd string, err error) {
	wd, err = retryOnEINTR2(unix.Getwd)
	if err != nil {
		return "", os.NewSyscallError("getwd", err)
	}
	return wd, nil
}
