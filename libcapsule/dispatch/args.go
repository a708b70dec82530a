package dispatch

import (
	"strings"

	"github.com/bluecap/bluecap/internal/pathrs"
	"github.com/bluecap/bluecap/libcapsule"
)

// SplitAtCapsule splits the raw arguments of a run request at the capsule
// argument: the first token that is not an option, or the token after "--".
// Everything following the capsule is the sandboxed command line and is
// returned untouched, options included.
func SplitAtCapsule(raw []string) (options []string, capsule string, command []string, err error) {
	for i, arg := range raw {
		if arg == "--" {
			if i+1 >= len(raw) {
				break
			}
			return raw[:i], raw[i+1], raw[i+2:], nil
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			return raw[:i], arg, raw[i+1:], nil
		}
	}
	return nil, "", nil, libcapsule.NewValidationError("a capsule is required")
}

// CheckContainment verifies that dir is home or below it. It runs before
// escalation, with home taken from the original identity.
func CheckContainment(home, dir string) error {
	if !pathrs.IsLexicallyInRoot(home, dir) {
		return &libcapsule.ContainmentError{Dir: dir, Home: home}
	}
	return nil
}
