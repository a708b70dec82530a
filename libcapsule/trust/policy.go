package trust

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"text/template"

	"github.com/bluecap/bluecap/libcapsule"
	"github.com/bluecap/bluecap/libcapsule/identity"
)

const trustedPrefix = "    var trusted = "

var policyTemplate = template.Must(template.New("policy").Parse(`// Generated by bluecap. Rewritten in full on every trust change; do not edit.
polkit.addRule(function(action, subject) {
    if (action.id !== "org.freedesktop.policykit.exec" ||
        action.lookup("program") !== {{.Program}}) {
        return polkit.Result.NOT_HANDLED;
    }
` + trustedPrefix + `{{.Trusted}};
    var namePattern = /{{.NamePattern}}/;
    var command = /^{{.Command}} (\S+) /.exec(action.lookup("command_line") + " ");
    if (command === null) {
        return polkit.Result.NOT_HANDLED;
    }
    var name = command[1];
    if (!namePattern.test(name)) {
        return polkit.Result.NOT_HANDLED;
    }
    if (subject.local && subject.active && trusted[name] === true) {
        return polkit.Result.YES;
    }
    return polkit.Result.NOT_HANDLED;
});
`))

// PolicyInput describes the command line a trusted run is recognized by:
// Program, followed by the forwarded identity context, followed by
// RunCommand and the capsule name.
type PolicyInput struct {
	Program    string
	RunCommand []string
	Trusted    []string
}

// identityPattern matches the identity context forwarded by a non-rootless
// caller, in the order of [identity.Context.Environ]. Nothing else may be
// set on a trusted command line.
var identityPattern = identity.EnvOriginalUID + `=\d+ ` +
	identity.EnvRootless + `=false ` +
	identity.EnvVerbose + `=(?:true|false) `

// jsRegexp quotes s for use inside a JavaScript regular expression literal.
func jsRegexp(s string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(s), "/", `\/`)
}

// GeneratePolicy renders the authorization policy for in. Every trusted name
// must pass libcapsule.ValidateName; nothing is rendered otherwise.
func GeneratePolicy(in PolicyInput) ([]byte, error) {
	lookup := make(map[string]bool, len(in.Trusted))
	for _, name := range in.Trusted {
		if err := libcapsule.ValidateName(name); err != nil {
			return nil, err
		}
		lookup[name] = true
	}
	trusted, err := json.Marshal(lookup)
	if err != nil {
		return nil, err
	}
	program, err := json.Marshal(in.Program)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(in.RunCommand))
	for i, p := range in.RunCommand {
		parts[i] = jsRegexp(p)
	}
	command := jsRegexp(in.Program) + " " + identityPattern + strings.Join(parts, " ")

	var buf bytes.Buffer
	err = policyTemplate.Execute(&buf, map[string]string{
		"Program":     string(program),
		"Trusted":     string(trusted),
		"NamePattern": libcapsule.NamePattern,
		"Command":     command,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errNoLookup = errors.New("policy has no trusted lookup")

// TrustedFromPolicy extracts the trusted lookup embedded in a generated
// policy.
func TrustedFromPolicy(policy []byte) (map[string]bool, error) {
	s := bufio.NewScanner(bytes.NewReader(policy))
	for s.Scan() {
		line, ok := strings.CutPrefix(s.Text(), trustedPrefix)
		if !ok {
			continue
		}
		var lookup map[string]bool
		if err := json.Unmarshal([]byte(strings.TrimSuffix(line, ";")), &lookup); err != nil {
			return nil, err
		}
		return lookup, nil
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nil, errNoLookup
}
