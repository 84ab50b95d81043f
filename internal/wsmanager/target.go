package wsmanager

import (
	"errors"
	"fmt"
	"regexp"
)

// Target identifies the remote container whose logs a session streams.
type Target struct {
	Host      string
	Username  string
	Password  string
	Container string
}

// containerNamePattern matches the charset Docker allows for container
// names. Validated before the name is interpolated into a shell command.
var containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks that the required target fields are present and that
// the container name is safe to place in a command line.
func (t Target) Validate() error {
	if t.Host == "" {
		return errors.New("missing required field: ip")
	}
	if t.Username == "" {
		return errors.New("missing required field: username")
	}
	if t.Container == "" {
		return errors.New("missing required field: container")
	}
	if !containerNamePattern.MatchString(t.Container) {
		return fmt.Errorf("invalid container name %q", t.Container)
	}
	return nil
}
