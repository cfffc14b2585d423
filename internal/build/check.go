// Package build runs external tools over generated sources.
package build

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// DefaultCheckTimeout bounds a check command when none is configured.
const DefaultCheckTimeout = 30 * time.Second

// allowedCommands lists the tools a check step may run.
var allowedCommands = map[string]bool{
	"go":          true,
	"gofmt":       true,
	"staticcheck": true,
}

// CommandCheck runs a configured command, typically `go vet ./views`,
// over written generated sources.
type CommandCheck struct {
	command string
	args    []string
	dir     string
	timeout time.Duration
}

// NewCommandCheck parses a command line into a check run in dir. Fields
// are split on whitespace; no shell is involved.
func NewCommandCheck(commandLine, dir string, timeout time.Duration) (*CommandCheck, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("check command cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	cc := &CommandCheck{command: fields[0], args: fields[1:], dir: dir, timeout: timeout}
	if err := cc.validateCommand(); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}
	return cc, nil
}

// String returns the command line.
func (cc *CommandCheck) String() string {
	return strings.Join(append([]string{cc.command}, cc.args...), " ")
}

// Run executes the check and returns its combined output. A nonzero exit
// is an error carrying the output.
func (cc *CommandCheck) Run(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cc.command, cc.args...)
	cmd.Dir = cc.dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s timed out after %s: %w", cc, cc.timeout, ctx.Err())
		}
		return output, fmt.Errorf("%s failed: %w\nOutput: %s", cc, err, output)
	}
	return output, nil
}

// validateCommand rejects commands outside the allowlist and arguments
// that could be interpreted by a shell or escape the working directory.
func (cc *CommandCheck) validateCommand() error {
	if !allowedCommands[cc.command] {
		return fmt.Errorf("command '%s' is not allowed", cc.command)
	}
	for _, arg := range cc.args {
		if err := validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}

func validateArgument(arg string) error {
	dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'"}
	for _, char := range dangerous {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}
	for _, r := range arg {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Errorf("contains non-printable or non-ASCII character %U", r)
		}
	}
	for _, segment := range strings.Split(filepath.ToSlash(arg), "/") {
		if segment == ".." {
			return fmt.Errorf("contains path traversal: %s", arg)
		}
	}
	if filepath.IsAbs(arg) {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}
	return nil
}
