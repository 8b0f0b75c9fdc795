// Package execx runs external commands on behalf of the orchestrator.
// Every run carries an explicit timeout; expiry is reported as a
// command failure distinct from a non-zero exit.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/forgestack/forge/internal/errors"
)

// Runner executes one external command and captures its output
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, err error)
}

// shellRunner runs commands directly (no shell interpolation)
type shellRunner struct {
	timeout time.Duration
}

// NewRunner creates a runner that bounds every command with timeout
func NewRunner(timeout time.Duration) Runner {
	return &shellRunner{timeout: timeout}
}

func (r *shellRunner) Run(ctx context.Context, command string) (string, string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", "", apperrors.NewCommandError("empty command", nil)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, fields[0], fields[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), apperrors.NewCommandError(
			fmt.Sprintf("command %q timed out after %s", command, r.timeout), runCtx.Err())
	}
	if err != nil {
		return stdout.String(), stderr.String(), apperrors.NewCommandError(
			fmt.Sprintf("command %q failed: %s", command, strings.TrimSpace(stderr.String())), err)
	}
	return stdout.String(), stderr.String(), nil
}
