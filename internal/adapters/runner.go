// Package adapters implements the executor capabilities on a Linux
// desktop by driving the usual command line tools.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"strings"

	"luna/internal/apperr"
)

// Runner executes external programs. Output waits for the program; Start
// detaches it.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
	Start(name string, args ...string) error
}

type Exec struct{}

func (Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return string(out), fmt.Errorf("%w: %s", err, msg)
		}
		return string(out), err
	}
	return string(out), nil
}

func (Exec) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("Detached process exited", "cmd", name, "error", err)
		}
	}()
	return nil
}

// commandErr classifies a runner failure. A missing tool will not appear
// on retry; a failing one may recover.
func commandErr(what string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return apperr.Wrap(apperr.SystemOperation, what+": tool not installed", err).Fatal().Notify()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.System(what, err)
}

// exitCode returns the exit status of a finished command, or -1.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
