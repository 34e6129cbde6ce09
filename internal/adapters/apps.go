package adapters

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"luna/internal/apperr"
)

type Apps struct {
	known *KnownApps
	run   Runner
}

func NewApps(known *KnownApps, run Runner) *Apps {
	return &Apps{known: known, run: run}
}

func (a *Apps) Launch(ctx context.Context, name string) (string, error) {
	m, ok := a.known.Resolve(name)
	if !ok {
		return "", apperr.AppMissing(name)
	}
	if err := a.run.Start(m.Command); err != nil {
		return "", launchErr(name, m.Command, err)
	}
	return fmt.Sprintf("Opening %s", m.Alias), nil
}

// LaunchWithArgs starts a known app or, failing that, the named program.
func (a *Apps) LaunchWithArgs(ctx context.Context, name string, args []string) (string, error) {
	cmd := name
	if m, ok := a.known.Resolve(name); ok {
		cmd = m.Command
	}
	if err := a.run.Start(cmd, args...); err != nil {
		return "", launchErr(name, cmd, err)
	}
	return fmt.Sprintf("Opening %s", name), nil
}

func (a *Apps) Close(ctx context.Context, name string) (string, error) {
	m, ok := a.known.Resolve(name)
	if !ok {
		return "", apperr.AppMissing(name)
	}
	_, err := a.run.Output(ctx, "pkill", "-x", filepath.Base(m.Command))
	switch {
	case err == nil:
		return fmt.Sprintf("Closed %s", m.Alias), nil
	case exitCode(err) == 1:
		// nothing matched
		return "", apperr.New(apperr.AppClose, m.Alias+" is not running").WithSubject(name).Fatal()
	}
	return "", commandErr("close "+m.Alias, err)
}

func launchErr(name, cmd string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return apperr.AppMissing(name)
	}
	return apperr.Wrap(apperr.AppLaunch, "launch "+cmd, err).WithSubject(name)
}
