package adapters

import (
	"context"
	"strings"
	"sync"
)

type fakeRunner struct {
	mu      sync.Mutex
	cmds    []string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) record(name string, args []string) string {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.cmds = append(f.cmds, line)
	f.mu.Unlock()
	return line
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	line := f.record(name, args)
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.outputs[line], nil
}

func (f *fakeRunner) Start(name string, args ...string) error {
	f.record(name, args)
	return f.errs[name]
}

func (f *fakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}
