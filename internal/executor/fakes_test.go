package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"luna/internal/apperr"
)

// script returns queued errors in order and succeeds once they run out.
type script struct {
	mu    sync.Mutex
	errs  []error
	calls []string
	// block makes every call wait for the context or release.
	block   bool
	release chan struct{}
	started chan string
}

func (s *script) call(ctx context.Context, what string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, what)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	block, release, started := s.block, s.release, s.started
	s.mu.Unlock()

	if started != nil {
		started <- what
	}
	if block {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
		}
	}
	if err != nil {
		return "", err
	}
	return "done: " + what, nil
}

func (s *script) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeApps struct{ *script }

func (f fakeApps) Launch(ctx context.Context, name string) (string, error) {
	return f.call(ctx, "launch "+name)
}

func (f fakeApps) LaunchWithArgs(ctx context.Context, name string, args []string) (string, error) {
	return f.call(ctx, fmt.Sprintf("launch %s %v", name, args))
}

func (f fakeApps) Close(ctx context.Context, name string) (string, error) {
	return f.call(ctx, "close "+name)
}

type fakeSystem struct{ *script }

func (f fakeSystem) SetVolume(ctx context.Context, l int) (string, error) {
	return f.call(ctx, fmt.Sprintf("volume %d", l))
}

func (f fakeSystem) AdjustVolume(ctx context.Context, d int) (string, error) {
	return f.call(ctx, fmt.Sprintf("adjust %d", d))
}

func (f fakeSystem) ToggleMute(ctx context.Context) (string, error) { return f.call(ctx, "mute") }
func (f fakeSystem) Lock(ctx context.Context) (string, error)       { return f.call(ctx, "lock") }
func (f fakeSystem) Suspend(ctx context.Context) (string, error)    { return f.call(ctx, "suspend") }
func (f fakeSystem) Shutdown(ctx context.Context) (string, error)   { return f.call(ctx, "shutdown") }
func (f fakeSystem) Restart(ctx context.Context) (string, error)    { return f.call(ctx, "restart") }

func (f fakeSystem) SetBrightness(ctx context.Context, l int) (string, error) {
	return f.call(ctx, fmt.Sprintf("brightness %d", l))
}

type fakeMedia struct{ *script }

func (f fakeMedia) PlayPause(ctx context.Context) (string, error)    { return f.call(ctx, "playpause") }
func (f fakeMedia) Next(ctx context.Context) (string, error)         { return f.call(ctx, "next") }
func (f fakeMedia) Previous(ctx context.Context) (string, error)     { return f.call(ctx, "previous") }
func (f fakeMedia) Stop(ctx context.Context) (string, error)         { return f.call(ctx, "stop") }
func (f fakeMedia) Status(ctx context.Context) (string, error)       { return f.call(ctx, "status") }
func (f fakeMedia) CurrentTrack(ctx context.Context) (string, error) { return f.call(ctx, "track") }

type fakeNotes struct{ *script }

func (f fakeNotes) TakeNote(ctx context.Context, text string) (string, error) {
	return f.call(ctx, "note "+text)
}

func (f fakeNotes) CreateReminder(ctx context.Context, text string, due time.Time) (string, error) {
	return f.call(ctx, fmt.Sprintf("remind %s %s", text, due.Format(time.RFC3339)))
}

func recoverable(msg string) error { return apperr.System(msg, nil) }

func fatal(msg string) error { return apperr.AppMissing(msg) }
