package executor

import (
	"context"
	"time"

	"luna/internal/events"
	"luna/internal/planner"
)

// Every capability call returns a human readable result or an
// *apperr.Error that says whether a retry may help.

type Apps interface {
	Launch(ctx context.Context, name string) (string, error)
	LaunchWithArgs(ctx context.Context, name string, args []string) (string, error)
	Close(ctx context.Context, name string) (string, error)
}

type Files interface {
	SearchByName(ctx context.Context, query string, limit int) ([]string, error)
	OpenFile(ctx context.Context, path string) (string, error)
	OpenFolder(ctx context.Context, name string) (string, error)
}

type System interface {
	SetVolume(ctx context.Context, level int) (string, error)
	AdjustVolume(ctx context.Context, delta int) (string, error)
	ToggleMute(ctx context.Context) (string, error)
	Lock(ctx context.Context) (string, error)
	Suspend(ctx context.Context) (string, error)
	Shutdown(ctx context.Context) (string, error)
	Restart(ctx context.Context) (string, error)
	SetBrightness(ctx context.Context, level int) (string, error)
}

type Media interface {
	PlayPause(ctx context.Context) (string, error)
	Next(ctx context.Context) (string, error)
	Previous(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	Status(ctx context.Context) (string, error)
	CurrentTrack(ctx context.Context) (string, error)
}

// Windows methods act on the window of the named app, or the focused
// window when target is empty.
type Windows interface {
	Focus(ctx context.Context, target string) (string, error)
	Maximize(ctx context.Context, target string) (string, error)
	Minimize(ctx context.Context, target string) (string, error)
	Move(ctx context.Context, target string, x, y int) (string, error)
	Resize(ctx context.Context, target string, w, h int) (string, error)
	Close(ctx context.Context, target string) (string, error)
}

type Notes interface {
	TakeNote(ctx context.Context, text string) (string, error)
	// CreateReminder stores a reminder; a zero due time means undated.
	CreateReminder(ctx context.Context, text string, due time.Time) (string, error)
}

type Answers interface {
	Answer(ctx context.Context, query string) (string, error)
}

// Capabilities is the set of adapters the executor may call. Nil members
// are unavailable.
type Capabilities struct {
	Apps    Apps
	Files   Files
	System  System
	Media   Media
	Windows Windows
	Notes   Notes
	Answers Answers
}

// Has reports whether the capability named by a ResourceAvailable
// precondition is present.
func (c Capabilities) Has(resource string) bool {
	switch resource {
	case planner.ResourceApps:
		return c.Apps != nil
	case planner.ResourceFiles:
		return c.Files != nil
	case planner.ResourceSystem:
		return c.System != nil
	case planner.ResourceMedia:
		return c.Media != nil
	case planner.ResourceWindows:
		return c.Windows != nil
	case planner.ResourceNotes:
		return c.Notes != nil
	case planner.ResourceAnswers:
		return c.Answers != nil
	}
	return false
}

var resourceOrder = []string{
	planner.ResourceApps,
	planner.ResourceFiles,
	planner.ResourceSystem,
	planner.ResourceMedia,
	planner.ResourceWindows,
	planner.ResourceNotes,
	planner.ResourceAnswers,
}

// Announce publishes one CapabilityDetected per capability.
func (c Capabilities) Announce(bus *events.Bus) {
	for _, r := range resourceOrder {
		bus.Publish(events.CapabilityDetected{Capability: r, Available: c.Has(r)})
	}
}
