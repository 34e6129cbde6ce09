package executor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"luna/internal/apperr"
	"luna/internal/planner"
)

const (
	searchURL         = "https://duckduckgo.com/?q="
	fileSearchLimit   = 5
	defaultVolumeStep = 10
)

func param(s planner.ActionStep, key string) (string, error) {
	v := strings.TrimSpace(s.Params[key])
	if v == "" {
		return "", apperr.Invalid(fmt.Sprintf("%s needs %s", s.Action, key))
	}
	return v, nil
}

func intParam(s planner.ActionStep, key string) (int, error) {
	v, err := param(s, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid(fmt.Sprintf("%s: %s is not a number: %q", s.Action, key, v))
	}
	return n, nil
}

func waitDuration(s planner.ActionStep) (time.Duration, error) {
	n, err := intParam(s, "duration")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, apperr.Invalid(fmt.Sprintf("negative wait: %d", n))
	}
	return time.Duration(n) * time.Second, nil
}

// dispatch performs one step through the matching capability.
func (x *execution) dispatch(ctx context.Context, s planner.ActionStep) (string, error) {
	switch s.Action {
	case planner.GetTime:
		return "It's " + x.now().Format("15:04"), nil
	case planner.GetDate:
		return "Today is " + x.now().Format("Monday, January 2, 2006"), nil
	case planner.Wait:
		d, err := waitDuration(s)
		if err != nil {
			return "", err
		}
		if err := sleep(ctx, d); err != nil {
			return "", err
		}
		return fmt.Sprintf("Waited %s", d), nil
	}

	if !x.caps.Has(planner.ResourceFor(s.Action)) {
		return "", apperr.New(apperr.SystemOperation, fmt.Sprintf("no capability for %s", s.Action)).Fatal()
	}

	switch s.Action {
	case planner.LaunchApp:
		name, err := param(s, "app_name")
		if err != nil {
			return "", err
		}
		return x.caps.Apps.Launch(ctx, name)

	case planner.CloseApp:
		name, err := param(s, "app_name")
		if err != nil {
			return "", err
		}
		return x.caps.Apps.Close(ctx, name)

	case planner.SearchWeb:
		q, err := param(s, "query")
		if err != nil {
			return "", err
		}
		return x.caps.Apps.LaunchWithArgs(ctx, x.browser, []string{searchURL + url.QueryEscape(q)})

	case planner.FindFile:
		return x.findFile(ctx, s)

	case planner.OpenFolder:
		folder, err := param(s, "folder")
		if err != nil {
			return "", err
		}
		return x.caps.Files.OpenFolder(ctx, folder)

	case planner.SystemControl:
		return x.system(ctx, s)

	case planner.VolumeControl:
		return x.volume(ctx, s)

	case planner.WindowManagement:
		return x.window(ctx, s)

	case planner.MediaControl:
		return x.media(ctx, s)

	case planner.TakeNote:
		text, err := param(s, "text")
		if err != nil {
			return "", err
		}
		return x.caps.Notes.TakeNote(ctx, text)

	case planner.CreateReminder:
		return x.reminder(ctx, s)

	case planner.AnswerQuestion:
		q, err := param(s, "query")
		if err != nil {
			return "", err
		}
		return x.caps.Answers.Answer(ctx, q)
	}
	return "", apperr.Invalid("unsupported action " + s.Action.String())
}

func (x *execution) findFile(ctx context.Context, s planner.ActionStep) (string, error) {
	name, err := param(s, "file_name")
	if err != nil {
		return "", err
	}
	paths, err := x.caps.Files.SearchByName(ctx, name, fileSearchLimit)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", apperr.FileMissing(name)
	}
	if s.Params["mode"] == "open" {
		return x.caps.Files.OpenFile(ctx, paths[0])
	}
	if len(paths) == 1 {
		return "Found " + paths[0], nil
	}
	return fmt.Sprintf("Found %d files, first is %s", len(paths), paths[0]), nil
}

func (x *execution) system(ctx context.Context, s planner.ActionStep) (string, error) {
	action, err := param(s, "action")
	if err != nil {
		return "", err
	}
	sys := x.caps.System
	switch action {
	case "mute", "unmute":
		return sys.ToggleMute(ctx)
	case "lock":
		return sys.Lock(ctx)
	case "sleep", "suspend":
		return sys.Suspend(ctx)
	case "shutdown", "shut down", "power off":
		return sys.Shutdown(ctx)
	case "restart", "reboot":
		return sys.Restart(ctx)
	case "brightness":
		level, err := intParam(s, "level")
		if err != nil {
			return "", err
		}
		return sys.SetBrightness(ctx, level)
	}
	return "", apperr.Invalid("unknown system action " + action)
}

func (x *execution) volume(ctx context.Context, s planner.ActionStep) (string, error) {
	if _, ok := s.Params["level"]; ok {
		level, err := intParam(s, "level")
		if err != nil {
			return "", err
		}
		return x.caps.System.SetVolume(ctx, level)
	}

	dir, err := param(s, "direction")
	if err != nil {
		return "", err
	}
	step := defaultVolumeStep
	if _, ok := s.Params["amount"]; ok {
		if step, err = intParam(s, "amount"); err != nil {
			return "", err
		}
	}
	switch dir {
	case "up":
		return x.caps.System.AdjustVolume(ctx, step)
	case "down":
		return x.caps.System.AdjustVolume(ctx, -step)
	}
	return "", apperr.Invalid("unknown volume direction " + dir)
}

func (x *execution) window(ctx context.Context, s planner.ActionStep) (string, error) {
	action, err := param(s, "action")
	if err != nil {
		return "", err
	}
	target := s.Params["app_name"]
	w := x.caps.Windows
	switch action {
	case "focus":
		return w.Focus(ctx, target)
	case "maximize":
		return w.Maximize(ctx, target)
	case "minimize", "minimise":
		return w.Minimize(ctx, target)
	case "close":
		return w.Close(ctx, target)
	}
	return "", apperr.Invalid("unknown window action " + action)
}

func (x *execution) media(ctx context.Context, s planner.ActionStep) (string, error) {
	action, err := param(s, "action")
	if err != nil {
		return "", err
	}
	m := x.caps.Media
	switch action {
	case "play", "pause", "resume":
		return m.PlayPause(ctx)
	case "stop":
		return m.Stop(ctx)
	case "next", "skip":
		return m.Next(ctx)
	case "previous", "back":
		return m.Previous(ctx)
	case "status":
		track, err := m.CurrentTrack(ctx)
		if err != nil {
			return m.Status(ctx)
		}
		return track, nil
	}
	return "", apperr.Invalid("unknown media action " + action)
}

func (x *execution) reminder(ctx context.Context, s planner.ActionStep) (string, error) {
	text, err := param(s, "text")
	if err != nil {
		return "", err
	}
	var due time.Time
	now := x.now()
	switch {
	case s.Params["delay"] != "":
		secs, err := intParam(s, "delay")
		if err != nil {
			return "", err
		}
		due = now.Add(time.Duration(secs) * time.Second)
	case s.Params["at"] != "":
		at, err := time.ParseInLocation("15:04", s.Params["at"], now.Location())
		if err != nil {
			return "", apperr.Invalid(fmt.Sprintf("bad reminder time %q", s.Params["at"]))
		}
		due = time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
		if !due.After(now) {
			due = due.AddDate(0, 0, 1)
		}
	}
	return x.caps.Notes.CreateReminder(ctx, text, due)
}
