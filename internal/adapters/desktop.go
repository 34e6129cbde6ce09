package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"luna/internal/apperr"
)

const defaultSink = "@DEFAULT_SINK@"

// System drives PulseAudio, logind and brightnessctl.
type System struct{ run Runner }

func NewSystem(run Runner) *System { return &System{run: run} }

func (s *System) exec(ctx context.Context, done string, name string, args ...string) (string, error) {
	if _, err := s.run.Output(ctx, name, args...); err != nil {
		return "", commandErr(name+" "+strings.Join(args, " "), err)
	}
	return done, nil
}

func percentArg(v, lo, hi int, what string) error {
	if v < lo || v > hi {
		return apperr.Invalid(fmt.Sprintf("%s %d outside %d..%d", what, v, lo, hi))
	}
	return nil
}

func (s *System) SetVolume(ctx context.Context, level int) (string, error) {
	if err := percentArg(level, 0, 100, "volume"); err != nil {
		return "", err
	}
	return s.exec(ctx, fmt.Sprintf("Volume set to %d percent", level),
		"pactl", "set-sink-volume", defaultSink, strconv.Itoa(level)+"%")
}

func (s *System) AdjustVolume(ctx context.Context, delta int) (string, error) {
	if err := percentArg(delta, -100, 100, "volume change"); err != nil {
		return "", err
	}
	arg := fmt.Sprintf("%+d%%", delta)
	done := "Volume up"
	if delta < 0 {
		done = "Volume down"
	}
	return s.exec(ctx, done, "pactl", "set-sink-volume", defaultSink, arg)
}

func (s *System) ToggleMute(ctx context.Context) (string, error) {
	return s.exec(ctx, "Toggled mute", "pactl", "set-sink-mute", defaultSink, "toggle")
}

func (s *System) Lock(ctx context.Context) (string, error) {
	return s.exec(ctx, "Screen locked", "loginctl", "lock-session")
}

func (s *System) Suspend(ctx context.Context) (string, error) {
	return s.exec(ctx, "Suspending", "systemctl", "suspend")
}

func (s *System) Shutdown(ctx context.Context) (string, error) {
	return s.exec(ctx, "Shutting down", "systemctl", "poweroff")
}

func (s *System) Restart(ctx context.Context) (string, error) {
	return s.exec(ctx, "Restarting", "systemctl", "reboot")
}

func (s *System) SetBrightness(ctx context.Context, level int) (string, error) {
	if err := percentArg(level, 0, 100, "brightness"); err != nil {
		return "", err
	}
	return s.exec(ctx, fmt.Sprintf("Brightness set to %d percent", level),
		"brightnessctl", "set", strconv.Itoa(level)+"%")
}

// Media drives MPRIS players through playerctl.
type Media struct{ run Runner }

func NewMedia(run Runner) *Media { return &Media{run: run} }

func (m *Media) ctl(ctx context.Context, args ...string) (string, error) {
	out, err := m.run.Output(ctx, "playerctl", args...)
	if err != nil {
		if strings.Contains(err.Error(), "No players found") {
			return "", apperr.Wrap(apperr.SystemOperation, "no media player is running", err).Fatal()
		}
		return "", commandErr("playerctl "+strings.Join(args, " "), err)
	}
	return strings.TrimSpace(out), nil
}

func (m *Media) simple(ctx context.Context, done, cmd string) (string, error) {
	if _, err := m.ctl(ctx, cmd); err != nil {
		return "", err
	}
	return done, nil
}

func (m *Media) PlayPause(ctx context.Context) (string, error) {
	return m.simple(ctx, "Toggled playback", "play-pause")
}

func (m *Media) Next(ctx context.Context) (string, error) { return m.simple(ctx, "Next track", "next") }

func (m *Media) Previous(ctx context.Context) (string, error) {
	return m.simple(ctx, "Previous track", "previous")
}

func (m *Media) Stop(ctx context.Context) (string, error) { return m.simple(ctx, "Stopped", "stop") }

func (m *Media) Status(ctx context.Context) (string, error) { return m.ctl(ctx, "status") }

func (m *Media) CurrentTrack(ctx context.Context) (string, error) {
	out, err := m.ctl(ctx, "metadata", "--format", "{{artist}} - {{title}}")
	if err != nil {
		return "", err
	}
	if strings.Trim(out, " -") == "" {
		return "", apperr.New(apperr.SystemOperation, "no track metadata").Fatal()
	}
	return "Playing " + out, nil
}

// Windows drives an EWMH window manager through wmctrl.
type Windows struct{ run Runner }

func NewWindows(run Runner) *Windows { return &Windows{run: run} }

func windowRef(target string) string {
	if strings.TrimSpace(target) == "" {
		return ":ACTIVE:"
	}
	return target
}

func (w *Windows) wmctrl(ctx context.Context, done string, args ...string) (string, error) {
	if _, err := w.run.Output(ctx, "wmctrl", args...); err != nil {
		if exitCode(err) == 1 {
			return "", apperr.New(apperr.SystemOperation, "no matching window").Fatal()
		}
		return "", commandErr("wmctrl "+strings.Join(args, " "), err)
	}
	return done, nil
}

func (w *Windows) Focus(ctx context.Context, target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "Window focused", nil
	}
	return w.wmctrl(ctx, "Switched to "+target, "-a", target)
}

func (w *Windows) Maximize(ctx context.Context, target string) (string, error) {
	return w.wmctrl(ctx, "Window maximized", "-r", windowRef(target), "-b", "add,maximized_vert,maximized_horz")
}

func (w *Windows) Minimize(ctx context.Context, target string) (string, error) {
	return w.wmctrl(ctx, "Window minimized", "-r", windowRef(target), "-b", "add,hidden")
}

func (w *Windows) Move(ctx context.Context, target string, x, y int) (string, error) {
	return w.wmctrl(ctx, fmt.Sprintf("Window moved to %d,%d", x, y), "-r", windowRef(target), "-e", fmt.Sprintf("0,%d,%d,-1,-1", x, y))
}

func (w *Windows) Resize(ctx context.Context, target string, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", apperr.Invalid(fmt.Sprintf("window size %dx%d", width, height))
	}
	return w.wmctrl(ctx, fmt.Sprintf("Window resized to %dx%d", width, height), "-r", windowRef(target), "-e", fmt.Sprintf("0,-1,-1,%d,%d", width, height))
}

func (w *Windows) Close(ctx context.Context, target string) (string, error) {
	return w.wmctrl(ctx, "Window closed", "-c", windowRef(target))
}
