package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type PlaybackStream struct {
	ID      int
	Volume  int
	AppName string
}

// Mixer lists and adjusts the volume of other applications' playback.
type Mixer interface {
	Streams(ctx context.Context) ([]PlaybackStream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type fade struct {
	id   int
	from int
	to   int
}

// Ducker lowers every playback stream except its own while the assistant
// listens, then restores the original levels.
type Ducker struct {
	mixer     Mixer
	selfNames []string
	minVolume int
	factor    float64
	duration  time.Duration

	mu       sync.Mutex
	active   bool
	original map[int]int
}

func NewDucker(m Mixer, selfNames []string, factor float64, minVolume int, duration time.Duration) *Ducker {
	return &Ducker{
		mixer:     m,
		selfNames: slices.Clone(selfNames),
		minVolume: min(max(minVolume, 0), 150),
		factor:    factor,
		duration:  duration,
		original:  make(map[int]int),
	}
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.original = make(map[int]int)
	var fades []fade
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := math.Round(float64(s.Volume) * d.factor)
		to = math.Min(math.Max(to, float64(d.minVolume)), 150)

		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: int(to)})
	}

	if err := d.run(ctx, fades); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back. Streams that appeared after Duck are
// left untouched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var fades []fade
	for _, s := range streams {
		orig, ok := d.original[s.ID]
		if !ok || d.isSelf(s) {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.run(ctx, fades); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s PlaybackStream) bool {
	return slices.Contains(d.selfNames, s.AppName)
}

func (d *Ducker) run(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(d.duration/minStep), 1)
	if d.duration <= 0 {
		steps = 1
	}
	stepDur := d.duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}
		if i == steps || stepDur <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stepDur):
		}
	}
	return nil
}

// Pactl drives PulseAudio/PipeWire sink inputs through pactl.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]PlaybackStream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), 150)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}

func parseSinkInputs(text string) []PlaybackStream {
	parts := strings.Split(text, "Sink Input #")
	var res []PlaybackStream

	for _, block := range parts[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := PlaybackStream{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}
			// application.name = "Firefox"
			if rest, ok := strings.CutPrefix(line, "application.name ="); ok && s.AppName == "" {
				s.AppName = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}
