package audio

import (
	"context"
	log "log/slog"
	"time"

	"luna/internal/apperr"
)

// RecordCommand captures one utterance: pre-roll from the ring, then frames
// from the channel until the trailing window goes quiet (once MinUtterance
// has passed) or maxDur elapses, then post-roll from the ring.
func (c *Capture) RecordCommand(ctx context.Context, maxDur time.Duration) ([]float32, error) {
	if !c.Running() {
		return nil, apperr.New(apperr.AudioCapture, "capture is not running")
	}
	if maxDur <= 0 {
		maxDur = 10 * time.Second
	}

	rate := c.SampleRate()
	stale := c.DiscardPending()

	out := make([]float32, 0, int(maxDur.Seconds()*float64(rate)))
	out = append(out, c.ring.Last(int(c.cfg.PreRoll.Milliseconds()), rate)...)
	pre := len(out)

	window := make([]float32, max(1, int(c.cfg.Trailing.Seconds()*float64(rate))))
	tick := time.NewTicker(c.cfg.Trailing / 2)
	defer tick.Stop()
	deadline := time.NewTimer(maxDur)
	defer deadline.Stop()

	start := time.Now()
	reason := "silence"

loop:
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case f := <-c.frames:
			out = append(out, f...)
			c.Release(f)
		case <-tick.C:
		case <-deadline.C:
			reason = "max duration"
			break loop
		}

		if time.Since(start) < c.cfg.MinUtterance {
			continue
		}
		if n := c.ring.LastInto(window); n == len(window) && RMS(window) < c.cfg.SilenceThreshold {
			break loop
		}
	}

	if c.cfg.PostRoll > 0 {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(c.cfg.PostRoll):
		}
		c.DiscardPending()
		out = append(out, c.ring.Last(int(c.cfg.PostRoll.Milliseconds()), rate)...)
	}

	log.Debug("Utterance recorded",
		"samples", len(out),
		"pre_roll", pre,
		"stale_frames", stale,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"stop", reason)

	return out, nil
}

