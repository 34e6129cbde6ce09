// Package tts voices replies.
package tts

import (
	"context"
	log "log/slog"
)

// Log writes replies to the log instead of speaking them.
type Log struct{}

func (Log) Speak(_ context.Context, text string) error {
	if text != "" {
		log.Info("Reply", "text", text)
	}
	return nil
}
