package events

import (
	"context"
	log "log/slog"
	"time"

	"luna/pkg/protocol"
)

type FrameWriter interface {
	Write(ctx context.Context, payload []byte) error
}

// Bridge forwards envelopes to a hub. The bus handler only enqueues; a
// separate goroutine encodes and writes, so a slow hub never stalls the bus.
type Bridge struct {
	from  string
	out   FrameWriter
	queue chan Envelope
}

func NewBridge(from string, out FrameWriter, depth int) *Bridge {
	if depth <= 0 {
		depth = 256
	}
	return &Bridge{from: from, out: out, queue: make(chan Envelope, depth)}
}

// Run subscribes to b and forwards until ctx is done.
func (br *Bridge) Run(ctx context.Context, b *Bus, types ...string) {
	stop := b.Subscribe(types, func(env Envelope) {
		select {
		case br.queue <- env:
		default:
			log.Debug("Bridge queue full, dropping", "type", env.Event.Type())
		}
	})
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-br.queue:
			br.forward(ctx, env)
		}
	}
}

func (br *Bridge) forward(ctx context.Context, env Envelope) {
	frame, err := protocol.NewFrame(br.from, env.Event.Type(), env)
	if err != nil {
		log.Error("Failed to frame event", "err", err)
		return
	}
	payload, err := frame.Encode()
	if err != nil {
		log.Error("Failed to encode frame", "err", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := br.out.Write(wctx, payload); err != nil {
		log.Warn("Failed to forward event", "type", env.Event.Type(), "err", err)
	}
}
