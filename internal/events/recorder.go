package events

import "sync"

// Recorder keeps every envelope it sees. Used by the control socket to
// return the events of a single request and by tests.
type Recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func Record(b *Bus, types ...string) (*Recorder, func()) {
	r := &Recorder{}
	stop := b.Subscribe(types, r.add)
	return r, stop
}

func (r *Recorder) add(env Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

func (r *Recorder) Types() []string {
	envs := r.Envelopes()
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Event.Type()
	}
	return out
}

// Of returns the recorded events of type T in order.
func Of[T Event](r *Recorder) []T {
	var out []T
	for _, e := range r.Envelopes() {
		if ev, ok := e.Event.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}
