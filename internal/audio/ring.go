package audio

import "sync"

// Ring is a fixed-capacity drop-oldest buffer of mono samples. One writer
// (the capture callback) and any number of readers share one *Ring.
// Push never allocates.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	head int // index of the oldest sample
	n    int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// NewRingFor sizes a ring to hold secs seconds at rate.
func NewRingFor(secs float64, rate int) *Ring {
	return NewRing(int(secs * float64(rate)))
}

func (r *Ring) Push(samples []float32) {
	c := len(r.buf)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(samples) >= c {
		copy(r.buf, samples[len(samples)-c:])
		r.head = 0
		r.n = c
		return
	}

	if over := r.n + len(samples) - c; over > 0 {
		r.head = (r.head + over) % c
		r.n -= over
	}

	tail := (r.head + r.n) % c
	k := copy(r.buf[tail:], samples)
	copy(r.buf, samples[k:])
	r.n += len(samples)
}

// Last returns up to durationMs of the newest samples at rate, oldest first.
func (r *Ring) Last(durationMs, rate int) []float32 {
	want := durationMs * rate / 1000

	r.mu.Lock()
	defer r.mu.Unlock()

	if want > r.n {
		want = r.n
	}
	out := make([]float32, want)
	r.copyTail(out)
	return out
}

// LastInto fills dst with the newest samples and returns how many it
// wrote. It does not allocate.
func (r *Ring) LastInto(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := len(dst)
	if k > r.n {
		k = r.n
	}
	r.copyTail(dst[:k])
	return k
}

func (r *Ring) copyTail(dst []float32) {
	c := len(r.buf)
	start := (r.head + r.n - len(dst)) % c
	k := copy(dst, r.buf[start:min(c, start+len(dst))])
	copy(dst[k:], r.buf)
}

// Drain returns everything buffered, oldest first, and empties the ring.
func (r *Ring) Drain() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float32, r.n)
	r.copyTail(out)
	r.head, r.n = 0, 0
	return out
}

func (r *Ring) Clear() {
	r.mu.Lock()
	r.head, r.n = 0, 0
	r.mu.Unlock()
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) IsEmpty() bool { return r.Len() == 0 }

func (r *Ring) FillRatio() float64 {
	return float64(r.Len()) / float64(len(r.buf))
}
