package audio

import "math"

type Processor interface {
	Process(in []float32) []float32
}

// Chain runs processors in order. A nil entry is skipped.
type Chain []Processor

func (ch Chain) Process(in []float32) []float32 {
	out := in
	for _, p := range ch {
		if p == nil {
			continue
		}
		out = p.Process(out)
	}
	return out
}

func RMS(x []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += float64(v) * float64(v)
	}
	return float32(math.Sqrt(s / float64(len(x))))
}

func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func Float32ToInt16(data []float32) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		out[i] = int16(clamp(v, -1, 1) * 32767)
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates by linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 || from <= 0 || to <= 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}

type Resampler struct {
	From, To int
}

func (r Resampler) Process(in []float32) []float32 {
	return Resample(in, r.From, r.To)
}

// NoiseGate zeroes blocks whose RMS stays under Threshold for longer than
// Hold blocks.
type NoiseGate struct {
	Threshold float32
	Block     int
	Hold      int
}

func (g NoiseGate) Process(in []float32) []float32 {
	block := g.Block
	if block <= 0 {
		block = 160
	}

	out := make([]float32, len(in))
	copy(out, in)

	quiet := 0
	for off := 0; off < len(out); off += block {
		b := out[off:min(off+block, len(out))]
		if RMS(b) >= g.Threshold {
			quiet = 0
			continue
		}
		quiet++
		if quiet > g.Hold {
			clear(b)
		}
	}
	return out
}

// AGC moves the signal toward TargetRMS block by block. Blocks under Floor
// are left alone so background hiss is not amplified.
type AGC struct {
	TargetRMS float32
	MaxGain   float32
	Smoothing float32
	Floor     float32
	Block     int
}

// SpeechChain resamples audio captured at from to the rate to, then gates
// and levels it. A zero from means the input is already at to.
func SpeechChain(from, to int, gate float32) Chain {
	ch := Chain{}
	if from > 0 && from != to {
		ch = append(ch, Resampler{From: from, To: to})
	}
	return append(ch,
		NoiseGate{Threshold: gate, Block: 160, Hold: 8},
		DefaultAGC(),
	)
}

func DefaultAGC() AGC {
	return AGC{TargetRMS: 0.1, MaxGain: 10, Smoothing: 0.3, Floor: 0.005, Block: 160}
}

func (a AGC) Process(in []float32) []float32 {
	block := a.Block
	if block <= 0 {
		block = 160
	}
	maxGain := a.MaxGain
	if maxGain < 1 {
		maxGain = 1
	}

	out := make([]float32, len(in))
	gain := float32(1)
	for off := 0; off < len(in); off += block {
		end := min(off+block, len(in))
		rms := RMS(in[off:end])
		if rms > a.Floor {
			want := clamp(a.TargetRMS/rms, 1/maxGain, maxGain)
			gain += (want - gain) * a.Smoothing
		}
		for i := off; i < end; i++ {
			out[i] = clamp(in[i]*gain, -1, 1)
		}
	}
	return out
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
