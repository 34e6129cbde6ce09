package wake

import (
	"math"
	"sync"
	"sync/atomic"

	"luna/internal/apperr"
	"luna/internal/audio"
)

type Detection struct {
	Keyword    int
	Confidence float32
}

// Detector inspects one window of mono samples. Sensitivity is in [0,1]
// and may be changed while Detect runs on another goroutine.
type Detector interface {
	Detect(frame []float32) (Detection, bool)
	Keywords() []string
	SetSensitivity(s float32)
	Sensitivity() float32
}

type sensitivity struct{ bits atomic.Uint32 }

func (s *sensitivity) Load() float32 { return math.Float32frombits(s.bits.Load()) }

func (s *sensitivity) Store(v float32) {
	s.bits.Store(math.Float32bits(min(max(v, 0), 1)))
}

// EnergyDetector fires when the window RMS exceeds 0.1*(1-sensitivity).
// It reacts to any loud sound, not only the keyword.
type EnergyDetector struct {
	keyword string
	sens    sensitivity
}

func NewEnergyDetector(keyword string, sens float32) *EnergyDetector {
	d := &EnergyDetector{keyword: keyword}
	d.sens.Store(sens)
	return d
}

func (d *EnergyDetector) Threshold() float32 { return 0.1 * (1 - d.sens.Load()) }

func (d *EnergyDetector) Detect(frame []float32) (Detection, bool) {
	if len(frame) == 0 {
		return Detection{}, false
	}
	energy := audio.RMS(frame)
	th := d.Threshold()
	if energy <= th {
		return Detection{}, false
	}
	conf := float32(1)
	if th > 0 {
		conf = min(1, 0.5+0.5*(energy-th)/th)
	}
	return Detection{Keyword: 0, Confidence: conf}, true
}

func (d *EnergyDetector) Keywords() []string       { return []string{d.keyword} }
func (d *EnergyDetector) SetSensitivity(s float32) { d.sens.Store(s) }
func (d *EnergyDetector) Sensitivity() float32     { return d.sens.Load() }

// Engine is a keyword model that consumes fixed-size int16 chunks at the
// device rate.
type Engine interface {
	ChunkSize() int
	Process(chunk []int16) (keyword int, score float32, err error)
	Keywords() []string
}

// EngineDetector adapts an Engine to Detector. Incoming float frames are
// accumulated and handed to the engine one chunk at a time; a score at or
// above 1-sensitivity counts as a detection.
type EngineDetector struct {
	mu     sync.Mutex
	engine Engine
	chunk  []int16
	fill   int
	sens   sensitivity
}

func NewEngineDetector(e Engine, sens float32) (*EngineDetector, error) {
	if e == nil {
		return nil, apperr.New(apperr.WakeModelMissing, "wake engine not loaded")
	}
	n := e.ChunkSize()
	if n <= 0 {
		return nil, apperr.New(apperr.WakeDetection, "wake engine reports empty chunk size")
	}
	d := &EngineDetector{engine: e, chunk: make([]int16, n)}
	d.sens.Store(sens)
	return d, nil
}

func (d *EngineDetector) Detect(frame []float32) (Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		best  Detection
		found bool
	)
	for _, v := range frame {
		d.chunk[d.fill] = int16(min(max(v, -1), 1) * 32767)
		d.fill++
		if d.fill < len(d.chunk) {
			continue
		}
		d.fill = 0

		kw, score, err := d.engine.Process(d.chunk)
		if err != nil || kw < 0 {
			continue
		}
		if score >= 1-d.sens.Load() && (!found || score > best.Confidence) {
			best = Detection{Keyword: kw, Confidence: score}
			found = true
		}
	}
	return best, found
}

func (d *EngineDetector) Keywords() []string       { return d.engine.Keywords() }
func (d *EngineDetector) SetSensitivity(s float32) { d.sens.Store(s) }
func (d *EngineDetector) Sensitivity() float32     { return d.sens.Load() }
