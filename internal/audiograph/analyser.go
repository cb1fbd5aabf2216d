package audiograph

import (
	"math"
	"sync"

	"screencap/internal/device"
)

const (
	// FFTSize matches the small analyser window used for the voice meter.
	FFTSize = 64
	// Bands is the number of frequency bins exposed by Levels.
	Bands = FFTSize / 2
	// Smoothing blends each new magnitude with the previous one.
	Smoothing = 0.8

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Analyser is a non-destructive monitoring tap. It never alters the frames
// it observes and is read only for visualization.
type Analyser struct {
	mu       sync.Mutex
	window   [FFTSize]float64
	cosTable [Bands][FFTSize]float64
	sinTable [Bands][FFTSize]float64
	smoothed [Bands]float64
	rms      float64
	frames   int64
}

// NewAnalyser precomputes the Blackman window and DFT tables.
func NewAnalyser() *Analyser {
	a := &Analyser{}
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	for n := 0; n < FFTSize; n++ {
		x := 2 * math.Pi * float64(n) / FFTSize
		a.window[n] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	for k := 0; k < Bands; k++ {
		for n := 0; n < FFTSize; n++ {
			phase := 2 * math.Pi * float64(k) * float64(n) / FFTSize
			a.cosTable[k][n] = math.Cos(phase)
			a.sinTable[k][n] = math.Sin(phase)
		}
	}
	return a
}

// Process folds one interleaved frame into the running levels.
func (a *Analyser) Process(frame []float32) {
	if a == nil || len(frame) == 0 {
		return
	}

	mono := downmix(frame)
	var sumSquares float64
	for _, v := range mono {
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(mono)))

	// analyse the most recent FFTSize samples of the frame
	var block [FFTSize]float64
	start := len(mono) - FFTSize
	for n := 0; n < FFTSize; n++ {
		if i := start + n; i >= 0 {
			block[n] = mono[i] * a.window[n]
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for k := 0; k < Bands; k++ {
		var re, im float64
		for n := 0; n < FFTSize; n++ {
			re += block[n] * a.cosTable[k][n]
			im -= block[n] * a.sinTable[k][n]
		}
		magnitude := math.Sqrt(re*re+im*im) / FFTSize
		a.smoothed[k] = Smoothing*a.smoothed[k] + (1-Smoothing)*magnitude
	}
	a.rms = rms
	a.frames++
}

// Levels returns band magnitudes scaled to 0..1 over the -100..-30 dB range.
func (a *Analyser) Levels() []float64 {
	out := make([]float64, Bands)
	if a == nil {
		return out
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, m := range a.smoothed {
		out[k] = scaleDecibels(m)
	}
	return out
}

// RMS returns the root-mean-square level of the last frame.
func (a *Analyser) RMS() float64 {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rms
}

// Frames reports how many frames have been observed.
func (a *Analyser) Frames() int64 {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

func scaleDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	v := (db - minDecibels) / (maxDecibels - minDecibels)
	return math.Max(0, math.Min(1, v))
}

func downmix(frame []float32) []float64 {
	n := len(frame) / device.Channels
	if n == 0 {
		out := make([]float64, len(frame))
		for i, v := range frame {
			out[i] = float64(v)
		}
		return out
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < device.Channels; c++ {
			sum += float64(frame[i*device.Channels+c])
		}
		out[i] = sum / device.Channels
	}
	return out
}
