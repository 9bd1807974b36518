package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/crawlerctl/internal/sim"
)

// Field picks one signal out of a sample.
type Field func(sim.Sample) float64

var (
	RawThrottle Field = func(s sim.Sample) float64 { return s.RawThrottle }
	Throttle    Field = func(s sim.Sample) float64 { return s.Throttle }
	Steering    Field = func(s sim.Sample) float64 { return s.Steering }
	EscDuty     Field = func(s sim.Sample) float64 { return float64(s.EscDuty) }
	ServoDuty   Field = func(s sim.Sample) float64 { return float64(s.ServoDuty) }
)

// Series extracts one signal from a trace.
func Series(samples []sim.Sample, f Field) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = f(s)
	}
	return out
}

type Bin struct {
	Freq      float64
	Magnitude float64
}

// Spectrum returns the one-sided magnitude spectrum of data sampled at
// rate Hz. The mean is removed and a Hann window applied first.
func Spectrum(data []float64, rate float64) []Bin {
	n := len(data)
	if n < 2 || rate <= 0 {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range data {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = (v - mean) * w
	}

	coeffs := fft.FFTReal(windowed)
	bins := make([]Bin, n/2+1)
	for i := range bins {
		bins[i] = Bin{
			Freq:      float64(i) * rate / float64(n),
			Magnitude: cmplx.Abs(coeffs[i]) * 2 / float64(n),
		}
	}
	return bins
}

// DominantFrequency is the strongest non-DC bin. A flat signal gives 0, 0.
func DominantFrequency(data []float64, rate float64) (float64, float64) {
	bins := Spectrum(data, rate)
	var best Bin
	for _, b := range bins[min(1, len(bins)):] {
		if b.Magnitude > best.Magnitude {
			best = b
		}
	}
	return best.Freq, best.Magnitude
}

// Reversals counts sign changes of the first difference, a cheap measure
// of how often a command changes direction.
func Reversals(data []float64) int {
	count := 0
	prev := 0.0
	for i := 1; i < len(data); i++ {
		d := data[i] - data[i-1]
		if d == 0 {
			continue
		}
		if prev != 0 && (d > 0) != (prev > 0) {
			count++
		}
		prev = d
	}
	return count
}
