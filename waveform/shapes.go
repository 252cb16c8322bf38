package waveform

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"strings"
	"sync"
)

// Names of the built-in shape functions.
const (
	FuncSquare       = "square"
	FuncRamp         = "ramp"
	FuncStaircase    = "staircase"
	FuncSoftSquare   = "soft_square"
	FuncDrag         = "drag"
	FuncChirp        = "chirp"
	FuncInterpolated = "interpolated"
)

// Func samples a waveform envelope on the time axis t, in seconds.
//
// Shape functions are pure: the same axis and parameters always produce the
// same samples. Real-valued shapes return samples with zero imaginary parts
// so callers can treat every envelope uniformly.
type Func func(t []float64, params Params) ([]complex128, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Func)
)

func Register(name string, fn Func) {
	if name == "" {
		panic("waveform function name must not be empty")
	}
	if fn == nil {
		panic("waveform function must not be nil")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("waveform function %s already registered", name))
	}
	registry[name] = fn
}

func Generate(name string, t []float64, params Params) ([]complex128, error) {
	registryMu.RLock()
	fn, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("waveform function %s not registered", name)
	}
	return fn(t, params)
}

func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(FuncSquare, func(t []float64, params Params) ([]complex128, error) {
		amp, err := params.Complex("amp")
		if err != nil {
			return nil, err
		}
		return Square(t, amp), nil
	})
	Register(FuncRamp, func(t []float64, params Params) ([]complex128, error) {
		amp, err := params.Float("amp")
		if err != nil {
			return nil, err
		}
		offset, err := params.FloatOr("offset", 0)
		if err != nil {
			return nil, err
		}
		return Ramp(t, amp, offset), nil
	})
	Register(FuncStaircase, func(t []float64, params Params) ([]complex128, error) {
		startAmp, err := params.Float("start_amp")
		if err != nil {
			return nil, err
		}
		finalAmp, err := params.Float("final_amp")
		if err != nil {
			return nil, err
		}
		numSteps, err := params.Int("num_steps")
		if err != nil {
			return nil, err
		}
		return Staircase(t, startAmp, finalAmp, numSteps)
	})
	Register(FuncSoftSquare, func(t []float64, params Params) ([]complex128, error) {
		amp, err := params.Complex("amp")
		if err != nil {
			return nil, err
		}
		return SoftSquare(t, amp), nil
	})
	Register(FuncDrag, func(t []float64, params Params) ([]complex128, error) {
		gAmp, err := params.Float("G_amp")
		if err != nil {
			return nil, err
		}
		dAmp, err := params.Float("D_amp")
		if err != nil {
			return nil, err
		}
		duration, err := params.Float("duration")
		if err != nil {
			return nil, err
		}
		nrSigma, err := params.FloatOr("nr_sigma", 3)
		if err != nil {
			return nil, err
		}
		phase, err := params.FloatOr("phase", 0)
		if err != nil {
			return nil, err
		}
		subtractOffset, err := params.StringOr("subtract_offset", "average")
		if err != nil {
			return nil, err
		}
		return Drag(t, gAmp, dAmp, duration, nrSigma, phase, subtractOffset)
	})
	Register(FuncChirp, func(t []float64, params Params) ([]complex128, error) {
		amp, err := params.Float("amp")
		if err != nil {
			return nil, err
		}
		startFreq, err := params.Float("start_freq")
		if err != nil {
			return nil, err
		}
		endFreq, err := params.Float("end_freq")
		if err != nil {
			return nil, err
		}
		return Chirp(t, amp, startFreq, endFreq), nil
	})
	Register(FuncInterpolated, func(t []float64, params Params) ([]complex128, error) {
		samples, err := params.Complexes("samples")
		if err != nil {
			return nil, err
		}
		tSamples, err := params.Floats("t_samples")
		if err != nil {
			return nil, err
		}
		return Interpolated(t, samples, tSamples)
	})
}

// Square is a constant envelope. The amplitude may be complex.
func Square(t []float64, amp complex128) []complex128 {
	out := make([]complex128, len(t))
	for i := range out {
		out[i] = amp
	}
	return out
}

// Ramp rises linearly from offset to amp+offset, excluding the endpoint.
func Ramp(t []float64, amp, offset float64) []complex128 {
	out := make([]complex128, len(t))
	n := float64(len(t))
	for i := range out {
		out[i] = complex(offset+amp*float64(i)/n, 0)
	}
	return out
}

// Staircase steps from startAmp to finalAmp over numSteps equal plateaus.
func Staircase(t []float64, startAmp, finalAmp float64, numSteps int) ([]complex128, error) {
	if numSteps < 2 {
		return nil, fmt.Errorf("staircase needs at least 2 steps, got %d", numSteps)
	}
	out := make([]complex128, len(t))
	if len(t) == 0 {
		return out, nil
	}
	tEnd := t[len(t)-1]
	ampStep := (finalAmp - startAmp) / float64(numSteps-1)
	for i, ti := range t {
		idx := 0.0
		if tEnd > 0 {
			idx = math.Floor(ti / tEnd * float64(numSteps))
		}
		if idx > float64(numSteps-1) {
			idx = float64(numSteps - 1)
		}
		out[i] = complex(startAmp+idx*ampStep, 0)
	}
	return out, nil
}

// SoftSquare is a square envelope smoothed by convolving with a Hann window
// of half the pulse length.
func SoftSquare(t []float64, amp complex128) []complex128 {
	data := Square(t, amp)
	if len(t) <= 1 {
		return data
	}
	window := hann(len(t) / 2)
	var sum float64
	for _, w := range window {
		sum += w
	}
	if sum == 0 {
		return data
	}
	for i := range window {
		window[i] /= sum
	}
	re := convolveSame(realPart(data), window)
	im := convolveSame(imagPart(data), window)
	out := make([]complex128, len(data))
	for i := range out {
		out[i] = complex(re[i], im[i])
	}
	return out
}

// Drag is a Gaussian envelope with its scaled derivative on the imaginary
// path. subtractOffset selects how the DC offset is removed: none, average
// (of the first and last sample), first or last.
func Drag(t []float64, gAmp, dAmp, duration, nrSigma, phaseDeg float64, subtractOffset string) ([]complex128, error) {
	out := make([]complex128, len(t))
	if len(t) == 0 {
		return out, nil
	}
	mu := t[0] + duration/2
	sigma := duration / (2 * nrSigma)
	gauss := make([]float64, len(t))
	deriv := make([]float64, len(t))
	for i, ti := range t {
		g := gAmp * math.Exp(-0.5*(ti-mu)*(ti-mu)/(sigma*sigma))
		gauss[i] = g
		deriv[i] = -dAmp * (ti - mu) / sigma * g
	}
	last := len(t) - 1
	switch strings.ToLower(subtractOffset) {
	case "none":
	case "average":
		subtract(gauss, (gauss[0]+gauss[last])/2)
		subtract(deriv, (deriv[0]+deriv[last])/2)
	case "first":
		subtract(gauss, gauss[0])
		subtract(deriv, deriv[0])
	case "last":
		subtract(gauss, gauss[last])
		subtract(deriv, deriv[last])
	default:
		return nil, fmt.Errorf("unknown subtract_offset %q, must be one of none, average, first or last", subtractOffset)
	}
	rotation := cmplx.Exp(complex(0, 2*math.Pi*phaseDeg/360))
	for i := range out {
		out[i] = rotation * complex(gauss[i], deriv[i])
	}
	return out, nil
}

// Chirp sweeps the frequency linearly from startFreq to endFreq across the
// pulse.
func Chirp(t []float64, amp, startFreq, endFreq float64) []complex128 {
	out := make([]complex128, len(t))
	if len(t) == 0 {
		return out
	}
	t0 := t[0]
	span := t[len(t)-1] - t0
	rate := 0.0
	if span != 0 {
		rate = (endFreq - startFreq) / span
	}
	for i, ti := range t {
		dt := ti - t0
		out[i] = complex(amp, 0) * cmplx.Exp(complex(0, 2*math.Pi*(startFreq+rate*dt/2)*dt))
	}
	return out
}

// Interpolated resamples the given support points onto t by linear
// interpolation, clamping to the first and last sample outside the range.
func Interpolated(t []float64, samples []complex128, tSamples []float64) ([]complex128, error) {
	if len(samples) == 0 || len(samples) != len(tSamples) {
		return nil, fmt.Errorf("interpolated waveform needs matching sample and time arrays, got %d samples and %d times", len(samples), len(tSamples))
	}
	for i := 1; i < len(tSamples); i++ {
		if tSamples[i] <= tSamples[i-1] {
			return nil, fmt.Errorf("interpolated waveform times must be strictly increasing (t_samples[%d]=%v, t_samples[%d]=%v)", i-1, tSamples[i-1], i, tSamples[i])
		}
	}
	out := make([]complex128, len(t))
	for i, ti := range t {
		out[i] = interpAt(ti, tSamples, samples)
	}
	return out, nil
}

func interpAt(x float64, xs []float64, ys []complex128) complex128 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	j := sort.SearchFloat64s(xs, x)
	if xs[j] == x {
		return ys[j]
	}
	x0, x1 := xs[j-1], xs[j]
	frac := (x - x0) / (x1 - x0)
	return ys[j-1] + complex(frac, 0)*(ys[j]-ys[j-1])
}

func hann(m int) []float64 {
	if m < 1 {
		return nil
	}
	if m == 1 {
		return []float64{1}
	}
	w := make([]float64, m)
	for n := range w {
		w[n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(m-1))
	}
	return w
}

func convolveSame(data, kernel []float64) []float64 {
	out := make([]float64, len(data))
	offset := (len(kernel) - 1) / 2
	for i := range out {
		var sum float64
		for j, k := range kernel {
			di := i + offset - j
			if di >= 0 && di < len(data) {
				sum += data[di] * k
			}
		}
		out[i] = sum
	}
	return out
}

func subtract(data []float64, offset float64) {
	for i := range data {
		data[i] -= offset
	}
}

func realPart(data []complex128) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = real(v)
	}
	return out
}

func imagPart(data []complex128) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = imag(v)
	}
	return out
}
