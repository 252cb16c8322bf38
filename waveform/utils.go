package waveform

import (
	"math"
	"math/cmplx"
)

// Resize pads the waveform with zeros up to the next multiple of
// granularity. An empty waveform becomes one granularity of zeros.
func Resize(data []complex128, granularity int) []complex128 {
	if granularity < 1 {
		granularity = 1
	}
	if len(data) == 0 {
		return make([]complex128, granularity)
	}
	remainder := len(data) % granularity
	if remainder == 0 {
		return data
	}
	out := make([]complex128, len(data)+granularity-remainder)
	copy(out, data)
	return out
}

// Shift delays the waveform to an absolute start time. It returns the index
// of the start on the coarse resolution grid together with the waveform
// left-padded by the samples that fall inside one resolution period.
func Shift(data []complex128, startSeconds, clockRate float64, resolution int) (int, []complex128) {
	startClocks := int(math.Round(startSeconds * clockRate))
	index := startClocks / resolution
	pad := startClocks % resolution
	if pad == 0 {
		return index, data
	}
	out := make([]complex128, pad+len(data))
	copy(out[pad:], data)
	return index, out
}

// Normalize scales each quadrature to a peak magnitude of one and returns
// the original peaks. A quadrature that is zero everywhere stays untouched
// and reports a peak of zero.
func Normalize(data []complex128) ([]complex128, float64, float64) {
	var ampReal, ampImag float64
	for _, v := range data {
		if a := math.Abs(real(v)); a > ampReal {
			ampReal = a
		}
		if a := math.Abs(imag(v)); a > ampImag {
			ampImag = a
		}
	}
	out := make([]complex128, len(data))
	for i, v := range data {
		re, im := real(v), imag(v)
		if ampReal != 0 {
			re /= ampReal
		}
		if ampImag != 0 {
			im /= ampImag
		}
		out[i] = complex(re, im)
	}
	return out, ampReal, ampImag
}

// ApplyMixerSkewCorrections pre-distorts the waveform so that an IQ mixer
// with the given amplitude ratio and phase skew (degrees) reproduces the
// intended signal. Each corrected quadrature is rescaled back to its
// original peak before the amplitude ratio is split across the paths.
func ApplyMixerSkewCorrections(data []complex128, amplitudeRatio, phaseShiftDeg float64) []complex128 {
	phi := phaseShiftDeg * math.Pi / 180
	tanPhi := math.Tan(phi)
	cosPhi := math.Cos(phi)

	re := make([]float64, len(data))
	im := make([]float64, len(data))
	var peakRe, peakIm float64
	for i, v := range data {
		re[i] = real(v) + imag(v)*tanPhi
		im[i] = imag(v) / cosPhi
		if a := math.Abs(real(v)); a > peakRe {
			peakRe = a
		}
		if a := math.Abs(imag(v)); a > peakIm {
			peakIm = a
		}
	}
	rescale(re, peakRe)
	rescale(im, peakIm)

	ratio := math.Sqrt(amplitudeRatio)
	out := make([]complex128, len(data))
	for i := range out {
		out[i] = complex(re[i]*ratio, im[i]/ratio)
	}
	return out
}

// rescale restores the series to the given peak magnitude.
func rescale(data []float64, peak float64) {
	var current float64
	for _, v := range data {
		if a := math.Abs(v); a > current {
			current = a
		}
	}
	if current == 0 {
		return
	}
	factor := peak / current
	for i := range data {
		data[i] *= factor
	}
}

// Modulate mixes the envelope up by freq with the carrier phase referenced
// to t0.
func Modulate(t []float64, envelope []complex128, freq, t0 float64) []complex128 {
	out := make([]complex128, len(envelope))
	for i := range envelope {
		out[i] = envelope[i] * cmplx.Exp(complex(0, 2*math.Pi*freq*(t[i]+t0)))
	}
	return out
}

// Area integrates the waveform over time.
func Area(data []complex128, samplingRate float64) complex128 {
	var sum complex128
	for _, v := range data {
		sum += v
	}
	return sum / complex(samplingRate, 0)
}

// TimeAxis samples the half-open interval [0, duration) at samplingRate.
func TimeAxis(duration, samplingRate float64) []float64 {
	n := int(math.Round(duration * samplingRate))
	if n < 0 {
		n = 0
	}
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) / samplingRate
	}
	return t
}
