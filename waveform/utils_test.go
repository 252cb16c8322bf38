package waveform

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestResizePadsToGranularity(t *testing.T) {
	cases := []struct {
		samples int
		want    int
	}{
		{0, 16},
		{10, 16},
		{16, 16},
		{17, 32},
		{33, 48},
	}
	for _, c := range cases {
		data := make([]complex128, c.samples)
		for i := range data {
			data[i] = complex(1, 0)
		}
		got := Resize(data, 16)
		if len(got) != c.want {
			t.Fatalf("resize %d: expected %d samples, got %d", c.samples, c.want, len(got))
		}
		for i := 0; i < c.samples; i++ {
			if got[i] != data[i] {
				t.Fatalf("resize %d: sample %d changed", c.samples, i)
			}
		}
		for i := c.samples; i < len(got); i++ {
			if got[i] != 0 {
				t.Fatalf("resize %d: expected zero padding at %d", c.samples, i)
			}
		}
	}
}

func TestShiftSplitsStartAcrossGrid(t *testing.T) {
	data := []complex128{1, 1, 1, 1}
	index, shifted := Shift(data, 16e-9, 2.4e9, 8)
	if index != 4 {
		t.Fatalf("expected grid index 4, got %d", index)
	}
	if len(shifted) != 6+len(data) {
		t.Fatalf("expected 6 padding samples, got %d", len(shifted)-len(data))
	}
	for i := 0; i < 6; i++ {
		if shifted[i] != 0 {
			t.Fatalf("expected zero at padded sample %d", i)
		}
	}
	if shifted[6] != 1 {
		t.Fatalf("expected original data after padding")
	}

	index, shifted = Shift(data, 20e-9, 1e9, 4)
	if index != 5 {
		t.Fatalf("expected grid index 5, got %d", index)
	}
	if len(shifted) != len(data) {
		t.Fatalf("expected no padding on an aligned start, got %d extra", len(shifted)-len(data))
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	data := []complex128{complex(0.1, -0.4), complex(-0.5, 0.2), complex(0.3, 0.1)}
	normalized, ampReal, ampImag := Normalize(data)
	if ampReal != 0.5 || ampImag != 0.4 {
		t.Fatalf("expected peaks 0.5 and 0.4, got %v and %v", ampReal, ampImag)
	}
	for i, v := range normalized {
		back := complex(real(v)*ampReal, imag(v)*ampImag)
		if cmplx.Abs(back-data[i]) > 1e-12 {
			t.Fatalf("round trip failed at %d: %v != %v", i, back, data[i])
		}
	}
}

func TestNormalizeZeroQuadrature(t *testing.T) {
	data := []complex128{complex(0.2, 0), complex(-0.1, 0)}
	normalized, ampReal, ampImag := Normalize(data)
	if ampReal != 0.2 {
		t.Fatalf("expected real peak 0.2, got %v", ampReal)
	}
	if ampImag != 0 {
		t.Fatalf("expected zero imag peak, got %v", ampImag)
	}
	for i, v := range normalized {
		if imag(v) != 0 {
			t.Fatalf("expected zero imag at %d, got %v", i, v)
		}
	}
	if real(normalized[0]) != 1 || real(normalized[1]) != -0.5 {
		t.Fatalf("unexpected normalized data: %v", normalized)
	}
}

func TestApplyMixerSkewCorrections(t *testing.T) {
	ratio := 2.0
	data := []complex128{complex(0.5, 0.1), complex(-0.2, 0.5), complex(0.3, -0.3)}
	corrected := ApplyMixerSkewCorrections(data, ratio, 10)

	var peakRe, peakIm float64
	for _, v := range corrected {
		if a := math.Abs(real(v)); a > peakRe {
			peakRe = a
		}
		if a := math.Abs(imag(v)); a > peakIm {
			peakIm = a
		}
	}
	// both input quadratures peak at 0.5, so the corrected peaks must sit at
	// the requested amplitude ratio
	if math.Abs(peakRe/peakIm-ratio) > 1e-9 {
		t.Fatalf("expected peak ratio %v, got %v", ratio, peakRe/peakIm)
	}

	identity := ApplyMixerSkewCorrections(data, 1, 0)
	for i, v := range identity {
		if cmplx.Abs(v-data[i]) > 1e-12 {
			t.Fatalf("identity correction changed sample %d: %v != %v", i, v, data[i])
		}
	}
}

func TestModulate(t *testing.T) {
	axis := TimeAxis(8e-9, 1e9)
	envelope := Square(axis, complex(0.5, 0))
	freq := 125e6
	modulated := Modulate(axis, envelope, freq, 0)
	for i, v := range modulated {
		want := complex(0.5, 0) * cmplx.Exp(complex(0, 2*math.Pi*freq*axis[i]))
		if cmplx.Abs(v-want) > 1e-12 {
			t.Fatalf("unexpected modulated sample %d: %v != %v", i, v, want)
		}
	}

	shifted := Modulate(axis, envelope, freq, 4e-9)
	want := complex(0.5, 0) * cmplx.Exp(complex(0, 2*math.Pi*freq*4e-9))
	if cmplx.Abs(shifted[0]-want) > 1e-12 {
		t.Fatalf("expected carrier phase referenced to t0, got %v", shifted[0])
	}
}

func TestArea(t *testing.T) {
	axis := TimeAxis(100e-9, 1e9)
	data := Square(axis, complex(0.5, 0))
	got := Area(data, 1e9)
	if math.Abs(real(got)-0.5*100e-9) > 1e-18 {
		t.Fatalf("expected area %v, got %v", 0.5*100e-9, real(got))
	}
	if imag(got) != 0 {
		t.Fatalf("expected real area, got %v", got)
	}
}

func TestTimeAxis(t *testing.T) {
	axis := TimeAxis(24e-9, 1e9)
	if len(axis) != 24 {
		t.Fatalf("expected 24 samples, got %d", len(axis))
	}
	if axis[0] != 0 {
		t.Fatalf("expected axis to start at zero, got %v", axis[0])
	}
	if math.Abs(axis[1]-1e-9) > 1e-18 {
		t.Fatalf("expected 1 ns spacing, got %v", axis[1])
	}
	if len(TimeAxis(0, 1e9)) != 0 {
		t.Fatalf("expected empty axis for zero duration")
	}
}
