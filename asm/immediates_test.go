package asm

import "testing"

func TestGainImmediate(t *testing.T) {
	cases := []struct {
		amp  float64
		want int
	}{
		{1, 32767},
		{-1, -32767},
		{0, 0},
		{0.5, 16384},
		{32212.0 / 32767.0, 32212},
	}
	for _, c := range cases {
		got, err := GainImmediate(c.amp)
		if err != nil {
			t.Fatalf("gain %v: %v", c.amp, err)
		}
		if got != c.want {
			t.Fatalf("gain %v: expected %d, got %d", c.amp, c.want, got)
		}
	}
	if _, err := GainImmediate(1.2); err == nil {
		t.Fatalf("expected error for gain above 1.0")
	}
	if _, err := GainImmediate(-1.01); err == nil {
		t.Fatalf("expected error for gain below -1.0")
	}
}

func TestUnsignedImmediateWrapsNegatives(t *testing.T) {
	if got := UnsignedImmediate(-32769); got != 4294934527 {
		t.Fatalf("expected twos complement 4294934527, got %d", got)
	}
	if got := UnsignedImmediate(32767); got != 32767 {
		t.Fatalf("expected positive passthrough, got %d", got)
	}
}

func TestNcoPhaseImmediate(t *testing.T) {
	cases := []struct {
		degrees float64
		want    int
	}{
		{0, 0},
		{90, 250000000},
		{360, 0},
		{-90, 750000000},
		{450, 250000000},
	}
	for _, c := range cases {
		if got := NcoPhaseImmediate(c.degrees); got != c.want {
			t.Fatalf("phase %v: expected %d, got %d", c.degrees, c.want, got)
		}
	}
}

func TestNcoFrequencyImmediate(t *testing.T) {
	got, err := NcoFrequencyImmediate(100e6)
	if err != nil {
		t.Fatalf("frequency: %v", err)
	}
	if got != 400000000 {
		t.Fatalf("expected 400000000 steps, got %d", got)
	}
	got, err = NcoFrequencyImmediate(-200)
	if err != nil {
		t.Fatalf("frequency: %v", err)
	}
	if got != -800 {
		t.Fatalf("expected -800 steps, got %d", got)
	}
	if _, err := NcoFrequencyImmediate(500e6 + 1); err == nil {
		t.Fatalf("expected error above the NCO range")
	}
}
