package waveform

import (
	"math"
	"testing"
)

func TestRegisterExpr(t *testing.T) {
	if err := RegisterExpr("linear_decay", "amp * (1 - t/duration)"); err != nil {
		t.Fatalf("register expression: %v", err)
	}
	axis := TimeAxis(4e-9, 1e9)
	data := mustGenerate(t, "linear_decay", axis, Params{"amp": 0.8, "duration": 4e-9})
	if math.Abs(real(data[0])-0.8) > 1e-12 {
		t.Fatalf("expected 0.8 at t=0, got %v", data[0])
	}
	if math.Abs(real(data[2])-0.4) > 1e-12 {
		t.Fatalf("expected 0.4 at the half point, got %v", data[2])
	}
	for _, v := range data {
		if imag(v) != 0 {
			t.Fatalf("expected real-path samples, got %v", v)
		}
	}
}

func TestRegisterExprRejectsDuplicates(t *testing.T) {
	if err := RegisterExpr("dup_env", "t"); err != nil {
		t.Fatalf("register expression: %v", err)
	}
	if err := RegisterExpr("dup_env", "2*t"); err == nil {
		t.Fatalf("expected error for duplicate name")
	}
	if err := RegisterExpr(FuncSquare, "t"); err == nil {
		t.Fatalf("expected error when shadowing a built-in shape")
	}
}

func TestRegisterExprCompileError(t *testing.T) {
	if err := RegisterExpr("broken_env", "amp * ("); err == nil {
		t.Fatalf("expected compile error")
	}
}
