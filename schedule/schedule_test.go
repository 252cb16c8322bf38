package schedule

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func mustAdd(t *testing.T, s *Schedule, op Operation, opts ...AddOption) string {
	t.Helper()
	label, err := s.Add(op, opts...)
	if err != nil {
		t.Fatalf("add %s: %v", op.Name, err)
	}
	return label
}

func TestScheduleDeduplicatesOperations(t *testing.T) {
	s := New("dedup")
	pulse := SquarePulse(0.5, 100e-9, "q0:mw", "q0.01")
	first := mustAdd(t, s, pulse)
	second := mustAdd(t, s, pulse)
	if first == second {
		t.Fatalf("labels must be unique, got %s twice", first)
	}

	scheds := s.Schedulables()
	if len(scheds) != 2 {
		t.Fatalf("expected 2 schedulables, got %d", len(scheds))
	}
	if scheds[0].OpHash != scheds[1].OpHash {
		t.Fatalf("identical operations must share one hash")
	}
	if _, ok := s.Operation(scheds[0].OpHash); !ok {
		t.Fatalf("operation store is missing %s", scheds[0].OpHash)
	}
}

func TestScheduleAddValidation(t *testing.T) {
	s := New("validation")
	if _, err := s.Add(Operation{}); err == nil {
		t.Fatalf("expected an error for a nameless operation")
	}
	if _, err := s.Add(Operation{Name: "empty"}); err == nil {
		t.Fatalf("expected an error for an operation without content")
	}

	pulse := IdlePulse(100e-9)
	mustAdd(t, s, pulse, WithLabel("first"))
	if _, err := s.Add(pulse, WithLabel("first")); err == nil {
		t.Fatalf("expected an error for a duplicate label")
	}
	if _, err := s.Add(pulse, WithRef("missing")); err == nil {
		t.Fatalf("expected an error for an unknown reference")
	}
	if _, err := s.Add(pulse, WithRefPt("middle")); err == nil {
		t.Fatalf("expected an error for an unknown reference point")
	}
}

func TestScheduleTimingConstraints(t *testing.T) {
	s := New("constraints")
	first := mustAdd(t, s, IdlePulse(100e-9))
	second := mustAdd(t, s, IdlePulse(100e-9), WithRef(first), WithRefPt(RefPtStart), WithRelTime(40e-9))

	scheds := s.Schedulables()
	tc := scheds[1].Timing[0]
	if tc.RefSchedulable != first || tc.RefPt != RefPtStart || tc.RelTime != 40e-9 {
		t.Fatalf("unexpected constraint %+v", tc)
	}

	if err := s.AddTimingConstraint(second, TimingConstraint{RefSchedulable: first, RelTime: 10e-9}); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	if got := len(s.Schedulables()[1].Timing); got != 2 {
		t.Fatalf("expected 2 constraints, got %d", got)
	}

	if err := s.AddTimingConstraint("missing", TimingConstraint{}); err == nil {
		t.Fatalf("expected an error for an unknown schedulable")
	}
	if err := s.AddTimingConstraint(first, TimingConstraint{RefSchedulable: second}); err == nil {
		t.Fatalf("expected an error for a forward reference")
	}
}

func TestScheduleClocks(t *testing.T) {
	s := New("clocks")
	for _, name := range []string{BasebandClockName, DigitalClockName} {
		if _, ok := s.Resource(name); !ok {
			t.Fatalf("clock %s must be registered by default", name)
		}
	}
	if err := s.AddClock("q0.01", 7.3e9); err != nil {
		t.Fatalf("add clock: %v", err)
	}
	if err := s.AddClock("q0.01", 7.4e9); err == nil {
		t.Fatalf("expected an error for a duplicate clock")
	}
	clock, _ := s.Resource("q0.01")
	if clock.Freq != 7.3e9 || clock.Type != ResourceTypeClock {
		t.Fatalf("unexpected clock resource %+v", clock)
	}
}

func TestScheduleJSONRoundTrip(t *testing.T) {
	s := New("round-trip", WithRepetitions(512))
	if err := s.AddClock("q0.01", 7.3e9); err != nil {
		t.Fatalf("add clock: %v", err)
	}
	mustAdd(t, s, SquarePulse(0.5+0.25i, 100e-9, "q0:mw", "q0.01"), WithLabel("pi"))
	mustAdd(t, s, IdlePulse(200e-9), WithRelTime(16e-9))

	payload, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Schedule
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Name() != "round-trip" || decoded.Repetitions() != 512 {
		t.Fatalf("header lost: %s/%d", decoded.Name(), decoded.Repetitions())
	}
	if !reflect.DeepEqual(decoded.Schedulables(), s.Schedulables()) {
		t.Fatalf("schedulables changed across round trip")
	}
	for _, sched := range decoded.Schedulables() {
		op, ok := decoded.Operation(sched.OpHash)
		if !ok {
			t.Fatalf("operation %s missing after round trip", sched.OpHash)
		}
		if op.MustHash() != sched.OpHash {
			t.Fatalf("operation %s no longer matches its hash", op.Name)
		}
	}
	clock, ok := decoded.Resource("q0.01")
	if !ok || clock.Freq != 7.3e9 {
		t.Fatalf("clock resource lost: %+v", clock)
	}
}

func TestScheduleUnmarshalRejectsTampering(t *testing.T) {
	s := New("tamper")
	mustAdd(t, s, SquarePulse(0.5, 100e-9, "q0:mw", "q0.01"))
	payload, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	var ops map[string]Operation
	if err := json.Unmarshal(doc["operations"], &ops); err != nil {
		t.Fatalf("unmarshal operations: %v", err)
	}
	for hash, op := range ops {
		op.Name = "forged"
		ops[hash] = op
	}
	forged, err := json.Marshal(ops)
	if err != nil {
		t.Fatalf("marshal forged operations: %v", err)
	}
	doc["operations"] = forged
	payload, err = json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal forged schedule: %v", err)
	}

	var decoded Schedule
	err = json.Unmarshal(payload, &decoded)
	if err == nil {
		t.Fatalf("expected tampered content to be rejected")
	}
	if !strings.Contains(err.Error(), "content hash") {
		t.Fatalf("unexpected error: %v", err)
	}
}
