package compiler

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/pverheul/tactus/schedule"
)

func mustAdd(t *testing.T, s *schedule.Schedule, op schedule.Operation, opts ...schedule.AddOption) string {
	t.Helper()
	label, err := s.Add(op, opts...)
	if err != nil {
		t.Fatalf("add %s: %v", op.Name, err)
	}
	return label
}

func mustResolve(t *testing.T, s *schedule.Schedule) []Placement {
	t.Helper()
	placements, err := ResolveTiming(s)
	if err != nil {
		t.Fatalf("resolve timing: %v", err)
	}
	return placements
}

func TestResolveTimingSequentialChain(t *testing.T) {
	s := schedule.New("chain")
	mustAdd(t, s, schedule.SquarePulse(0.5, 100e-9, "q0:mw", schedule.BasebandClockName))
	mustAdd(t, s, schedule.IdlePulse(200e-9))
	mustAdd(t, s, schedule.SquarePulse(0.25, 52e-9, "q0:mw", schedule.BasebandClockName), schedule.WithRelTime(16e-9))

	placements := mustResolve(t, s)
	want := []float64{0, 100e-9, 316e-9}
	for i, p := range placements {
		if math.Abs(p.AbsTime-want[i]) > 1e-15 {
			t.Fatalf("placement %d at %g s, want %g s", i, p.AbsTime, want[i])
		}
	}
	if end := ScheduleEnd(placements); math.Abs(end-368e-9) > 1e-15 {
		t.Fatalf("schedule end %g s, want %g s", end, 368e-9)
	}
}

func TestResolveTimingRefPoints(t *testing.T) {
	s := schedule.New("refpts")
	anchor := mustAdd(t, s, schedule.IdlePulse(100e-9), schedule.WithLabel("anchor"))
	mustAdd(t, s, schedule.IdlePulse(40e-9),
		schedule.WithRef(anchor),
		schedule.WithRefPt(schedule.RefPtCenter),
		schedule.WithRefPtNew(schedule.RefPtCenter),
	)

	placements := mustResolve(t, s)
	if got := placements[1].AbsTime; math.Abs(got-30e-9) > 1e-15 {
		t.Fatalf("center-to-center placement at %g s, want 30 ns", got)
	}
}

func TestResolveTimingTakesLatestConstraint(t *testing.T) {
	s := schedule.New("latest")
	a := mustAdd(t, s, schedule.IdlePulse(100e-9), schedule.WithLabel("a"))
	b := mustAdd(t, s, schedule.IdlePulse(300e-9), schedule.WithLabel("b"))
	last := mustAdd(t, s, schedule.IdlePulse(40e-9), schedule.WithRef(a))
	if err := s.AddTimingConstraint(last, schedule.TimingConstraint{RefSchedulable: b}); err != nil {
		t.Fatalf("add constraint: %v", err)
	}

	placements := mustResolve(t, s)
	if got := placements[2].AbsTime; math.Abs(got-400e-9) > 1e-15 {
		t.Fatalf("constrained placement at %g s, want 400 ns", got)
	}
}

func TestResolveTimingIsIdempotent(t *testing.T) {
	s := schedule.New("idempotent")
	mustAdd(t, s, schedule.IdlePulse(100e-9))
	mustAdd(t, s, schedule.IdlePulse(40e-9), schedule.WithRelTime(8e-9))

	first := mustResolve(t, s)
	second := mustResolve(t, s)
	for i := range first {
		if first[i].AbsTime != second[i].AbsTime {
			t.Fatalf("placement %d moved between runs: %g vs %g", i, first[i].AbsTime, second[i].AbsTime)
		}
	}
}

func TestResolveTimingEmptySchedule(t *testing.T) {
	if _, err := ResolveTiming(schedule.New("empty")); err == nil {
		t.Fatalf("expected an error for an empty schedule")
	}
}

func TestResolveTimingRejectsUnresolvedReference(t *testing.T) {
	s := schedule.New("forward")
	mustAdd(t, s, schedule.IdlePulse(100e-9), schedule.WithLabel("early"))
	mustAdd(t, s, schedule.IdlePulse(100e-9), schedule.WithLabel("late"))

	payload, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc := strings.Replace(string(payload),
		`"timing_constraints":[{"rel_time":0}]`,
		`"timing_constraints":[{"rel_time":0,"ref_schedulable":"late"}]`, 1)
	var decoded schedule.Schedule
	if err := json.Unmarshal([]byte(doc), &decoded); err != nil {
		t.Fatalf("unmarshal tampered schedule: %v", err)
	}

	if _, err := ResolveTiming(&decoded); err == nil {
		t.Fatalf("expected an error for a reference that is not resolved yet")
	}
}
