package compiler

import (
	"fmt"
	"math"

	"github.com/pverheul/tactus/schedule"
)

// Placement is a schedulable with its resolved absolute start time.
type Placement struct {
	Label   string
	AbsTime float64
	Op      schedule.Operation
}

// EndTime returns the absolute end time of the placed operation.
func (p Placement) EndTime() float64 { return p.AbsTime + p.Op.Duration() }

// ResolveTiming assigns an absolute start time to every schedulable of the
// schedule. Constraints resolve in insertion order: the new schedulable
// lands so that its own reference point coincides with the referenced
// point plus the relative time, and a schedulable with several constraints
// is delayed until the latest of them. An empty reference anchors to the
// previously placed schedulable, or to the schedule origin for the first
// one. Resolution never mutates the schedule, so it can run repeatedly
// and yields identical placements every time.
func ResolveTiming(sched *schedule.Schedule) ([]Placement, error) {
	schedulables := sched.Schedulables()
	if len(schedulables) == 0 {
		return nil, fmt.Errorf("schedule %s contains no schedulables", sched.Name())
	}
	placements := make([]Placement, 0, len(schedulables))
	resolved := make(map[string]int, len(schedulables))
	for i, s := range schedulables {
		op, ok := sched.Operation(s.OpHash)
		if !ok {
			return nil, fmt.Errorf("schedulable %s references unknown operation %s", s.Label, s.OpHash)
		}
		if len(s.Timing) == 0 {
			return nil, fmt.Errorf("schedulable %s carries no timing constraints", s.Label)
		}
		abs := math.Inf(-1)
		for _, tc := range s.Timing {
			var refTime, refDuration float64
			if tc.RefSchedulable == "" {
				if i > 0 {
					prev := placements[i-1]
					refTime, refDuration = prev.AbsTime, prev.Op.Duration()
				}
			} else {
				idx, ok := resolved[tc.RefSchedulable]
				if !ok {
					return nil, fmt.Errorf("constraint on %s references %s, which is not resolved yet", s.Label, tc.RefSchedulable)
				}
				ref := placements[idx]
				refTime, refDuration = ref.AbsTime, ref.Op.Duration()
			}
			refOffset, err := refPointOffset(tc.RefPt, schedule.RefPtEnd, refDuration)
			if err != nil {
				return nil, fmt.Errorf("constraint on %s: %w", s.Label, err)
			}
			newOffset, err := refPointOffset(tc.RefPtNew, schedule.RefPtStart, op.Duration())
			if err != nil {
				return nil, fmt.Errorf("constraint on %s: %w", s.Label, err)
			}
			if t := refTime + refOffset + tc.RelTime - newOffset; t > abs {
				abs = t
			}
		}
		placements = append(placements, Placement{Label: s.Label, AbsTime: abs, Op: op})
		resolved[s.Label] = i
	}
	return placements, nil
}

func refPointOffset(pt, def schedule.RefPt, duration float64) (float64, error) {
	if pt == "" {
		pt = def
	}
	switch pt {
	case schedule.RefPtStart:
		return 0, nil
	case schedule.RefPtCenter:
		return duration / 2, nil
	case schedule.RefPtEnd:
		return duration, nil
	}
	return 0, fmt.Errorf("unknown reference point %q", pt)
}

// ScheduleEnd returns the end time of the latest placement in seconds.
func ScheduleEnd(placements []Placement) float64 {
	var end float64
	for _, p := range placements {
		if t := p.EndTime(); t > end {
			end = t
		}
	}
	return end
}
