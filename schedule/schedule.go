package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RefPt names a point of an operation that timing constraints can anchor
// to. An empty value lets the timing resolver pick the default: the end of
// the referenced operation, the start of the new one.
type RefPt string

const (
	RefPtStart  RefPt = "start"
	RefPtCenter RefPt = "center"
	RefPtEnd    RefPt = "end"
)

func validRefPt(pt RefPt) bool {
	switch pt {
	case "", RefPtStart, RefPtCenter, RefPtEnd:
		return true
	}
	return false
}

// TimingConstraint positions a schedulable relative to an earlier one.
// RefSchedulable names the anchor by label; empty means the previously
// added schedulable, or the schedule origin for the first one. RelTime is
// the signed distance in seconds between the two reference points.
type TimingConstraint struct {
	RelTime        float64 `json:"rel_time"`
	RefSchedulable string  `json:"ref_schedulable,omitempty"`
	RefPt          RefPt   `json:"ref_pt,omitempty"`
	RefPtNew       RefPt   `json:"ref_pt_new,omitempty"`
}

// Schedulable is one timed occurrence of an operation within a schedule.
// It carries no absolute time: placement is computed during compilation
// from the timing constraints, so a schedule can be compiled repeatedly
// without mutating it.
type Schedulable struct {
	Label  string             `json:"label"`
	OpHash string             `json:"operation_hash"`
	Timing []TimingConstraint `json:"timing_constraints"`
}

// Resource types a schedule can declare.
const ResourceTypeClock = "clock"

// Resource describes a named schedule resource. Clocks carry the frequency
// their ports are modulated at; the compiler reads it when retuning NCOs.
type Resource struct {
	Type string  `json:"type"`
	Freq float64 `json:"freq,omitempty"`
}

// Schedule is an ordered collection of schedulables over a content-addressed
// operation store. New schedules come with the baseband and digital clocks
// registered.
type Schedule struct {
	name        string
	repetitions int
	operations  map[string]Operation
	order       []Schedulable
	labels      map[string]int
	resources   map[string]Resource
}

// Option configures a schedule at construction time.
type Option func(*Schedule)

// WithRepetitions sets how many times the hardware repeats the schedule.
// Values below one are ignored.
func WithRepetitions(n int) Option {
	return func(s *Schedule) {
		if n >= 1 {
			s.repetitions = n
		}
	}
}

// New creates an empty schedule.
func New(name string, opts ...Option) *Schedule {
	s := &Schedule{
		name:        name,
		repetitions: 1,
		operations:  make(map[string]Operation),
		labels:      make(map[string]int),
		resources: map[string]Resource{
			BasebandClockName: {Type: ResourceTypeClock},
			DigitalClockName:  {Type: ResourceTypeClock},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the schedule name.
func (s *Schedule) Name() string { return s.name }

// Repetitions returns how many times the hardware repeats the schedule.
func (s *Schedule) Repetitions() int { return s.repetitions }

// AddClock registers a clock resource. Adding a name twice is an error.
func (s *Schedule) AddClock(name string, freqHz float64) error {
	if name == "" {
		return errors.New("cannot register a clock without a name")
	}
	if _, exists := s.resources[name]; exists {
		return fmt.Errorf("resource %s is already registered on schedule %s", name, s.name)
	}
	s.resources[name] = Resource{Type: ResourceTypeClock, Freq: freqHz}
	return nil
}

// Resource looks up a registered resource by name.
func (s *Schedule) Resource(name string) (Resource, bool) {
	r, ok := s.resources[name]
	return r, ok
}

// AddOption configures one Add call.
type AddOption func(*addConfig)

type addConfig struct {
	label    string
	relTime  float64
	ref      string
	refPt    RefPt
	refPtNew RefPt
}

// WithLabel overrides the generated label of the new schedulable.
func WithLabel(label string) AddOption {
	return func(c *addConfig) { c.label = label }
}

// WithRelTime offsets the new schedulable by the given number of seconds
// relative to its reference point.
func WithRelTime(seconds float64) AddOption {
	return func(c *addConfig) { c.relTime = seconds }
}

// WithRef anchors the new schedulable to the schedulable with the given
// label instead of the previously added one.
func WithRef(label string) AddOption {
	return func(c *addConfig) { c.ref = label }
}

// WithRefPt selects which point of the referenced operation to anchor to.
func WithRefPt(pt RefPt) AddOption {
	return func(c *addConfig) { c.refPt = pt }
}

// WithRefPtNew selects which point of the new operation lands on the
// anchor.
func WithRefPtNew(pt RefPt) AddOption {
	return func(c *addConfig) { c.refPtNew = pt }
}

// Add appends an operation to the schedule and returns the label of the
// new schedulable. The operation is stored under its content hash, so
// adding the same operation many times keeps a single copy.
func (s *Schedule) Add(op Operation, opts ...AddOption) (string, error) {
	if op.Name == "" {
		return "", errors.New("cannot add an operation without a name")
	}
	if len(op.Pulses) == 0 && len(op.Acquisitions) == 0 {
		return "", fmt.Errorf("operation %s has no pulse or acquisition content", op.Name)
	}
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	label := cfg.label
	if label == "" {
		label = fmt.Sprintf("%s-%d", op.Name, len(s.order))
	}
	if _, exists := s.labels[label]; exists {
		return "", fmt.Errorf("label %s is already in use on schedule %s", label, s.name)
	}
	if cfg.ref != "" {
		if _, ok := s.labels[cfg.ref]; !ok {
			return "", fmt.Errorf("reference %s does not name an earlier schedulable", cfg.ref)
		}
	}
	if !validRefPt(cfg.refPt) {
		return "", fmt.Errorf("unknown reference point %q", cfg.refPt)
	}
	if !validRefPt(cfg.refPtNew) {
		return "", fmt.Errorf("unknown reference point %q", cfg.refPtNew)
	}
	hash, err := op.Hash()
	if err != nil {
		return "", err
	}
	s.operations[hash] = op
	s.order = append(s.order, Schedulable{
		Label:  label,
		OpHash: hash,
		Timing: []TimingConstraint{{
			RelTime:        cfg.relTime,
			RefSchedulable: cfg.ref,
			RefPt:          cfg.refPt,
			RefPtNew:       cfg.refPtNew,
		}},
	})
	s.labels[label] = len(s.order) - 1
	return label, nil
}

// AddTimingConstraint attaches an extra constraint to an existing
// schedulable. The resolver places the schedulable at the latest time any
// of its constraints demands. The referenced schedulable must come earlier
// in the schedule.
func (s *Schedule) AddTimingConstraint(label string, tc TimingConstraint) error {
	idx, ok := s.labels[label]
	if !ok {
		return fmt.Errorf("schedulable %s not found on schedule %s", label, s.name)
	}
	if !validRefPt(tc.RefPt) || !validRefPt(tc.RefPtNew) {
		return fmt.Errorf("unknown reference point on constraint for %s", label)
	}
	if tc.RefSchedulable != "" {
		refIdx, ok := s.labels[tc.RefSchedulable]
		if !ok {
			return fmt.Errorf("reference %s does not name an earlier schedulable", tc.RefSchedulable)
		}
		if refIdx >= idx {
			return fmt.Errorf("constraint on %s references %s which is not scheduled earlier", label, tc.RefSchedulable)
		}
	}
	s.order[idx].Timing = append(s.order[idx].Timing, tc)
	return nil
}

// Schedulables returns the schedulables in insertion order.
func (s *Schedule) Schedulables() []Schedulable {
	out := make([]Schedulable, len(s.order))
	copy(out, s.order)
	return out
}

// Operation looks up an operation by content hash.
func (s *Schedule) Operation(hash string) (Operation, bool) {
	op, ok := s.operations[hash]
	return op, ok
}

type scheduleJSON struct {
	Name         string               `json:"name"`
	Repetitions  int                  `json:"repetitions"`
	Operations   map[string]Operation `json:"operations"`
	Schedulables []Schedulable        `json:"schedulables"`
	Resources    map[string]Resource  `json:"resources"`
}

// MarshalJSON encodes the schedule including its operation store and
// resources, suitable for handing to another process or persisting.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		Name:         s.name,
		Repetitions:  s.repetitions,
		Operations:   s.operations,
		Schedulables: s.order,
		Resources:    s.resources,
	})
}

// UnmarshalJSON decodes a schedule and verifies that every stored
// operation still matches its content hash and that every schedulable
// points at a stored operation.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var doc scheduleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode schedule: %w", err)
	}
	if doc.Repetitions < 1 {
		doc.Repetitions = 1
	}
	for hash, op := range doc.Operations {
		recomputed, err := op.Hash()
		if err != nil {
			return err
		}
		if recomputed != hash {
			return fmt.Errorf("operation %s stored under %s does not match its content hash", op.Name, hash)
		}
	}
	labels := make(map[string]int, len(doc.Schedulables))
	for i, sched := range doc.Schedulables {
		if _, ok := doc.Operations[sched.OpHash]; !ok {
			return fmt.Errorf("schedulable %s references unknown operation %s", sched.Label, sched.OpHash)
		}
		if _, dup := labels[sched.Label]; dup {
			return fmt.Errorf("label %s appears twice in schedule %s", sched.Label, doc.Name)
		}
		labels[sched.Label] = i
	}
	s.name = doc.Name
	s.repetitions = doc.Repetitions
	s.operations = doc.Operations
	s.order = doc.Schedulables
	s.labels = labels
	s.resources = doc.Resources
	if s.operations == nil {
		s.operations = make(map[string]Operation)
	}
	if s.resources == nil {
		s.resources = make(map[string]Resource)
	}
	return nil
}
