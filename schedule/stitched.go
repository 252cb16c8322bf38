package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pverheul/tactus/asm"
)

func timesClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12
}

type offsetSegment struct {
	path0    float64
	path1    float64
	t0       float64
	duration float64
	bounded  bool
}

func (s offsetSegment) end() float64 {
	if !s.bounded {
		return s.t0
	}
	return s.t0 + s.duration
}

// StitchedPulseBuilder assembles a long operation from short sampled
// pulses and DC voltage offsets, trading waveform memory for instruction
// count. Offsets with a duration are automatically reset afterwards:
// to zero, or to the value of an earlier open-ended offset, unless the
// next offset starts exactly where they end. Open-ended offsets hold
// until the end of the stitched pulse, where a final reset to zero is
// emitted if anything is still standing.
type StitchedPulseBuilder struct {
	name    string
	port    string
	clock   string
	t0      float64
	pulses  []PulseInfo
	offsets []offsetSegment
}

// NewStitchedPulseBuilder returns an empty builder. Port and clock must be
// set before Build.
func NewStitchedPulseBuilder() *StitchedPulseBuilder {
	return &StitchedPulseBuilder{name: "StitchedPulse"}
}

// SetName names the built operation.
func (b *StitchedPulseBuilder) SetName(name string) *StitchedPulseBuilder {
	b.name = name
	return b
}

// SetPort sets the port every component plays on.
func (b *StitchedPulseBuilder) SetPort(port string) *StitchedPulseBuilder {
	b.port = port
	return b
}

// SetClock sets the clock every component is modulated with.
func (b *StitchedPulseBuilder) SetClock(clock string) *StitchedPulseBuilder {
	b.clock = clock
	return b
}

// SetT0 delays the whole stitched pulse within its operation.
func (b *StitchedPulseBuilder) SetT0(t0 float64) *StitchedPulseBuilder {
	b.t0 = t0
	return b
}

// OperationEnd returns the current end time of the builder's content.
// Open-ended offsets do not extend it.
func (b *StitchedPulseBuilder) OperationEnd() float64 {
	var end float64
	for _, p := range b.pulses {
		if t := p.T0 + p.Duration; t > end {
			end = t
		}
	}
	for _, seg := range b.offsets {
		if t := seg.end(); t > end {
			end = t
		}
	}
	return end
}

func (b *StitchedPulseBuilder) checkAddable(op Operation) error {
	if op.HasAcquisitions() {
		return errors.New("cannot add an acquisition to a stitched pulse, add it directly to the schedule")
	}
	if len(op.Pulses) == 0 {
		return fmt.Errorf("operation %s carries no pulses to stitch", op.Name)
	}
	for _, info := range op.Pulses {
		if info.Kind == KindOffset {
			return errors.New("cannot add a voltage offset through AddPulse, use AddVoltageOffset")
		}
	}
	return nil
}

// AddPulse appends the operation's pulses at the current end of the
// stitched pulse. The port and clock of the pulses are overwritten when
// the stitched pulse is built.
func (b *StitchedPulseBuilder) AddPulse(op Operation) error {
	if err := b.checkAddable(op); err != nil {
		return err
	}
	shift := b.OperationEnd()
	for _, info := range op.Pulses {
		info.T0 += shift
		b.pulses = append(b.pulses, info)
	}
	return nil
}

// InsertPulse places the operation's pulses at their own start times
// relative to the start of the stitched pulse, instead of appending them.
func (b *StitchedPulseBuilder) InsertPulse(op Operation) error {
	if err := b.checkAddable(op); err != nil {
		return err
	}
	b.pulses = append(b.pulses, op.Pulses...)
	return nil
}

// OffsetOption configures one AddVoltageOffset call.
type OffsetOption func(*offsetConfig)

type offsetConfig struct {
	duration float64
	bounded  bool
	relTime  float64
	anchored bool
}

// OffsetDuration bounds the offset to the given number of seconds, after
// which it is reset. Without it the offset holds until the end of the
// stitched pulse.
func OffsetDuration(seconds float64) OffsetOption {
	return func(c *offsetConfig) {
		c.duration = seconds
		c.bounded = true
	}
}

// OffsetRelTime shifts the offset start by the given number of seconds.
func OffsetRelTime(seconds float64) OffsetOption {
	return func(c *offsetConfig) { c.relTime = seconds }
}

// OffsetAnchored places the offset relative to the start of the stitched
// pulse instead of its current end.
func OffsetAnchored() OffsetOption {
	return func(c *offsetConfig) { c.anchored = true }
}

// AddVoltageOffset stages a DC offset of both AWG paths at the current end
// of the stitched pulse. Bounded offsets must last at least one hardware
// grid slot and may not overlap each other.
func (b *StitchedPulseBuilder) AddVoltageOffset(path0, path1 float64, opts ...OffsetOption) error {
	var cfg offsetConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	start := cfg.relTime
	if !cfg.anchored {
		start += b.OperationEnd()
	}
	minDuration := asm.GridTimeNS * 1e-9
	if cfg.bounded && cfg.duration < minDuration {
		return fmt.Errorf("the minimum duration of a voltage offset is %g s, got %g s", minDuration, cfg.duration)
	}
	seg := offsetSegment{
		path0:    path0,
		path1:    path1,
		t0:       start,
		duration: cfg.duration,
		bounded:  cfg.bounded,
	}
	if b.overlapsExisting(seg) {
		return errors.New("voltage offset overlaps an existing offset on the stitched pulse")
	}
	b.offsets = append(b.offsets, seg)
	return nil
}

func (b *StitchedPulseBuilder) overlapsExisting(seg offsetSegment) bool {
	segs := make([]offsetSegment, 0, len(b.offsets)+1)
	segs = append(segs, b.offsets...)
	segs = append(segs, seg)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].t0 < segs[j].t0 })
	for i := 0; i < len(segs)-1; i++ {
		if segs[i+1].t0 < segs[i].end() {
			return true
		}
	}
	return false
}

func (b *StitchedPulseBuilder) offsetInfo(path0, path1, t0 float64) PulseInfo {
	return PulseInfo{
		Kind:        KindOffset,
		Port:        b.port,
		Clock:       b.clock,
		T0:          t0,
		OffsetPath0: path0,
		OffsetPath1: path1,
	}
}

// offsetStream turns the staged segments into the minimal sequence of
// offset infos, including the resets implied by segment durations.
func (b *StitchedPulseBuilder) offsetStream() []PulseInfo {
	if len(b.offsets) == 0 {
		return nil
	}
	segs := make([]offsetSegment, len(b.offsets))
	copy(segs, b.offsets)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].t0 < segs[j].t0 })

	end := b.OperationEnd()
	stream := make([]PulseInfo, 0, 2*len(segs)+1)
	background := [2]float64{}
	for i, seg := range segs {
		stream = append(stream, b.offsetInfo(seg.path0, seg.path1, seg.t0))
		if !seg.bounded {
			background = [2]float64{seg.path0, seg.path1}
			continue
		}
		segEnd := seg.t0 + seg.duration
		if timesClose(segEnd, end) {
			background = [2]float64{}
		}
		// A bounded segment needs no reset when the next one starts
		// exactly where it ends.
		if i+1 >= len(segs) || !timesClose(segs[i+1].t0, segEnd) {
			stream = append(stream, b.offsetInfo(background[0], background[1], segEnd))
		}
	}
	if !timesClose(background[0], 0) || !timesClose(background[1], 0) {
		stream = append(stream, b.offsetInfo(0, 0, end))
	}
	return stream
}

// Build assembles the staged pulses and offsets into one operation. The
// builder's port, clock and t0 are distributed over every component.
func (b *StitchedPulseBuilder) Build() (Operation, error) {
	if b.port == "" {
		return Operation{}, errors.New("no port is defined")
	}
	if b.clock == "" {
		return Operation{}, errors.New("no clock is defined")
	}
	infos := make([]PulseInfo, 0, len(b.pulses))
	for _, info := range b.pulses {
		info.Port = b.port
		info.Clock = b.clock
		infos = append(infos, info)
	}
	infos = append(infos, b.offsetStream()...)
	for i := range infos {
		infos[i].T0 += b.t0
	}
	return Operation{Name: b.name, Pulses: infos}, nil
}
