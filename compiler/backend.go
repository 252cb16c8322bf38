// Package compiler turns resolved schedules into sequencer programs,
// waveform tables and settings for a rack of AWG modules.
package compiler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/config"
	"github.com/pverheul/tactus/schedule"
	"github.com/pverheul/tactus/telemetry"
)

// freqConsistencyHz is the tolerance when checking that a fixed local
// oscillator and a fixed modulation frequency add up to a clock's carrier.
const freqConsistencyHz = 1e-6

// Backend compiles schedules against a fixed hardware configuration.
type Backend struct {
	cfg       config.HardwareConfig
	log       zerolog.Logger
	collector telemetry.Collector
}

// Option adjusts a Backend during construction.
type Option func(*Backend)

// WithLogger routes compilation diagnostics through the given logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// WithTelemetry installs the collector that receives compilation metrics.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(b *Backend) { b.collector = collector }
}

// NewBackend creates a backend for the given hardware configuration.
func NewBackend(cfg config.HardwareConfig, opts ...Option) *Backend {
	b := &Backend{
		cfg:       cfg,
		log:       zerolog.Nop(),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Compiled holds everything needed to run one schedule on the hardware.
type Compiled struct {
	Schedule string
	Modules  map[string]ModuleProgram
}

// ModuleProgram carries the artifacts for a single module. Modules whose
// channels play no part in the schedule are left out of Compiled entirely.
type ModuleProgram struct {
	Settings   ModuleSettings
	Sequencers map[string]SequencerProgram
}

// SequencerProgram is the compiled artifact for one sequencer.
type SequencerProgram struct {
	PortClock string
	Program   string
	Waveforms map[string]TableEntry
	Settings  SequencerSettings
}

// sequencerSlot is one port-clock combination bound to a sequencer of a
// module, together with the operations routed to it.
type sequencerSlot struct {
	name      string
	portClock config.PortClockConfig
	traits    ChannelTraits
	settings  SequencerSettings
	modFreq   *float64
	ops       []OpInfo
}

type moduleJob struct {
	name     string
	props    StaticHardwareProperties
	settings ModuleSettings
	slots    []*sequencerSlot
}

// Compile resolves the schedule's timing, routes every pulse and acquisition
// to the sequencer driving its port and clock, and assembles one program per
// sequencer. Modules compile concurrently; the result is deterministic.
func (b *Backend) Compile(ctx context.Context, sched *schedule.Schedule) (*Compiled, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	placements, err := ResolveTiming(sched)
	if err != nil {
		return nil, b.fail(sched, err)
	}
	endNS := int(math.Round(ScheduleEnd(placements) * asm.SamplingRate))
	if endNS%asm.GridTimeNS != 0 {
		return nil, b.fail(sched, fmt.Errorf("schedule %s ends at %d ns, off the %d ns instruction grid", sched.Name(), endNS, asm.GridTimeNS))
	}
	if err := fillClockChanges(sched, placements); err != nil {
		return nil, b.fail(sched, err)
	}
	jobs, err := b.buildJobs(sched)
	if err != nil {
		return nil, b.fail(sched, err)
	}
	if err := distribute(placements, jobs); err != nil {
		return nil, b.fail(sched, err)
	}
	for _, job := range jobs {
		for _, slot := range job.slots {
			ops := slot.ops
			sort.SliceStable(ops, func(i, j int) bool { return ops[i].Timing < ops[j].Timing })
			fillModulationHistory(slot)
		}
	}

	type moduleResult struct {
		sequencers map[string]SequencerProgram
		err        error
	}
	results := make([]moduleResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job *moduleJob) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i] = moduleResult{err: err}
				return
			}
			sequencers, err := b.compileModule(sched, job, endNS)
			results[i] = moduleResult{sequencers: sequencers, err: err}
		}(i, job)
	}
	wg.Wait()

	compiled := &Compiled{Schedule: sched.Name(), Modules: make(map[string]ModuleProgram)}
	for i, job := range jobs {
		if results[i].err != nil {
			return nil, b.fail(sched, fmt.Errorf("module %s: %w", job.name, results[i].err))
		}
		if len(results[i].sequencers) == 0 {
			continue
		}
		compiled.Modules[job.name] = ModuleProgram{Settings: job.settings, Sequencers: results[i].sequencers}
	}
	b.collector.IncCompileSuccess(sched.Name())
	b.log.Info().
		Str("schedule", sched.Name()).
		Int("modules", len(compiled.Modules)).
		Int("duration_ns", endNS).
		Msg("schedule compiled")
	return compiled, nil
}

func (b *Backend) fail(sched *schedule.Schedule, err error) error {
	b.collector.IncCompileFailure(sched.Name())
	b.log.Error().Err(err).Str("schedule", sched.Name()).Msg("compilation failed")
	return err
}

func (b *Backend) compileModule(sched *schedule.Schedule, job *moduleJob, endNS int) (map[string]SequencerProgram, error) {
	sequencers := make(map[string]SequencerProgram)
	for _, slot := range job.slots {
		if len(slot.ops) == 0 {
			continue
		}
		program, table, err := assembleSequencer(sequencerInput{
			ops:         slot.ops,
			repetitions: sched.Repetitions(),
			endNS:       endNS,
			traits:      slot.traits,
			props:       job.props,
			options:     slot.portClock.Options,
			settings:    &slot.settings,
		})
		if err != nil {
			return nil, fmt.Errorf("sequencer %s (%s): %w", slot.name, slot.portClock.Key(), err)
		}
		sequencers[slot.name] = SequencerProgram{
			PortClock: slot.portClock.Key(),
			Program:   program.Render(),
			Waveforms: table.Entries(),
			Settings:  slot.settings,
		}
		b.collector.AddInstructions(job.name, slot.name, len(program.Instructions()))
		b.collector.SetWaveformMemory(job.name, slot.name, table.Samples())
		b.log.Debug().
			Str("module", job.name).
			Str("sequencer", slot.name).
			Str("port_clock", slot.portClock.Key()).
			Int("instructions", len(program.Instructions())).
			Int("samples", table.Samples()).
			Msg("sequencer assembled")
	}
	return sequencers, nil
}

// buildJobs binds every configured port-clock combination to a sequencer
// slot and resolves the modulation frequency each slot will run with.
func (b *Backend) buildJobs(sched *schedule.Schedule) ([]*moduleJob, error) {
	jobs := make([]*moduleJob, 0, len(b.cfg.Modules))
	for _, moduleName := range b.cfg.ModuleNames() {
		module := b.cfg.Modules[moduleName]
		props, err := PropertiesFor(module.InstrumentType)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", moduleName, err)
		}
		settings, err := buildModuleSettings(moduleName, props, module)
		if err != nil {
			return nil, err
		}
		job := &moduleJob{name: moduleName, props: props, settings: settings}
		for _, channelName := range module.ChannelNames() {
			channel := module.Channels[channelName]
			traits, err := ClassifyChannel(props, channelName)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", moduleName, err)
			}
			for _, pc := range channel.PortClocks {
				modFreq, err := resolveModulation(sched, moduleName, module, traits, pc, &job.settings)
				if err != nil {
					return nil, err
				}
				slot := &sequencerSlot{
					name:      fmt.Sprintf("seq%d", len(job.slots)),
					portClock: pc,
					traits:    traits,
					settings:  NewSequencerSettings(traits, pc),
					modFreq:   modFreq,
				}
				if err := slot.settings.SetModulation(pc.Key(), modFreq); err != nil {
					return nil, fmt.Errorf("module %s: %w", moduleName, err)
				}
				job.slots = append(job.slots, slot)
			}
		}
		if err := checkSequencerBudget(moduleName, len(job.slots), props); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func checkSequencerBudget(moduleName string, count int, props StaticHardwareProperties) error {
	if count > props.MaxSequencers {
		return fmt.Errorf("module %s binds %d port-clock combinations, a %s drives at most %d sequencers",
			moduleName, count, props.InstrumentType, props.MaxSequencers)
	}
	return nil
}

// ValidateHardware runs the checks of the hardware description that need
// per-instrument properties and that structural validation in the config
// package cannot do: channel names against the instrument family, DC
// offsets against the mixer range, the sequencer count limit.
func ValidateHardware(cfg config.HardwareConfig) error {
	for _, moduleName := range cfg.ModuleNames() {
		module := cfg.Modules[moduleName]
		props, err := PropertiesFor(module.InstrumentType)
		if err != nil {
			return fmt.Errorf("module %s: %w", moduleName, err)
		}
		if _, err := buildModuleSettings(moduleName, props, module); err != nil {
			return err
		}
		slots := 0
		for _, channelName := range module.ChannelNames() {
			slots += len(module.Channels[channelName].PortClocks)
		}
		if err := checkSequencerBudget(moduleName, slots, props); err != nil {
			return err
		}
	}
	return nil
}

// resolveModulation determines the NCO frequency for one port-clock
// combination. Baseband modules modulate only when an explicit interm_freq
// is configured. RF modules mix the NCO with a local oscillator, so the
// carrier frequency of the clock resource pins down whichever of the two is
// not fixed in the hardware configuration.
func resolveModulation(sched *schedule.Schedule, moduleName string, module config.ModuleConfig, traits ChannelTraits, pc config.PortClockConfig, settings *ModuleSettings) (*float64, error) {
	if traits.Mode == IOModeDigital {
		return nil, nil
	}
	if !module.InstrumentType.IsRF() {
		if pc.IntermFreq == nil {
			return nil, nil
		}
		freq := *pc.IntermFreq
		return &freq, nil
	}
	resource, ok := sched.Resource(pc.Clock)
	if !ok {
		return nil, fmt.Errorf("clock %s is not a resource of schedule %s", pc.Clock, sched.Name())
	}
	idx, ok := loIndexFor(traits)
	if !ok {
		return nil, fmt.Errorf("module %s: channel %s of a %s has no local oscillator", moduleName, traits.Name, module.InstrumentType)
	}
	lo := settings.Lo0Freq
	if idx == 1 {
		lo = settings.Lo1Freq
	}
	switch {
	case lo != nil && pc.IntermFreq != nil:
		if math.Abs(*lo+*pc.IntermFreq-resource.Freq) > freqConsistencyHz {
			return nil, fmt.Errorf("module %s: lo%d_freq %g Hz plus interm_freq %g Hz does not reach clock %s at %g Hz",
				moduleName, idx, *lo, *pc.IntermFreq, pc.Clock, resource.Freq)
		}
		freq := *pc.IntermFreq
		return &freq, nil
	case lo != nil:
		freq := resource.Freq - *lo
		return &freq, nil
	case pc.IntermFreq != nil:
		if err := setLoFreq(moduleName, traits, resource.Freq-*pc.IntermFreq, settings); err != nil {
			return nil, err
		}
		freq := *pc.IntermFreq
		return &freq, nil
	default:
		return nil, fmt.Errorf("module %s: clock %s needs lo%d_freq or an interm_freq to place the %g Hz carrier",
			moduleName, pc.Clock, idx, resource.Freq)
	}
}

// fillClockChanges walks the placements in time order and records, on every
// frequency change, the clock frequency it replaces. The pulse slices are
// cloned before the first write so the schedule's own operations stay
// untouched and a second compilation starts from a clean slate.
func fillClockChanges(sched *schedule.Schedule, placements []Placement) error {
	freqs := make(map[string]float64)
	current := func(clock string) (float64, error) {
		if freq, ok := freqs[clock]; ok {
			return freq, nil
		}
		resource, ok := sched.Resource(clock)
		if !ok {
			return 0, fmt.Errorf("clock %s is not a resource of schedule %s", clock, sched.Name())
		}
		freqs[clock] = resource.Freq
		return resource.Freq, nil
	}
	for pi := range placements {
		cloned := false
		for j := range placements[pi].Op.Pulses {
			if placements[pi].Op.Pulses[j].Kind != schedule.KindSetFrequency {
				continue
			}
			if !cloned {
				placements[pi].Op.Pulses = append([]schedule.PulseInfo(nil), placements[pi].Op.Pulses...)
				cloned = true
			}
			info := &placements[pi].Op.Pulses[j]
			if info.ClockFreqNew == nil {
				return fmt.Errorf("%s does not carry a target frequency for clock %s", placements[pi].Label, info.Clock)
			}
			old, err := current(info.Clock)
			if err != nil {
				return err
			}
			before := old
			info.ClockFreqOld = &before
			freqs[info.Clock] = *info.ClockFreqNew
		}
	}
	return nil
}

// distribute routes every pulse and acquisition to the sequencer slots whose
// port and clock match. Pulses without a port address all sequencers running
// on their clock and may match none at all.
func distribute(placements []Placement, jobs []*moduleJob) error {
	for pi := range placements {
		placement := &placements[pi]
		for j := range placement.Op.Pulses {
			info := &placement.Op.Pulses[j]
			op := OpInfo{Name: placement.Label, Timing: placement.AbsTime + info.T0, Pulse: info}
			if info.Port == "" {
				broadcast(jobs, info.Clock, op)
				continue
			}
			if len(claim(jobs, info.Port, info.Clock, op)) == 0 {
				return fmt.Errorf("%s plays on port %s with clock %s, which no module drives", op, info.Port, info.Clock)
			}
		}
		for j := range placement.Op.Acquisitions {
			acq := &placement.Op.Acquisitions[j]
			op := OpInfo{Name: placement.Label, Timing: placement.AbsTime + acq.T0, Acquisition: acq}
			claimed := claim(jobs, acq.Port, acq.Clock, op)
			if len(claimed) == 0 {
				return fmt.Errorf("%s measures port %s with clock %s, which no module drives", op, acq.Port, acq.Clock)
			}
			for _, job := range claimed {
				if !job.props.InstrumentType.HasInputs() {
					return fmt.Errorf("%s lands on module %s, but a %s has no inputs", op, job.name, job.props.InstrumentType)
				}
			}
		}
	}
	return nil
}

func broadcast(jobs []*moduleJob, clock string, op OpInfo) {
	for _, job := range jobs {
		for _, slot := range job.slots {
			if slot.portClock.Clock == clock {
				slot.ops = append(slot.ops, op)
			}
		}
	}
}

func claim(jobs []*moduleJob, port, clock string, op OpInfo) []*moduleJob {
	var claimed []*moduleJob
	for _, job := range jobs {
		for _, slot := range job.slots {
			if slot.portClock.Port == port && slot.portClock.Clock == clock {
				slot.ops = append(slot.ops, op)
				claimed = append(claimed, job)
			}
		}
	}
	return claimed
}

// fillModulationHistory threads the slot's modulation frequency through its
// frequency changes, in time order. A pulse shared between slots is cloned
// first: two sequencers listening to the same clock can run different
// modulation frequencies.
func fillModulationHistory(slot *sequencerSlot) {
	running := slot.modFreq
	for i, op := range slot.ops {
		info := op.Pulse
		if info == nil || info.Kind != schedule.KindSetFrequency || running == nil {
			continue
		}
		clone := *info
		base := *running
		clone.IntermFreqOld = &base
		slot.ops[i].Pulse = &clone
		if clone.ClockFreqNew != nil && clone.ClockFreqOld != nil {
			next := base + *clone.ClockFreqNew - *clone.ClockFreqOld
			running = &next
		}
	}
}
