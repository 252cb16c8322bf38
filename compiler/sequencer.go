package compiler

import (
	"fmt"
	"sort"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/config"
	"github.com/pverheul/tactus/schedule"
)

// maxProgramInstructions is the instruction memory of one sequencer.
const maxProgramInstructions = 12288

// sequencerInput carries everything the lowering of one sequencer needs:
// its operations in playback order, the schedule-wide repetition count and
// end time, and the hardware context of the channel it drives.
type sequencerInput struct {
	ops         []OpInfo
	repetitions int
	endNS       int
	traits      ChannelTraits
	props       StaticHardwareProperties
	options     config.SequencerOptions
	settings    *SequencerSettings
}

// assembleSequencer lowers the operations of one sequencer into a program
// and its waveform table. The program replays the whole schedule once per
// repetition; between operations it waits out the gaps their timings
// dictate. Acquisition driven settings are collected on the way.
func assembleSequencer(in sequencerInput) (*asm.Program, *Table, error) {
	p := asm.NewProgram(asm.NewRegisterManager(), true)
	table := NewTable()

	binRegisters, err := allocateBinRegisters(p, in.ops)
	if err != nil {
		return nil, nil, err
	}
	env := strategyEnv{
		mode:                 in.traits.Mode,
		instructionGenerated: in.options.InstructionGeneratedPulses,
		markerOn:             in.props.DefaultMarker | in.traits.MarkerBit,
		markerOff:            in.props.DefaultMarker,
		binRegisters:         binRegisters,
	}

	strategies := make([]opStrategy, len(in.ops))
	for i, op := range in.ops {
		if err := checkChannelAdmits(in.traits, op); err != nil {
			return nil, nil, err
		}
		strategy, err := newOpStrategy(op, env)
		if err != nil {
			return nil, nil, err
		}
		if err := strategy.registerData(table); err != nil {
			return nil, nil, err
		}
		if op.IsAcquisition() {
			if err := applyAcquisitionSettings(in, op); err != nil {
				return nil, nil, err
			}
		}
		strategies[i] = strategy
	}

	p.Emit(asm.OpSetMrk, fmt.Sprintf("%d", in.props.DefaultMarker), "set default marker bits")
	p.Emit(asm.OpWaitSync, fmt.Sprintf("%d", asm.MinOperationTimeNS), "synchronize sequencers")
	p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.MinOperationTimeNS), "")
	for _, channel := range sortedChannels(binRegisters) {
		p.Emit(asm.OpMove, fmt.Sprintf("0,%s", binRegisters[channel]),
			fmt.Sprintf("initialize bin index for channel %d", channel))
	}

	err = p.Loop("start", in.repetitions, func() error {
		bodyStart := p.ElapsedNS()
		if in.traits.Mode != IOModeDigital {
			p.Emit(asm.OpResetPh, "", "")
			p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.MinOperationTimeNS), "")
		}
		for i, op := range in.ops {
			if op.StartNS()%asm.GridTimeNS != 0 {
				return fmt.Errorf("%s starts at %d ns, off the %d ns instruction grid", op, op.StartNS(), asm.GridTimeNS)
			}
			gap := op.StartNS() - (p.ElapsedNS() - bodyStart)
			if gap < 0 {
				return fmt.Errorf("%s overlaps the operation before it by %d ns", op, -gap)
			}
			if gap > 0 {
				if err := p.AutoWait(gap); err != nil {
					return err
				}
			}
			if err := strategies[i].emit(p); err != nil {
				return err
			}
		}
		tail := in.endNS - (p.ElapsedNS() - bodyStart)
		if tail < 0 {
			return fmt.Errorf("the last operation runs %d ns past the end of the schedule", -tail)
		}
		return p.AutoWait(tail)
	})
	if err != nil {
		return nil, nil, err
	}
	p.Emit(asm.OpStop, "", "")

	if rows := len(p.Instructions()); rows > maxProgramInstructions {
		return nil, nil, fmt.Errorf("the program needs %d instructions, the sequencer memory fits %d", rows, maxProgramInstructions)
	}
	return p, table, nil
}

// checkChannelAdmits rejects operations the channel's mode cannot carry:
// digital channels only switch markers, analog channels never do.
func checkChannelAdmits(traits ChannelTraits, op OpInfo) error {
	if op.Pulse != nil && op.Pulse.Kind == schedule.KindMarker {
		if traits.Mode != IOModeDigital {
			return fmt.Errorf("%s needs a digital channel, not the %s channel %s", op, traits.Mode, traits.Name)
		}
		return nil
	}
	if traits.Mode == IOModeDigital {
		if op.Pulse != nil && op.Pulse.Kind == schedule.KindIdle {
			return nil
		}
		return fmt.Errorf("%s cannot run on the digital channel %s", op, traits.Name)
	}
	return nil
}

// allocateBinRegisters reserves one register per acquisition channel that
// appends its results, so every repetition lands in a fresh bin.
func allocateBinRegisters(p *asm.Program, ops []OpInfo) (map[int]string, error) {
	channels := map[int]bool{}
	for _, op := range ops {
		if op.IsAcquisition() && op.Acquisition.BinMode == schedule.BinModeAppend {
			channels[op.Acquisition.Channel] = true
		}
	}
	if len(channels) == 0 {
		return nil, nil
	}
	registers := make(map[int]string, len(channels))
	for _, channel := range sortedChannels(channels) {
		register, err := p.Registers().Allocate()
		if err != nil {
			return nil, fmt.Errorf("allocating the bin register for acquisition channel %d: %w", channel, err)
		}
		registers[channel] = register
	}
	return registers, nil
}

func sortedChannels[V any](m map[int]V) []int {
	channels := make([]int, 0, len(m))
	for channel := range m {
		channels = append(channels, channel)
	}
	sort.Ints(channels)
	return channels
}

// applyAcquisitionSettings folds the settings an acquisition implies into
// the sequencer configuration. Conflicting demands surface as errors.
func applyAcquisitionSettings(in sequencerInput, op OpInfo) error {
	acq := op.Acquisition
	switch acq.Protocol {
	case schedule.ProtocolSSBIntegrationComplex, schedule.ProtocolThresholdedAcquisition, schedule.ProtocolWeightedIntegratedComplex:
		if err := in.settings.SetIntegrationLength(op, op.DurationNS()); err != nil {
			return err
		}
		if acq.Protocol == schedule.ProtocolThresholdedAcquisition {
			if err := in.settings.SetThresholding(op, acq.Rotation, acq.Threshold); err != nil {
				return err
			}
		}
	case schedule.ProtocolTriggerCount:
		input := 0
		if len(in.traits.Inputs) > 0 {
			input = in.traits.Inputs[0]
		}
		in.settings.TTLAcqInputSelect = &input
		if in.options.TTLAcqThreshold != nil {
			threshold := *in.options.TTLAcqThreshold
			in.settings.TTLAcqThreshold = &threshold
		}
		autoIncrement := acq.BinMode == schedule.BinModeAverage
		in.settings.TTLAcqAutoBinIncr = &autoIncrement
	}
	return nil
}
