package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/schedule"
	"github.com/pverheul/tactus/waveform"
)

// newAcquisitionStrategy classifies an acquisition by protocol and binds
// it to the bin registers prepared for the sequencer.
func newAcquisitionStrategy(op OpInfo, env strategyEnv) (opStrategy, error) {
	acq := op.Acquisition
	if acq == nil {
		return nil, fmt.Errorf("%s carries no acquisition data", op)
	}
	var binReg string
	switch acq.BinMode {
	case schedule.BinModeAverage:
	case schedule.BinModeAppend:
		reg, ok := env.binRegisters[acq.Channel]
		if !ok {
			return nil, fmt.Errorf("%s: no bin register prepared for acquisition channel %d", op, acq.Channel)
		}
		binReg = reg
	default:
		return nil, fmt.Errorf("%s uses an unrecognized bin mode %q", op, acq.BinMode)
	}
	switch acq.Protocol {
	case schedule.ProtocolTrace:
		if acq.BinMode == schedule.BinModeAppend {
			return nil, fmt.Errorf("%s: trace acquisition does not support the append bin mode", op)
		}
		return &acquireStrategy{op: op}, nil
	case schedule.ProtocolSSBIntegrationComplex, schedule.ProtocolThresholdedAcquisition:
		return &acquireStrategy{op: op, binReg: binReg}, nil
	case schedule.ProtocolWeightedIntegratedComplex:
		return &weighedAcquireStrategy{op: op, binReg: binReg}, nil
	case schedule.ProtocolTriggerCount:
		return &triggerCountStrategy{op: op, binReg: binReg}, nil
	}
	return nil, fmt.Errorf("%s uses an unrecognized acquisition protocol %q", op, acq.Protocol)
}

// binArg renders the bin field of an acquire instruction: the fixed index
// in average mode, the channel's running register in append mode.
func binArg(acq *schedule.AcquisitionInfo, binReg string) string {
	if binReg != "" {
		return binReg
	}
	return fmt.Sprintf("%d", acq.Index)
}

func emitBinIncrement(p *asm.Program, channel int, binReg string) {
	if binReg == "" {
		return
	}
	p.Emit(asm.OpAdd, fmt.Sprintf("%s,1,%s", binReg, binReg), fmt.Sprintf("increment bin index for channel %d", channel))
}

// acquireStrategy covers the protocols the input path handles on its own:
// trace recording and square-windowed integration, thresholded or not.
// Their integration parameters live in the sequencer settings, so the
// program only starts the acquisition.
type acquireStrategy struct {
	op     OpInfo
	binReg string
}

func (s *acquireStrategy) registerData(*Table) error { return nil }

func (s *acquireStrategy) emit(p *asm.Program) error {
	acq := s.op.Acquisition
	p.Emit(asm.OpAcquire, fmt.Sprintf("%d,%s,%d", acq.Channel, binArg(acq, s.binReg), asm.MinOperationTimeNS), "")
	p.AddElapsed(asm.MinOperationTimeNS)
	emitBinIncrement(p, acq.Channel, s.binReg)
	return nil
}

// weighedAcquireStrategy integrates the input against two sampled weight
// shapes held in waveform memory.
type weighedAcquireStrategy struct {
	op     OpInfo
	binReg string
	index0 int
	index1 int
}

func (s *weighedAcquireStrategy) registerData(table *Table) error {
	acq := s.op.Acquisition
	if len(acq.Waveforms) != 2 {
		return fmt.Errorf("%s needs two integration weights, got %d", s.op, len(acq.Waveforms))
	}
	indices := []*int{&s.index0, &s.index1}
	for i, weight := range acq.Waveforms {
		axis := waveform.TimeAxis(weight.Duration, asm.SamplingRate)
		data, err := waveform.Generate(weight.WfFunc, axis, weight.Params)
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		idx, err := table.Register(realSamples(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		*indices[i] = idx
	}
	return nil
}

func (s *weighedAcquireStrategy) emit(p *asm.Program) error {
	acq := s.op.Acquisition
	p.Emit(asm.OpAcquireWeighed,
		fmt.Sprintf("%d,%s,%d,%d,%d", acq.Channel, binArg(acq, s.binReg), s.index0, s.index1, asm.MinOperationTimeNS), "")
	p.AddElapsed(asm.MinOperationTimeNS)
	emitBinIncrement(p, acq.Channel, s.binReg)
	return nil
}

// triggerCountStrategy counts input triggers by arming the TTL counter at
// the start of the window and disarming it at the end.
type triggerCountStrategy struct {
	op     OpInfo
	binReg string
}

func (s *triggerCountStrategy) registerData(*Table) error { return nil }

func (s *triggerCountStrategy) emit(p *asm.Program) error {
	acq := s.op.Acquisition
	bin := binArg(acq, s.binReg)
	p.Emit(asm.OpAcquireTTL, fmt.Sprintf("%d,%s,1,%d", acq.Channel, bin, asm.MinOperationTimeNS), "start counting input triggers")
	p.AddElapsed(asm.MinOperationTimeNS)
	if err := p.AutoWait(s.op.DurationNS() - 2*asm.MinOperationTimeNS); err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	p.Emit(asm.OpAcquireTTL, fmt.Sprintf("%d,%s,0,%d", acq.Channel, bin, asm.MinOperationTimeNS), "stop counting input triggers")
	p.AddElapsed(asm.MinOperationTimeNS)
	emitBinIncrement(p, acq.Channel, s.binReg)
	return nil
}
