package asm

// Hardware execution parameters shared by the program builder and the
// compiler strategies. All times are in nanoseconds unless a name says
// otherwise; the sequencer samples at one gigasample per second, so one
// sample equals one nanosecond.
const (
	// SamplingRate is the AWG output sample rate in samples per second.
	SamplingRate = 1e9

	// GridTimeNS is the minimum time quantum on which real-time
	// instructions may start.
	GridTimeNS = 4

	// MinOperationTimeNS is the shortest duration a real-time instruction
	// can occupy.
	MinOperationTimeNS = 4

	// StitchingDuration is the window, in seconds, above which square
	// pulses are stitched from repeated plays instead of sampled whole.
	StitchingDuration = 1e-6

	// StitchingDurationNS is StitchingDuration expressed in nanoseconds,
	// which is also the sample count of one stitching chunk.
	StitchingDurationNS = 1000

	// MaxWaitNS is the largest immediate accepted by a single wait
	// instruction. Longer waits are emitted as a register loop.
	MaxWaitNS = (1 << 16) - 4

	// NumberOfRegisters is the size of the sequencer register file.
	NumberOfRegisters = 64

	// RegisterSize is the modulus of the 32 bit sequencer registers.
	RegisterSize = 1 << 32

	// MaxWaveformSamples is the sample capacity of one sequencer's
	// waveform memory.
	MaxWaveformSamples = 16384
)

// NCO parameter encoding. Phase immediates are expressed in steps of a full
// turn divided by NcoPhaseSteps; frequency immediates in steps of
// 1/NcoFreqStepsPerHz hertz, valid up to +-NcoFreqLimitHz.
const (
	NcoPhaseSteps     = 1e9
	NcoFreqStepsPerHz = 4
	NcoFreqLimitHz    = 500e6

	// NcoSetFrequencyWaitNS is the settling time reserved after a set_freq
	// before the new frequency is guaranteed to be active.
	NcoSetFrequencyWaitNS = 8
)
