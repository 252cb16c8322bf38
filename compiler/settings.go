package compiler

import (
	"fmt"
	"math"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/config"
)

// SequencerSettings is the validated per-sequencer configuration emitted
// next to the assembled program. Fields mirror what the instrument driver
// uploads; a nil pointer means the parameter stays at its hardware default.
type SequencerSettings struct {
	NcoEnabled       bool   `yaml:"nco_en"`
	SyncEnabled      bool   `yaml:"sync_en"`
	ChannelName      string `yaml:"channel_name"`
	IOMode           IOMode `yaml:"io_mode"`
	ConnectedOutputs []int  `yaml:"connected_outputs,omitempty"`
	ConnectedInputs  []int  `yaml:"connected_inputs,omitempty"`

	InitOffsetPath0 float64 `yaml:"init_offset_awg_path_0"`
	InitOffsetPath1 float64 `yaml:"init_offset_awg_path_1"`
	InitGainPath0   float64 `yaml:"init_gain_awg_path_0"`
	InitGainPath1   float64 `yaml:"init_gain_awg_path_1"`

	ModulationFreq      *float64 `yaml:"modulation_freq,omitempty"`
	MixerPhaseOffsetDeg float64  `yaml:"mixer_corr_phase_offset_degree"`
	MixerGainRatio      float64  `yaml:"mixer_corr_gain_ratio"`

	IntegrationLengthAcq    *int     `yaml:"integration_length_acq,omitempty"`
	ThresholdedAcqThreshold *float64 `yaml:"thresholded_acq_threshold,omitempty"`
	ThresholdedAcqRotation  *float64 `yaml:"thresholded_acq_rotation,omitempty"`
	TTLAcqInputSelect       *int     `yaml:"ttl_acq_input_select,omitempty"`
	TTLAcqThreshold         *float64 `yaml:"ttl_acq_threshold,omitempty"`
	TTLAcqAutoBinIncr       *bool    `yaml:"ttl_acq_auto_bin_incr_en,omitempty"`
}

// NewSequencerSettings derives the static part of a sequencer's settings
// from its port-clock binding. Modulation and acquisition fields are
// filled in later, once the clock frequencies and the operations driving
// the sequencer are known.
func NewSequencerSettings(traits ChannelTraits, pc config.PortClockConfig) SequencerSettings {
	s := SequencerSettings{
		SyncEnabled:      true,
		ChannelName:      traits.Name,
		IOMode:           traits.Mode,
		ConnectedOutputs: traits.Outputs,
		ConnectedInputs:  traits.Inputs,
		InitGainPath0:    1.0,
		InitGainPath1:    1.0,
		MixerGainRatio:   1.0,
	}
	if pc.InitOffsetPath0 != nil {
		s.InitOffsetPath0 = pc.InitOffsetPath0.Float64()
	}
	if pc.InitOffsetPath1 != nil {
		s.InitOffsetPath1 = pc.InitOffsetPath1.Float64()
	}
	if pc.InitGainPath0 != nil {
		s.InitGainPath0 = pc.InitGainPath0.Float64()
	}
	if pc.InitGainPath1 != nil {
		s.InitGainPath1 = pc.InitGainPath1.Float64()
	}
	if pc.MixerAmpRatio != nil {
		s.MixerGainRatio = *pc.MixerAmpRatio
	}
	if pc.MixerPhaseErrorDeg != nil {
		s.MixerPhaseOffsetDeg = *pc.MixerPhaseErrorDeg
	}
	return s
}

// SetModulation fixes the NCO frequency of the sequencer. A nil frequency
// leaves the NCO untouched; zero keeps it disabled.
func (s *SequencerSettings) SetModulation(portClock string, freqHz *float64) error {
	if freqHz == nil {
		return nil
	}
	if math.Abs(*freqHz) > asm.NcoFreqLimitHz {
		return fmt.Errorf("port-clock %s: modulation frequency %g Hz outside [%g, %g]",
			portClock, *freqHz, -asm.NcoFreqLimitHz, asm.NcoFreqLimitHz)
	}
	freq := *freqHz
	s.ModulationFreq = &freq
	s.NcoEnabled = freq != 0
	return nil
}

// SetIntegrationLength fixes the acquisition integration window. All
// integrating acquisitions of one sequencer must agree on it.
func (s *SequencerSettings) SetIntegrationLength(op OpInfo, lengthNS int) error {
	if s.IntegrationLengthAcq != nil && *s.IntegrationLengthAcq != lengthNS {
		return fmt.Errorf("conflicting integration lengths %d ns and %d ns within one sequencer, caused by %s",
			lengthNS, *s.IntegrationLengthAcq, op)
	}
	s.IntegrationLengthAcq = &lengthNS
	return nil
}

// SetThresholding fixes the rotation and threshold applied to thresholded
// acquisitions. All thresholded acquisitions of one sequencer must agree.
func (s *SequencerSettings) SetThresholding(op OpInfo, rotationDeg, threshold float64) error {
	if s.ThresholdedAcqRotation != nil && *s.ThresholdedAcqRotation != rotationDeg {
		return fmt.Errorf("conflicting acquisition rotations %g and %g within one sequencer, caused by %s",
			rotationDeg, *s.ThresholdedAcqRotation, op)
	}
	if s.ThresholdedAcqThreshold != nil && *s.ThresholdedAcqThreshold != threshold {
		return fmt.Errorf("conflicting acquisition thresholds %g and %g within one sequencer, caused by %s",
			threshold, *s.ThresholdedAcqThreshold, op)
	}
	s.ThresholdedAcqRotation = &rotationDeg
	s.ThresholdedAcqThreshold = &threshold
	return nil
}

// ModuleSettings is the validated per-module configuration emitted next to
// the sequencer artifacts. The LO and attenuation fields only apply to RF
// modules, the input fields only to readout modules.
type ModuleSettings struct {
	OffsetCh0Path0 *float64 `yaml:"offset_ch0_path0,omitempty"`
	OffsetCh0Path1 *float64 `yaml:"offset_ch0_path1,omitempty"`
	OffsetCh1Path0 *float64 `yaml:"offset_ch1_path0,omitempty"`
	OffsetCh1Path1 *float64 `yaml:"offset_ch1_path1,omitempty"`
	In0Gain        *int     `yaml:"in0_gain,omitempty"`
	In1Gain        *int     `yaml:"in1_gain,omitempty"`

	Lo0Freq *float64 `yaml:"lo0_freq,omitempty"`
	Lo1Freq *float64 `yaml:"lo1_freq,omitempty"`
	Out0Att *int     `yaml:"out0_att,omitempty"`
	Out1Att *int     `yaml:"out1_att,omitempty"`
	In0Att  *int     `yaml:"in0_att,omitempty"`
}

// buildModuleSettings collects the module-level values of a hardware
// description entry, checking DC offsets against the mixer range of the
// concrete module family.
func buildModuleSettings(moduleName string, props StaticHardwareProperties, module config.ModuleConfig) (ModuleSettings, error) {
	var settings ModuleSettings
	for _, channelName := range module.ChannelNames() {
		channel := module.Channels[channelName]
		traits, err := ClassifyChannel(props, channelName)
		if err != nil {
			return ModuleSettings{}, fmt.Errorf("module %s: %w", moduleName, err)
		}
		if err := applyChannelSettings(moduleName, props, traits, channel, &settings); err != nil {
			return ModuleSettings{}, err
		}
	}
	return settings, nil
}

func applyChannelSettings(moduleName string, props StaticHardwareProperties, traits ChannelTraits, channel config.ChannelConfig, settings *ModuleSettings) error {
	offsets := []struct {
		name  string
		value *config.Level
		dest  **float64
	}{
		{"dc_mixer_offset_i", channel.DCOffsetI, nil},
		{"dc_mixer_offset_q", channel.DCOffsetQ, nil},
	}
	switch traits.Name {
	case "complex_output_0":
		offsets[0].dest = &settings.OffsetCh0Path0
		offsets[1].dest = &settings.OffsetCh0Path1
	case "complex_output_1":
		offsets[0].dest = &settings.OffsetCh1Path0
		offsets[1].dest = &settings.OffsetCh1Path1
	}
	for _, offset := range offsets {
		if offset.value == nil {
			continue
		}
		if offset.dest == nil {
			return fmt.Errorf("module %s channel %s: %s is only valid on complex output channels",
				moduleName, traits.Name, offset.name)
		}
		limit := props.MixerDCOffsetRange
		if !offset.value.Within(limit.Min, limit.Max) {
			return fmt.Errorf("module %s channel %s: %s %s %s outside [%g, %g]",
				moduleName, traits.Name, offset.name, offset.value.String(), limit.Units, limit.Min, limit.Max)
		}
		v := offset.value.Float64()
		*offset.dest = &v
	}

	if channel.InputGainI != nil {
		settings.In0Gain = channel.InputGainI
	}
	if channel.InputGainQ != nil {
		settings.In1Gain = channel.InputGainQ
	}
	if channel.OutputAtt != nil {
		switch traits.Name {
		case "complex_output_0":
			settings.Out0Att = channel.OutputAtt
		case "complex_output_1":
			settings.Out1Att = channel.OutputAtt
		default:
			return fmt.Errorf("module %s channel %s: output_att is only valid on complex output channels",
				moduleName, traits.Name)
		}
	}
	if channel.InputAtt != nil {
		settings.In0Att = channel.InputAtt
	}
	if channel.LoFreq != nil {
		if err := setLoFreq(moduleName, traits, *channel.LoFreq, settings); err != nil {
			return err
		}
	}
	return nil
}

// loIndexFor maps a channel onto the LO it mixes with. The RF readout
// module shares one LO between its output and its input.
func loIndexFor(traits ChannelTraits) (int, bool) {
	switch traits.Name {
	case "complex_output_0", "complex_input_0":
		return 0, true
	case "complex_output_1":
		return 1, true
	}
	return 0, false
}

func setLoFreq(moduleName string, traits ChannelTraits, freqHz float64, settings *ModuleSettings) error {
	idx, ok := loIndexFor(traits)
	if !ok {
		return fmt.Errorf("module %s channel %s: no local oscillator is associated with this channel", moduleName, traits.Name)
	}
	dest := &settings.Lo0Freq
	if idx == 1 {
		dest = &settings.Lo1Freq
	}
	if *dest != nil && **dest != freqHz {
		return fmt.Errorf("module %s channel %s: lo%d_freq already fixed to %g Hz, cannot change it to %g Hz",
			moduleName, traits.Name, idx, **dest, freqHz)
	}
	value := freqHz
	*dest = &value
	return nil
}
