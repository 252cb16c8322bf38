package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// InstrumentType identifies the control-hardware module family a
// description entry targets.
type InstrumentType string

const (
	// InstrumentQCM is the baseband control module.
	InstrumentQCM InstrumentType = "QCM"
	// InstrumentQRM is the baseband readout module.
	InstrumentQRM InstrumentType = "QRM"
	// InstrumentQCMRF is the RF control module with internal LOs.
	InstrumentQCMRF InstrumentType = "QCM_RF"
	// InstrumentQRMRF is the RF readout module with an internal LO.
	InstrumentQRMRF InstrumentType = "QRM_RF"
)

// Valid reports whether the instrument type is one of the supported families.
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentQCM, InstrumentQRM, InstrumentQCMRF, InstrumentQRMRF:
		return true
	}
	return false
}

// IsRF reports whether the module family carries internal local oscillators.
func (t InstrumentType) IsRF() bool {
	return t == InstrumentQCMRF || t == InstrumentQRMRF
}

// HasInputs reports whether the module family can acquire.
func (t InstrumentType) HasInputs() bool {
	return t == InstrumentQRM || t == InstrumentQRMRF
}

// SequencerOptions carries per-sequencer compile switches.
type SequencerOptions struct {
	InstructionGeneratedPulses bool     `yaml:"instruction_generated_pulses_enabled,omitempty"`
	TTLAcqThreshold            *float64 `yaml:"ttl_acq_threshold,omitempty"`
}

// PortClockConfig binds one port-clock combination to a sequencer on the
// channel it appears under.
type PortClockConfig struct {
	Port               string           `yaml:"port"`
	Clock              string           `yaml:"clock"`
	IntermFreq         *float64         `yaml:"interm_freq,omitempty"`
	MixerAmpRatio      *float64         `yaml:"mixer_amp_ratio,omitempty"`
	MixerPhaseErrorDeg *float64         `yaml:"mixer_phase_error_deg,omitempty"`
	InitOffsetPath0    *Level           `yaml:"init_offset_awg_path_0,omitempty"`
	InitOffsetPath1    *Level           `yaml:"init_offset_awg_path_1,omitempty"`
	InitGainPath0      *Level           `yaml:"init_gain_awg_path_0,omitempty"`
	InitGainPath1      *Level           `yaml:"init_gain_awg_path_1,omitempty"`
	Options            SequencerOptions `yaml:"options,omitempty"`
}

// Key renders the port-clock combination the way diagnostics refer to it.
func (p PortClockConfig) Key() string {
	return p.Port + "-" + p.Clock
}

// ChannelConfig describes one physical channel of a module and the
// sequencers connected through it.
type ChannelConfig struct {
	LoFreq     *float64          `yaml:"lo_freq,omitempty"`
	OutputAtt  *int              `yaml:"output_att,omitempty"`
	InputAtt   *int              `yaml:"input_att,omitempty"`
	DCOffsetI  *Level            `yaml:"dc_mixer_offset_i,omitempty"`
	DCOffsetQ  *Level            `yaml:"dc_mixer_offset_q,omitempty"`
	InputGainI *int              `yaml:"input_gain_i,omitempty"`
	InputGainQ *int              `yaml:"input_gain_q,omitempty"`
	PortClocks []PortClockConfig `yaml:"portclock_configs"`
}

// ModuleConfig describes a single hardware module.
type ModuleConfig struct {
	InstrumentType InstrumentType           `yaml:"instrument_type"`
	Channels       map[string]ChannelConfig `yaml:"channels"`
}

// ChannelNames returns the configured channel names in deterministic order.
func (m ModuleConfig) ChannelNames() []string {
	names := make([]string, 0, len(m.Channels))
	for name := range m.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HardwareConfig is the root of a hardware description document. The
// compiler consumes Modules read-only; Logging and Telemetry configure the
// tool around it.
type HardwareConfig struct {
	Name      string                  `yaml:"name,omitempty"`
	Logging   LoggingConfig           `yaml:"logging,omitempty"`
	Telemetry TelemetryConfig         `yaml:"telemetry,omitempty"`
	Modules   map[string]ModuleConfig `yaml:"modules"`
}

// ModuleNames returns the configured module names in deterministic order.
func (c *HardwareConfig) ModuleNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Modules))
	for name := range c.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads, decodes and validates a hardware description file.
func Load(path string) (*HardwareConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("hardware description path must not be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hardware description: %w", err)
	}
	var cfg HardwareConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal hardware description: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate hardware description %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the description for structural problems that do not need
// per-instrument hardware properties. The compiler re-checks values whose
// admissible range depends on the concrete module.
func (c *HardwareConfig) Validate() error {
	if c == nil || len(c.Modules) == 0 {
		return fmt.Errorf("hardware description contains no modules")
	}
	for _, name := range c.ModuleNames() {
		if err := ensureIdentifier(name, "module"); err != nil {
			return err
		}
		if err := ensureModule(name, c.Modules[name]); err != nil {
			return err
		}
	}
	return nil
}

func ensureModule(name string, module ModuleConfig) error {
	if !module.InstrumentType.Valid() {
		return fmt.Errorf("module %s: unknown instrument type %q", name, module.InstrumentType)
	}
	if len(module.Channels) == 0 {
		return fmt.Errorf("module %s: no channels configured", name)
	}
	seen := make(map[string]string)
	for _, channelName := range module.ChannelNames() {
		channel := module.Channels[channelName]
		if err := ensureChannel(name, channelName, module.InstrumentType, channel); err != nil {
			return err
		}
		for _, pc := range channel.PortClocks {
			if prior, ok := seen[pc.Key()]; ok {
				return fmt.Errorf("module %s: port-clock %s on channel %s is already bound on channel %s", name, pc.Key(), channelName, prior)
			}
			seen[pc.Key()] = channelName
		}
	}
	return nil
}

func ensureChannel(moduleName, channelName string, instrument InstrumentType, channel ChannelConfig) error {
	if len(channel.PortClocks) == 0 {
		return fmt.Errorf("module %s channel %s: no port-clock configs", moduleName, channelName)
	}
	if channel.LoFreq != nil && !instrument.IsRF() {
		return fmt.Errorf("module %s channel %s: lo_freq is only valid on RF modules", moduleName, channelName)
	}
	if channel.OutputAtt != nil {
		if !instrument.IsRF() {
			return fmt.Errorf("module %s channel %s: output_att is only valid on RF modules", moduleName, channelName)
		}
		if err := ensureAttenuation(*channel.OutputAtt, 60); err != nil {
			return fmt.Errorf("module %s channel %s: output_att %w", moduleName, channelName, err)
		}
	}
	if channel.InputAtt != nil {
		if instrument != InstrumentQRMRF {
			return fmt.Errorf("module %s channel %s: input_att is only valid on RF readout modules", moduleName, channelName)
		}
		if err := ensureAttenuation(*channel.InputAtt, 30); err != nil {
			return fmt.Errorf("module %s channel %s: input_att %w", moduleName, channelName, err)
		}
	}
	if (channel.InputGainI != nil || channel.InputGainQ != nil) && !instrument.HasInputs() {
		return fmt.Errorf("module %s channel %s: input gains are only valid on readout modules", moduleName, channelName)
	}
	for _, pc := range channel.PortClocks {
		if err := ensurePortClock(moduleName, channelName, pc); err != nil {
			return err
		}
	}
	return nil
}

func ensurePortClock(moduleName, channelName string, pc PortClockConfig) error {
	if strings.TrimSpace(pc.Port) == "" || strings.TrimSpace(pc.Clock) == "" {
		return fmt.Errorf("module %s channel %s: port and clock are required for every port-clock config", moduleName, channelName)
	}
	if pc.MixerAmpRatio != nil && (*pc.MixerAmpRatio < 0.5 || *pc.MixerAmpRatio > 2.0) {
		return fmt.Errorf("module %s channel %s port-clock %s: mixer_amp_ratio %g outside [0.5, 2.0]", moduleName, channelName, pc.Key(), *pc.MixerAmpRatio)
	}
	if pc.MixerPhaseErrorDeg != nil && (*pc.MixerPhaseErrorDeg < -45 || *pc.MixerPhaseErrorDeg > 45) {
		return fmt.Errorf("module %s channel %s port-clock %s: mixer_phase_error_deg %g outside [-45, 45]", moduleName, channelName, pc.Key(), *pc.MixerPhaseErrorDeg)
	}
	levels := []struct {
		name  string
		value *Level
	}{
		{"init_offset_awg_path_0", pc.InitOffsetPath0},
		{"init_offset_awg_path_1", pc.InitOffsetPath1},
		{"init_gain_awg_path_0", pc.InitGainPath0},
		{"init_gain_awg_path_1", pc.InitGainPath1},
	}
	for _, lv := range levels {
		if lv.value == nil {
			continue
		}
		if !lv.value.Within(-1.0, 1.0) {
			return fmt.Errorf("module %s channel %s port-clock %s: %s %s outside [-1.0, 1.0]", moduleName, channelName, pc.Key(), lv.name, lv.value.String())
		}
	}
	return nil
}

func ensureAttenuation(value, max int) error {
	if value < 0 || value > max {
		return fmt.Errorf("%d dB outside [0, %d]", value, max)
	}
	if value%2 != 0 {
		return fmt.Errorf("%d dB is not a multiple of 2", value)
	}
	return nil
}

func ensureIdentifier(value, kind string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s identifier must not be empty", kind)
	}
	for idx, r := range trimmed {
		if idx == 0 && unicode.IsDigit(r) {
			return fmt.Errorf("%s %q must not start with a digit", kind, trimmed)
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return fmt.Errorf("%s %q contains invalid character %q", kind, trimmed, r)
		}
	}
	return nil
}
