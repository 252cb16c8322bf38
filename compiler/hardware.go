package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pverheul/tactus/config"
)

// BoundedParameter is an inclusive hardware limit with its unit.
type BoundedParameter struct {
	Min   float64
	Max   float64
	Units string
}

// Contains reports whether the value lies within the limit.
func (b BoundedParameter) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// StaticHardwareProperties are the fixed capabilities of one module
// family. They never come from the hardware description; the description
// is validated against them.
type StaticHardwareProperties struct {
	InstrumentType      config.InstrumentType
	MaxSequencers       int
	MaxAwgOutputVoltage float64
	MixerDCOffsetRange  BoundedParameter
	ValidChannels       []string
	// DefaultMarker is the marker immediate driven while no marker pulse
	// is active. RF modules keep their output switches closed through the
	// two low bits.
	DefaultMarker int
}

// MarkerBit returns the set_mrk bit controlled by the numbered digital
// output. RF modules reserve the two low bits for the output switches, so
// their digital outputs start at bit two.
func (p StaticHardwareProperties) MarkerBit(idx int) int {
	if p.InstrumentType.IsRF() {
		return 1 << (idx + 2)
	}
	return 1 << idx
}

var staticProperties = map[config.InstrumentType]StaticHardwareProperties{
	config.InstrumentQCM: {
		InstrumentType:      config.InstrumentQCM,
		MaxSequencers:       6,
		MaxAwgOutputVoltage: 2.5,
		MixerDCOffsetRange:  BoundedParameter{Min: -2.5, Max: 2.5, Units: "V"},
		ValidChannels: []string{
			"complex_output_0", "complex_output_1",
			"real_output_0", "real_output_1", "real_output_2", "real_output_3",
			"digital_output_0", "digital_output_1", "digital_output_2", "digital_output_3",
		},
	},
	config.InstrumentQRM: {
		InstrumentType:      config.InstrumentQRM,
		MaxSequencers:       6,
		MaxAwgOutputVoltage: 0.5,
		MixerDCOffsetRange:  BoundedParameter{Min: -0.5, Max: 0.5, Units: "V"},
		ValidChannels: []string{
			"complex_output_0", "complex_input_0",
			"real_output_0", "real_output_1", "real_input_0", "real_input_1",
			"digital_output_0", "digital_output_1", "digital_output_2", "digital_output_3",
		},
	},
	config.InstrumentQCMRF: {
		InstrumentType:     config.InstrumentQCMRF,
		MaxSequencers:      6,
		MixerDCOffsetRange: BoundedParameter{Min: -0.05, Max: 0.05, Units: "V"},
		ValidChannels: []string{
			"complex_output_0", "complex_output_1",
			"digital_output_0", "digital_output_1",
		},
		DefaultMarker: 0b0011,
	},
	config.InstrumentQRMRF: {
		InstrumentType:     config.InstrumentQRMRF,
		MaxSequencers:      6,
		MixerDCOffsetRange: BoundedParameter{Min: -0.05, Max: 0.05, Units: "V"},
		ValidChannels: []string{
			"complex_output_0", "complex_input_0",
			"digital_output_0", "digital_output_1",
		},
		DefaultMarker: 0b0011,
	},
}

// PropertiesFor returns the static capabilities of a module family.
func PropertiesFor(t config.InstrumentType) (StaticHardwareProperties, error) {
	props, ok := staticProperties[t]
	if !ok {
		return StaticHardwareProperties{}, fmt.Errorf("unknown instrument type %q", t)
	}
	return props, nil
}

// IOMode says how the analog content of a sequencer maps onto the paths of
// its channel: both paths (complex), a single path carrying the real or
// the imaginary part, or no analog path at all (digital).
type IOMode string

const (
	IOModeComplex IOMode = "complex"
	IOModeReal    IOMode = "real"
	IOModeImag    IOMode = "imag"
	IOModeDigital IOMode = "digital"
)

// ChannelTraits describes how a named module channel connects sequencer
// paths to physical outputs and inputs.
type ChannelTraits struct {
	Name    string
	Mode    IOMode
	Outputs []int
	Inputs  []int
	// MarkerBit is nonzero for digital channels only.
	MarkerBit int
}

// IsOutput reports whether the channel drives analog outputs.
func (c ChannelTraits) IsOutput() bool { return len(c.Outputs) > 0 }

// IsInput reports whether the channel reads analog inputs.
func (c ChannelTraits) IsInput() bool { return len(c.Inputs) > 0 }

// ClassifyChannel resolves a channel name against the capabilities of the
// module family it is configured on.
func ClassifyChannel(props StaticHardwareProperties, name string) (ChannelTraits, error) {
	valid := false
	for _, channel := range props.ValidChannels {
		if channel == name {
			valid = true
			break
		}
	}
	if !valid {
		return ChannelTraits{}, fmt.Errorf("channel %s does not exist on a %s module, valid channels: %s",
			name, props.InstrumentType, strings.Join(props.ValidChannels, ", "))
	}

	traits := ChannelTraits{Name: name}
	kind, idx, err := splitChannelName(name)
	if err != nil {
		return ChannelTraits{}, err
	}
	switch kind {
	case "complex_output":
		traits.Mode = IOModeComplex
		traits.Outputs = []int{2 * idx, 2*idx + 1}
	case "real_output":
		traits.Mode = IOModeReal
		if idx%2 == 1 {
			traits.Mode = IOModeImag
		}
		traits.Outputs = []int{idx}
	case "complex_input":
		traits.Mode = IOModeComplex
		traits.Inputs = []int{2 * idx, 2*idx + 1}
	case "real_input":
		traits.Mode = IOModeReal
		if idx%2 == 1 {
			traits.Mode = IOModeImag
		}
		traits.Inputs = []int{idx}
	case "digital_output":
		traits.Mode = IOModeDigital
		traits.MarkerBit = props.MarkerBit(idx)
	default:
		return ChannelTraits{}, fmt.Errorf("channel %s has an unrecognized kind %q", name, kind)
	}
	return traits, nil
}

func splitChannelName(name string) (string, int, error) {
	cut := strings.LastIndex(name, "_")
	if cut < 0 {
		return "", 0, fmt.Errorf("channel %s carries no index suffix", name)
	}
	idx, err := strconv.Atoi(name[cut+1:])
	if err != nil {
		return "", 0, fmt.Errorf("channel %s carries no numeric index: %w", name, err)
	}
	return name[:cut], idx, nil
}
