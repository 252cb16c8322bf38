package waveform

import (
	"encoding/json"
	"fmt"
	"math"
)

// Params carries the keyword arguments of a sampled shape. Values typically
// come from schedule documents, so numbers may arrive as any numeric type and
// complex values as [real, imag] pairs.
type Params map[string]interface{}

// Float returns a required numeric parameter.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing waveform parameter %s", key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("waveform parameter %s is not a number (got %T)", key, v)
	}
	return f, nil
}

// FloatOr returns a numeric parameter, or def when absent.
func (p Params) FloatOr(key string, def float64) (float64, error) {
	if _, ok := p[key]; !ok {
		return def, nil
	}
	return p.Float(key)
}

// Int returns a required integer parameter, rounding numeric input.
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// Complex returns a required complex parameter. Plain numbers and
// two-element [real, imag] arrays are accepted.
func (p Params) Complex(key string) (complex128, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing waveform parameter %s", key)
	}
	c, ok := toComplex(v)
	if !ok {
		return 0, fmt.Errorf("waveform parameter %s is not a complex number (got %T)", key, v)
	}
	return c, nil
}

// String returns a required string parameter.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing waveform parameter %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("waveform parameter %s is not a string (got %T)", key, v)
	}
	return s, nil
}

// StringOr returns a string parameter, or def when absent.
func (p Params) StringOr(key, def string) (string, error) {
	if _, ok := p[key]; !ok {
		return def, nil
	}
	return p.String(key)
}

// Floats returns a required array of numbers.
func (p Params) Floats(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("missing waveform parameter %s", key)
	}
	switch arr := v.(type) {
	case []float64:
		out := make([]float64, len(arr))
		copy(out, arr)
		return out, nil
	case []interface{}:
		out := make([]float64, len(arr))
		for i, el := range arr {
			f, ok := toFloat(el)
			if !ok {
				return nil, fmt.Errorf("waveform parameter %s[%d] is not a number (got %T)", key, i, el)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("waveform parameter %s is not an array (got %T)", key, v)
	}
}

// Complexes returns a required array of complex numbers, accepting plain
// numbers and [real, imag] pairs as elements.
func (p Params) Complexes(key string) ([]complex128, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("missing waveform parameter %s", key)
	}
	switch arr := v.(type) {
	case []complex128:
		out := make([]complex128, len(arr))
		copy(out, arr)
		return out, nil
	case []float64:
		out := make([]complex128, len(arr))
		for i, f := range arr {
			out[i] = complex(f, 0)
		}
		return out, nil
	case []interface{}:
		out := make([]complex128, len(arr))
		for i, el := range arr {
			c, ok := toComplex(el)
			if !ok {
				return nil, fmt.Errorf("waveform parameter %s[%d] is not a complex number (got %T)", key, i, el)
			}
			out[i] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("waveform parameter %s is not an array (got %T)", key, v)
	}
}

// MarshalJSON lowers complex values to [real, imag] pairs so parameter maps
// survive a JSON round trip. The accessors above re-coerce the pairs.
func (p Params) MarshalJSON() ([]byte, error) {
	lowered := make(map[string]interface{}, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case complex128:
			lowered[k] = [2]float64{real(val), imag(val)}
		case complex64:
			lowered[k] = [2]float64{float64(real(val)), float64(imag(val))}
		case []complex128:
			pairs := make([][2]float64, len(val))
			for i, c := range val {
				pairs[i] = [2]float64{real(c), imag(c)}
			}
			lowered[k] = pairs
		default:
			lowered[k] = v
		}
	}
	return json.Marshal(lowered)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	default:
		return 0, false
	}
}

func toComplex(v interface{}) (complex128, bool) {
	if f, ok := toFloat(v); ok {
		return complex(f, 0), true
	}
	switch n := v.(type) {
	case complex128:
		return n, true
	case complex64:
		return complex128(n), true
	case []float64:
		if len(n) == 2 {
			return complex(n[0], n[1]), true
		}
	case []interface{}:
		if len(n) == 2 {
			re, okRe := toFloat(n[0])
			im, okIm := toFloat(n[1])
			if okRe && okIm {
				return complex(re, im), true
			}
		}
	}
	return 0, false
}
