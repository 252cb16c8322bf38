package waveform

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RegisterExpr compiles src once and registers it as a named envelope. The
// expression is evaluated per sample with the environment exposing t (the
// current sample time in seconds), pi, and every waveform parameter. The
// result must be a number; it lands on the real path.
func RegisterExpr(name, src string) error {
	if name == "" {
		return fmt.Errorf("waveform expression name must not be empty")
	}
	program, err := expr.Compile(src, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
	if err != nil {
		return fmt.Errorf("compiling waveform expression %s: %w", name, err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("waveform function %s already registered", name)
	}
	registry[name] = exprFunc(name, program)
	return nil
}

func exprFunc(name string, program *vm.Program) Func {
	return func(t []float64, params Params) ([]complex128, error) {
		env := make(map[string]interface{}, len(params)+2)
		for key, value := range params {
			env[key] = value
		}
		env["pi"] = math.Pi

		out := make([]complex128, len(t))
		for i, ti := range t {
			env["t"] = ti
			result, err := vm.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("evaluating waveform expression %s at t=%v: %w", name, ti, err)
			}
			f, ok := toFloat(result)
			if !ok {
				return nil, fmt.Errorf("waveform expression %s returned %T, expected a number", name, result)
			}
			out[i] = complex(f, 0)
		}
		return out, nil
	}
}
