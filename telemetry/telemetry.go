package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures events emitted while schedules are compiled.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks run
// inline with compilation.
type Collector interface {
	IncCompileSuccess(schedule string)
	IncCompileFailure(schedule string)
	AddInstructions(module, sequencer string, count int)
	SetWaveformMemory(module, sequencer string, samples int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncCompileSuccess(string)              {}
func (noopCollector) IncCompileFailure(string)              {}
func (noopCollector) AddInstructions(string, string, int)   {}
func (noopCollector) SetWaveformMemory(string, string, int) {}

// PrometheusCollector exposes compile telemetry via Prometheus.
type PrometheusCollector struct {
	compileSuccess *prometheus.CounterVec
	compileFailure *prometheus.CounterVec
	instructions   *prometheus.CounterVec
	waveformMemory *prometheus.GaugeVec
}

// Metric vectors are cached per process so repeated collector construction
// (hot reload paths) reuses the registered instances.
var (
	collectorLock         sync.Mutex
	compileSuccessCounter *prometheus.CounterVec
	compileFailureCounter *prometheus.CounterVec
	instructionCounter    *prometheus.CounterVec
	waveformMemoryGauge   *prometheus.GaugeVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Passing nil registers against the default registerer.
// Registration is idempotent: metrics already registered are adopted.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	collectorLock.Lock()
	defer collectorLock.Unlock()

	if err := registerCounterVec(reg, &compileSuccessCounter, prometheus.CounterOpts{
		Name: "tactus_compile_success_total",
		Help: "Number of schedules compiled successfully.",
	}, []string{"schedule"}); err != nil {
		return nil, err
	}
	if err := registerCounterVec(reg, &compileFailureCounter, prometheus.CounterOpts{
		Name: "tactus_compile_failure_total",
		Help: "Number of schedule compilations that failed.",
	}, []string{"schedule"}); err != nil {
		return nil, err
	}
	if err := registerCounterVec(reg, &instructionCounter, prometheus.CounterOpts{
		Name: "tactus_sequencer_instructions_total",
		Help: "Number of sequencer instructions emitted per module and sequencer.",
	}, []string{"module", "sequencer"}); err != nil {
		return nil, err
	}
	if err := registerGaugeVec(reg, &waveformMemoryGauge, prometheus.GaugeOpts{
		Name: "tactus_sequencer_waveform_memory_samples",
		Help: "Waveform memory samples occupied per module and sequencer after the last compile.",
	}, []string{"module", "sequencer"}); err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		compileSuccess: compileSuccessCounter,
		compileFailure: compileFailureCounter,
		instructions:   instructionCounter,
		waveformMemory: waveformMemoryGauge,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, cached **prometheus.CounterVec, opts prometheus.CounterOpts, labels []string) error {
	if *cached != nil {
		return nil
	}
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return err
		}
		*cached = existing
		return nil
	}
	*cached = counter
	return nil
}

func registerGaugeVec(reg prometheus.Registerer, cached **prometheus.GaugeVec, opts prometheus.GaugeOpts, labels []string) error {
	if *cached != nil {
		return nil
	}
	gauge := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(gauge); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return err
		}
		*cached = existing
		return nil
	}
	*cached = gauge
	return nil
}

// IncCompileSuccess increments the success counter for a schedule.
func (p *PrometheusCollector) IncCompileSuccess(schedule string) {
	if p == nil || p.compileSuccess == nil {
		return
	}
	p.compileSuccess.WithLabelValues(schedule).Inc()
}

// IncCompileFailure increments the failure counter for a schedule.
func (p *PrometheusCollector) IncCompileFailure(schedule string) {
	if p == nil || p.compileFailure == nil {
		return
	}
	p.compileFailure.WithLabelValues(schedule).Inc()
}

// AddInstructions records emitted sequencer instructions.
func (p *PrometheusCollector) AddInstructions(module, sequencer string, count int) {
	if p == nil || p.instructions == nil || count <= 0 {
		return
	}
	p.instructions.WithLabelValues(module, sequencer).Add(float64(count))
}

// SetWaveformMemory updates the waveform memory gauge for a sequencer.
func (p *PrometheusCollector) SetWaveformMemory(module, sequencer string, samples int) {
	if p == nil || p.waveformMemory == nil {
		return
	}
	p.waveformMemory.WithLabelValues(module, sequencer).Set(float64(samples))
}
