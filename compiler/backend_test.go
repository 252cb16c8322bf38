package compiler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pverheul/tactus/config"
	"github.com/pverheul/tactus/schedule"
	"github.com/pverheul/tactus/telemetry"
)

func rig(moduleName string, instrument config.InstrumentType, channelName string, channel config.ChannelConfig) config.HardwareConfig {
	return config.HardwareConfig{
		Name: "rig",
		Modules: map[string]config.ModuleConfig{
			moduleName: {
				InstrumentType: instrument,
				Channels:       map[string]config.ChannelConfig{channelName: channel},
			},
		},
	}
}

func readoutRig() config.HardwareConfig {
	return rig("qrm0", config.InstrumentQRM, "complex_output_0", config.ChannelConfig{
		PortClocks: []config.PortClockConfig{{Port: "q0:res", Clock: "q0.ro", IntermFreq: floatPtr(50e6)}},
	})
}

func mustCompile(t *testing.T, cfg config.HardwareConfig, sched *schedule.Schedule) *Compiled {
	t.Helper()
	compiled, err := NewBackend(cfg).Compile(context.Background(), sched)
	if err != nil {
		t.Fatalf("compiling %s: %v", sched.Name(), err)
	}
	return compiled
}

func singleSequencer(t *testing.T, compiled *Compiled, moduleName string) SequencerProgram {
	t.Helper()
	moduleProgram, ok := compiled.Modules[moduleName]
	if !ok {
		t.Fatalf("module %s missing from the compiled output", moduleName)
	}
	seq, ok := moduleProgram.Sequencers["seq0"]
	if !ok {
		t.Fatalf("sequencer seq0 missing from module %s", moduleName)
	}
	return seq
}

func TestBackendCompileSinglePulse(t *testing.T) {
	sched := schedule.New("one_pulse")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	compiled := mustCompile(t, readoutRig(), sched)
	if compiled.Schedule != "one_pulse" {
		t.Fatalf("unexpected schedule name %q", compiled.Schedule)
	}
	if len(compiled.Modules) != 1 {
		t.Fatalf("expected one module, got %d", len(compiled.Modules))
	}
	seq := singleSequencer(t, compiled, "qrm0")
	if seq.PortClock != "q0:res-q0.ro" {
		t.Fatalf("unexpected port-clock %q", seq.PortClock)
	}
	if !strings.Contains(seq.Program, "# iterator for loop with label start") {
		t.Fatalf("program misses the repetition loop:\n%s", seq.Program)
	}
	if !strings.HasSuffix(seq.Program, "stop\n") {
		t.Fatalf("program must end in stop:\n%s", seq.Program)
	}
	if len(seq.Waveforms) != 2 {
		t.Fatalf("expected the two quadratures in waveform memory, got %d entries", len(seq.Waveforms))
	}
	indexes := map[int]bool{}
	for _, entry := range seq.Waveforms {
		if len(entry.Data) != 200 {
			t.Fatalf("expected 200 samples per quadrature, got %d", len(entry.Data))
		}
		indexes[entry.Index] = true
	}
	if !indexes[0] || !indexes[1] {
		t.Fatalf("waveform indexes must cover 0 and 1, got %v", indexes)
	}
	if seq.Settings.ModulationFreq == nil || *seq.Settings.ModulationFreq != 50e6 {
		t.Fatalf("modulation frequency not carried into the settings: %+v", seq.Settings.ModulationFreq)
	}
	if !seq.Settings.NcoEnabled {
		t.Fatal("a fixed interm_freq must enable the NCO")
	}
}

func TestBackendSetFrequencyThreadsClockHistory(t *testing.T) {
	sched := schedule.New("retune")
	if err := sched.AddClock("q0.ro", 7.4e9); err != nil {
		t.Fatalf("add clock: %v", err)
	}
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	mustAdd(t, sched, schedule.SetClockFrequency("q0.ro", 7.5e9))
	compiled := mustCompile(t, readoutRig(), sched)
	seq := singleSequencer(t, compiled, "qrm0")
	if !strings.Contains(seq.Program, "set_freq") {
		t.Fatalf("program misses the NCO retune:\n%s", seq.Program)
	}
	// 50 MHz modulation plus the 100 MHz clock step lands on 150 MHz.
	if !strings.Contains(seq.Program, "600000000") {
		t.Fatalf("unexpected NCO target:\n%s", seq.Program)
	}
	again := mustCompile(t, readoutRig(), sched)
	if got := singleSequencer(t, again, "qrm0").Program; got != seq.Program {
		t.Fatalf("recompilation changed the program:\n%s\nversus:\n%s", seq.Program, got)
	}
}

func TestBackendSkipsIdleModules(t *testing.T) {
	cfg := readoutRig()
	cfg.Modules["qcm0"] = config.ModuleConfig{
		InstrumentType: config.InstrumentQCM,
		Channels: map[string]config.ChannelConfig{
			"real_output_0": {PortClocks: []config.PortClockConfig{{Port: "q0:fl", Clock: schedule.BasebandClockName}}},
		},
	}
	sched := schedule.New("readout_only")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	compiled := mustCompile(t, cfg, sched)
	if len(compiled.Modules) != 1 {
		t.Fatalf("modules without operations must be dropped, got %d modules", len(compiled.Modules))
	}
	if _, ok := compiled.Modules["qcm0"]; ok {
		t.Fatal("the flux module saw no operation and must not appear")
	}
}

func TestBackendPortlessOpsReachMatchingClock(t *testing.T) {
	sched := schedule.New("phase_steer")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	mustAdd(t, sched, schedule.ShiftClockPhase(90, "q0.ro"))
	mustAdd(t, sched, schedule.ShiftClockPhase(45, "q9.unused"))
	compiled := mustCompile(t, readoutRig(), sched)
	program := singleSequencer(t, compiled, "qrm0").Program
	if !strings.Contains(program, "set_ph_delta") || !strings.Contains(program, "250000000") {
		t.Fatalf("the phase shift on the readout clock must reach seq0:\n%s", program)
	}
	if strings.Contains(program, "125000000") {
		t.Fatalf("the phase shift on an unused clock leaked into the program:\n%s", program)
	}
}

func rfRig(channel config.ChannelConfig) config.HardwareConfig {
	return rig("qcmrf0", config.InstrumentQCMRF, "complex_output_0", channel)
}

func rfSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	sched := schedule.New("drive")
	if err := sched.AddClock("q0.01", 5e9); err != nil {
		t.Fatalf("add clock: %v", err)
	}
	mustAdd(t, sched, schedule.SquarePulse(0.2, 200e-9, "q0:mw", "q0.01"))
	return sched
}

func TestBackendRFAcceptsConsistentMix(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		LoFreq:     floatPtr(5.1e9),
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01", IntermFreq: floatPtr(-100e6)}},
	})
	compiled := mustCompile(t, cfg, rfSchedule(t))
	settings := singleSequencer(t, compiled, "qcmrf0").Settings
	if settings.ModulationFreq == nil || *settings.ModulationFreq != -100e6 {
		t.Fatalf("unexpected modulation frequency %+v", settings.ModulationFreq)
	}
	if !settings.NcoEnabled {
		t.Fatal("RF sequencers modulate")
	}
}

func TestBackendRFDerivesIntermFreqFromLo(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		LoFreq:     floatPtr(4.8e9),
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01"}},
	})
	compiled := mustCompile(t, cfg, rfSchedule(t))
	settings := singleSequencer(t, compiled, "qcmrf0").Settings
	if settings.ModulationFreq == nil || *settings.ModulationFreq != 200e6 {
		t.Fatalf("expected the NCO to close the 200 MHz gap, got %+v", settings.ModulationFreq)
	}
}

func TestBackendRFDerivesLoFromIntermFreq(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01", IntermFreq: floatPtr(-100e6)}},
	})
	compiled := mustCompile(t, cfg, rfSchedule(t))
	moduleProgram, ok := compiled.Modules["qcmrf0"]
	if !ok {
		t.Fatal("module qcmrf0 missing from the compiled output")
	}
	if moduleProgram.Settings.Lo0Freq == nil || *moduleProgram.Settings.Lo0Freq != 5.1e9 {
		t.Fatalf("expected lo0_freq at 5.1 GHz, got %+v", moduleProgram.Settings.Lo0Freq)
	}
}

func TestBackendRFRejectsInconsistentMix(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		LoFreq:     floatPtr(4.8e9),
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01", IntermFreq: floatPtr(100e6)}},
	})
	_, err := NewBackend(cfg).Compile(context.Background(), rfSchedule(t))
	if err == nil || !strings.Contains(err.Error(), "does not reach clock q0.01") {
		t.Fatalf("expected the frequency mismatch to fail the compilation, got %v", err)
	}
}

func TestBackendRFRequiresFrequencyConstraint(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01"}},
	})
	_, err := NewBackend(cfg).Compile(context.Background(), rfSchedule(t))
	if err == nil || !strings.Contains(err.Error(), "needs lo0_freq or an interm_freq") {
		t.Fatalf("expected the underconstrained mix to fail, got %v", err)
	}
}

func TestBackendRFRequiresClockResource(t *testing.T) {
	cfg := rfRig(config.ChannelConfig{
		PortClocks: []config.PortClockConfig{{Port: "q0:mw", Clock: "q0.01", IntermFreq: floatPtr(-100e6)}},
	})
	sched := schedule.New("no_clock")
	mustAdd(t, sched, schedule.SquarePulse(0.2, 200e-9, "q0:mw", "q0.01"))
	_, err := NewBackend(cfg).Compile(context.Background(), sched)
	if err == nil || !strings.Contains(err.Error(), "clock q0.01 is not a resource of schedule no_clock") {
		t.Fatalf("expected the missing clock resource to fail, got %v", err)
	}
}

func TestBackendRejectsUnmatchedPort(t *testing.T) {
	sched := schedule.New("stray")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q7:res", "q0.ro"))
	_, err := NewBackend(readoutRig()).Compile(context.Background(), sched)
	if err == nil || !strings.Contains(err.Error(), "plays on port q7:res with clock q0.ro, which no module drives") {
		t.Fatalf("expected stray pulses to fail the compilation, got %v", err)
	}
}

func TestBackendRejectsAcquisitionWithoutInputs(t *testing.T) {
	cfg := rig("qcm0", config.InstrumentQCM, "complex_output_0", config.ChannelConfig{
		PortClocks: []config.PortClockConfig{{Port: "q0:res", Clock: "q0.ro"}},
	})
	sched := schedule.New("blind")
	op, err := schedule.SSBIntegrationComplex(1e-6, "q0:res", "q0.ro", 0, 0, schedule.BinModeAverage)
	if err != nil {
		t.Fatalf("ssb integration: %v", err)
	}
	mustAdd(t, sched, op)
	_, err = NewBackend(cfg).Compile(context.Background(), sched)
	if err == nil || !strings.Contains(err.Error(), "a QCM has no inputs") {
		t.Fatalf("expected acquisitions on a QCM to fail, got %v", err)
	}
}

func TestBackendRejectsTooManySequencers(t *testing.T) {
	portClocks := make([]config.PortClockConfig, 7)
	for i := range portClocks {
		portClocks[i] = config.PortClockConfig{Port: "q0:res", Clock: fmt.Sprintf("clk%d", i)}
	}
	cfg := rig("qrm0", config.InstrumentQRM, "complex_output_0", config.ChannelConfig{PortClocks: portClocks})
	_, err := NewBackend(cfg).Compile(context.Background(), schedule.New("empty"))
	if err == nil || !strings.Contains(err.Error(), "drives at most 6 sequencers") {
		t.Fatalf("expected the port-clock overflow to fail, got %v", err)
	}
}

func TestBackendRejectsOffGridEnd(t *testing.T) {
	sched := schedule.New("misaligned")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 122e-9, "q0:res", "q0.ro"))
	_, err := NewBackend(readoutRig()).Compile(context.Background(), sched)
	if err == nil || !strings.Contains(err.Error(), "ends at 122 ns, off the 4 ns instruction grid") {
		t.Fatalf("expected the misaligned schedule to fail, got %v", err)
	}
}

func TestBackendContextCancellation(t *testing.T) {
	sched := schedule.New("cancelled")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBackend(readoutRig()).Compile(ctx, sched)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled context to abort the compilation, got %v", err)
	}
}

func TestValidateHardwareAcceptsReadoutRig(t *testing.T) {
	if err := ValidateHardware(readoutRig()); err != nil {
		t.Fatalf("ValidateHardware() error = %v", err)
	}
}

func TestValidateHardwareRejectsUnknownChannel(t *testing.T) {
	cfg := rig("qrm0", config.InstrumentQRM, "complex_output_7", config.ChannelConfig{})
	err := ValidateHardware(cfg)
	if err == nil || !strings.Contains(err.Error(), "does not exist on a QRM module") {
		t.Fatalf("expected the unknown channel to fail, got %v", err)
	}
}

func TestValidateHardwareChecksMixerOffsets(t *testing.T) {
	offset := config.LevelFromFloat(0.9)
	cfg := rig("qrm0", config.InstrumentQRM, "complex_output_0", config.ChannelConfig{
		DCOffsetI: &offset,
	})
	err := ValidateHardware(cfg)
	if err == nil || !strings.Contains(err.Error(), "outside [-0.5, 0.5]") {
		t.Fatalf("expected the mixer offset to fail, got %v", err)
	}
}

func TestValidateHardwareChecksSequencerBudget(t *testing.T) {
	portClocks := make([]config.PortClockConfig, 7)
	for i := range portClocks {
		portClocks[i] = config.PortClockConfig{Port: "q0:res", Clock: fmt.Sprintf("clk%d", i)}
	}
	cfg := rig("qrm0", config.InstrumentQRM, "complex_output_0", config.ChannelConfig{PortClocks: portClocks})
	err := ValidateHardware(cfg)
	if err == nil || !strings.Contains(err.Error(), "drives at most 6 sequencers") {
		t.Fatalf("expected the port-clock overflow to fail, got %v", err)
	}
}

type recordingCollector struct {
	mu           sync.Mutex
	success      []string
	failure      []string
	instructions map[string]int
	samples      map[string]int
}

var _ telemetry.Collector = (*recordingCollector)(nil)

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{instructions: map[string]int{}, samples: map[string]int{}}
}

func (c *recordingCollector) IncCompileSuccess(schedule string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success = append(c.success, schedule)
}

func (c *recordingCollector) IncCompileFailure(schedule string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = append(c.failure, schedule)
}

func (c *recordingCollector) AddInstructions(module, sequencer string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instructions[module+"/"+sequencer] += count
}

func (c *recordingCollector) SetWaveformMemory(module, sequencer string, samples int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[module+"/"+sequencer] = samples
}

func TestBackendReportsTelemetry(t *testing.T) {
	collector := newRecordingCollector()
	backend := NewBackend(readoutRig(), WithTelemetry(collector), WithLogger(zerolog.Nop()))

	sched := schedule.New("observed")
	mustAdd(t, sched, schedule.SquarePulse(0.5, 200e-9, "q0:res", "q0.ro"))
	if _, err := backend.Compile(context.Background(), sched); err != nil {
		t.Fatalf("compiling %s: %v", sched.Name(), err)
	}

	bad := schedule.New("misaligned")
	mustAdd(t, bad, schedule.SquarePulse(0.5, 122e-9, "q0:res", "q0.ro"))
	if _, err := backend.Compile(context.Background(), bad); err == nil {
		t.Fatal("expected the misaligned schedule to fail")
	}

	if !reflect.DeepEqual(collector.success, []string{"observed"}) {
		t.Fatalf("unexpected success counter %v", collector.success)
	}
	if !reflect.DeepEqual(collector.failure, []string{"misaligned"}) {
		t.Fatalf("unexpected failure counter %v", collector.failure)
	}
	if collector.instructions["qrm0/seq0"] == 0 {
		t.Fatal("instruction count not reported")
	}
	if collector.samples["qrm0/seq0"] != 400 {
		t.Fatalf("expected 400 waveform samples, got %d", collector.samples["qrm0/seq0"])
	}
}
