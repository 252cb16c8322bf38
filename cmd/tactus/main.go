package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pverheul/tactus/compiler"
	"github.com/pverheul/tactus/config"
	"github.com/pverheul/tactus/driver"
	"github.com/pverheul/tactus/internal/logging"
	"github.com/pverheul/tactus/internal/reload"
	"github.com/pverheul/tactus/schedule"
	"github.com/pverheul/tactus/telemetry"
)

func main() {
	schedulePath := flag.String("schedule", "schedule.json", "Path to the schedule document")
	hardwarePath := flag.String("hardware", "hardware.yaml", "Path to the hardware description")
	outDir := flag.String("out", "out", "Directory the artifacts are written to")
	configCheck := flag.Bool("config-check", false, "Validate the hardware description and exit")
	watch := flag.Bool("watch", false, "Recompile whenever a source file changes")
	flag.Parse()

	cfg, err := config.Load(*hardwarePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load hardware description")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		logger.Error().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	target, err := driver.NewFilesystem(*outDir, driver.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare the output directory")
	}
	defer target.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *watch {
		err := runWatch(ctx, cfg, *hardwarePath, *schedulePath, target, logger, collector)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("watch stopped with error")
		}
		return
	}

	if err := compileOnce(ctx, cfg, *schedulePath, target, logger, collector); err != nil {
		logger.Fatal().Err(err).Msg("compilation failed")
	}
}

func executeConfigCheck(cfg *config.HardwareConfig) int {
	if err := compiler.ValidateHardware(*cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}
	for _, moduleName := range cfg.ModuleNames() {
		module := cfg.Modules[moduleName]
		fmt.Printf("Module %q (%s)\n", moduleName, module.InstrumentType)
		for _, channelName := range module.ChannelNames() {
			fmt.Printf("  Channel %s\n", channelName)
			for _, pc := range module.Channels[channelName].PortClocks {
				fmt.Printf("    - %s\n", pc.Key())
			}
		}
	}
	fmt.Println("Configuration check completed successfully.")
	return 0
}

func loadSchedule(path string) (*schedule.Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var sched schedule.Schedule
	if err := json.Unmarshal(raw, &sched); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", path, err)
	}
	return &sched, nil
}

func compileOnce(ctx context.Context, cfg *config.HardwareConfig, schedulePath string, target driver.Target, logger zerolog.Logger, collector telemetry.Collector) error {
	sched, err := loadSchedule(schedulePath)
	if err != nil {
		return err
	}
	backend := compiler.NewBackend(*cfg, compiler.WithLogger(logger), compiler.WithTelemetry(collector))
	compiled, err := backend.Compile(ctx, sched)
	if err != nil {
		return err
	}
	return target.Deliver(compiled)
}

// runWatch recompiles on every change to the schedule document or the
// hardware description. Failed reloads and failed compilations are logged
// and the previous artifacts stay in place until a good version appears.
func runWatch(ctx context.Context, cfg *config.HardwareConfig, hardwarePath, schedulePath string, target driver.Target, logger zerolog.Logger, collector telemetry.Collector) error {
	serveTelemetry(ctx, cfg.Telemetry, logger)

	if err := compileOnce(ctx, cfg, schedulePath, target, logger, collector); err != nil {
		logger.Error().Err(err).Msg("compilation failed")
	}

	watcher := reload.NewWatcher(schedulePath, hardwarePath)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			changed := watcher.Check()
			if len(changed) == 0 {
				continue
			}
			watcher.Update(schedulePath, hardwarePath)
			logger.Info().Strs("files", changed).Msg("sources changed, recompiling")

			newCfg, err := config.Load(hardwarePath)
			if err != nil {
				logger.Error().Err(err).Msg("failed to reload hardware description")
				continue
			}
			cfg = newCfg
			if err := compileOnce(ctx, cfg, schedulePath, target, logger, collector); err != nil {
				logger.Error().Err(err).Msg("compilation failed")
			}
		}
	}
}

func serveTelemetry(ctx context.Context, cfg config.TelemetryConfig, logger zerolog.Logger) {
	if !cfg.Enabled || cfg.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Listen, Handler: mux}
	go func() {
		logger.Info().Str("listen", cfg.Listen).Msg("serving telemetry")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("telemetry server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		return nil, err
	}
	return collector, nil
}
