// Package driver delivers compiled schedule artifacts to their consumers.
package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pverheul/tactus/compiler"
)

// Target consumes the artifacts of one compiled schedule.
//
// Implementations receive the complete artifact set in a single call and
// decide how to persist or forward it. Delivering the same schedule again
// replaces the earlier delivery.
type Target interface {
	Deliver(compiled *compiler.Compiled) error
	Close() error
}

// Filesystem writes artifacts into a directory tree below its root:
//
//	<root>/<schedule>/<module>/settings.yaml
//	<root>/<schedule>/<module>/<sequencer>/program.asm
//	<root>/<schedule>/<module>/<sequencer>/waveforms.json
//	<root>/<schedule>/<module>/<sequencer>/settings.yaml
type Filesystem struct {
	root string
	log  zerolog.Logger
}

var _ Target = (*Filesystem)(nil)

// FilesystemOption adjusts a Filesystem target.
type FilesystemOption func(*Filesystem)

// WithLogger routes delivery logs through the given logger.
func WithLogger(log zerolog.Logger) FilesystemOption {
	return func(f *Filesystem) { f.log = log }
}

// NewFilesystem creates the root directory and returns a target writing
// below it.
func NewFilesystem(root string, opts ...FilesystemOption) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("output root must not be empty")
	}
	f := &Filesystem{root: root, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}
	return f, nil
}

// Deliver writes every module's settings and every sequencer's program,
// waveform table and settings. Existing files are overwritten.
func (f *Filesystem) Deliver(compiled *compiler.Compiled) error {
	scheduleDir := filepath.Join(f.root, compiled.Schedule)
	for _, moduleName := range sortedKeys(compiled.Modules) {
		moduleProgram := compiled.Modules[moduleName]
		moduleDir := filepath.Join(scheduleDir, moduleName)
		if err := os.MkdirAll(moduleDir, 0o755); err != nil {
			return fmt.Errorf("create module directory: %w", err)
		}
		if err := f.writeYAML(filepath.Join(moduleDir, "settings.yaml"), moduleProgram.Settings); err != nil {
			return fmt.Errorf("module %s: %w", moduleName, err)
		}
		for _, seqName := range sortedKeys(moduleProgram.Sequencers) {
			seq := moduleProgram.Sequencers[seqName]
			seqDir := filepath.Join(moduleDir, seqName)
			if err := os.MkdirAll(seqDir, 0o755); err != nil {
				return fmt.Errorf("create sequencer directory: %w", err)
			}
			if err := f.deliverSequencer(seqDir, seq); err != nil {
				return fmt.Errorf("module %s sequencer %s: %w", moduleName, seqName, err)
			}
		}
	}
	f.log.Info().
		Str("schedule", compiled.Schedule).
		Str("dir", scheduleDir).
		Int("modules", len(compiled.Modules)).
		Msg("artifacts written")
	return nil
}

// Close is part of Target; the filesystem target holds no resources.
func (f *Filesystem) Close() error { return nil }

func (f *Filesystem) deliverSequencer(dir string, seq compiler.SequencerProgram) error {
	if err := f.writeFile(filepath.Join(dir, "program.asm"), []byte(seq.Program)); err != nil {
		return err
	}
	waveforms, err := json.MarshalIndent(seq.Waveforms, "", "  ")
	if err != nil {
		return fmt.Errorf("encode waveforms: %w", err)
	}
	if err := f.writeFile(filepath.Join(dir, "waveforms.json"), append(waveforms, '\n')); err != nil {
		return err
	}
	return f.writeYAML(filepath.Join(dir, "settings.yaml"), seq.Settings)
}

func (f *Filesystem) writeYAML(path string, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.writeFile(path, data)
}

func (f *Filesystem) writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	f.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("artifact file written")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
