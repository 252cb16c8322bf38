package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/load"
)

// The overlay registry holds virtual CUE files describing the hardware
// description schema. External tooling resolves them into a load.Config so
// documents can be validated without shipping schema files on disk.

var (
	overlayMu sync.RWMutex
	overlays  = make(map[string]load.Source)

	defaultOverlayMu      sync.Mutex
	defaultOverlays       []func() error
	defaultOverlaysLoaded bool
)

// RegisterOverlay registers a virtual CUE file under a registry-relative path.
func RegisterOverlay(path string, src load.Source) error {
	normalized, err := normalizeOverlayPath(path)
	if err != nil {
		return err
	}
	if src == nil {
		return errors.New("overlay source must not be nil")
	}
	overlayMu.Lock()
	defer overlayMu.Unlock()
	if _, exists := overlays[normalized]; exists {
		return fmt.Errorf("overlay %s already registered", normalized)
	}
	overlays[normalized] = src
	return nil
}

// RegisterOverlayString registers a virtual CUE file from a raw string.
func RegisterOverlayString(path, cue string) error {
	return RegisterOverlay(path, load.FromString(cue))
}

// RegisterOverlayFile registers a virtual CUE file from a parsed AST.
func RegisterOverlayFile(path string, file *ast.File) error {
	if file == nil {
		return errors.New("overlay file must not be nil")
	}
	return RegisterOverlay(path, load.FromFile(file))
}

func normalizeOverlayPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("overlay path must not be empty")
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return "", errors.New("overlay path must reference a file")
	}
	return cleaned, nil
}

// RegisterDefaultOverlay queues an installer that contributes built-in
// schema files. Installers run on the first ApplyDefaultOverlays call, so
// init order between schema providers does not matter.
func RegisterDefaultOverlay(install func() error) {
	if install == nil {
		return
	}
	defaultOverlayMu.Lock()
	defaultOverlays = append(defaultOverlays, install)
	defaultOverlaysLoaded = false
	defaultOverlayMu.Unlock()
}

// ApplyDefaultOverlays installs every queued built-in schema exactly once.
func ApplyDefaultOverlays() error {
	defaultOverlayMu.Lock()
	defer defaultOverlayMu.Unlock()
	if defaultOverlaysLoaded {
		return nil
	}
	for _, install := range defaultOverlays {
		if err := install(); err != nil {
			return fmt.Errorf("install default overlay: %w", err)
		}
	}
	defaultOverlaysLoaded = true
	return nil
}

// ResolveOverlays returns a copy of the registry keyed by absolute paths
// under baseDir, ready for use as load.Config overlays.
func ResolveOverlays(baseDir string) map[string]load.Source {
	overlayMu.RLock()
	defer overlayMu.RUnlock()
	if len(overlays) == 0 {
		return nil
	}
	resolved := make(map[string]load.Source, len(overlays))
	for path, src := range overlays {
		resolved[filepath.Join(baseDir, path)] = src
	}
	return resolved
}

// ResetOverlaysForTest clears the registry and re-arms the default
// installers. Intended for tests only.
func ResetOverlaysForTest() {
	overlayMu.Lock()
	overlays = make(map[string]load.Source)
	overlayMu.Unlock()
	defaultOverlayMu.Lock()
	defaultOverlaysLoaded = false
	defaultOverlayMu.Unlock()
}
