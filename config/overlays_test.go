package config

import (
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/load"
	"github.com/stretchr/testify/require"
)

func TestRegisterOverlayValidation(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	require.ErrorContains(t, RegisterOverlayString("", "package x"), "must not be empty")
	require.ErrorContains(t, RegisterOverlay("schema.cue", nil), "must not be nil")
	require.ErrorContains(t, RegisterOverlayFile("schema.cue", nil), "must not be nil")

	require.NoError(t, RegisterOverlayString("schema.cue", "package x"))
	require.ErrorContains(t, RegisterOverlayString("schema.cue", "package x"), "already registered")
}

func TestResolveOverlaysUsesAbsolutePaths(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	require.Nil(t, ResolveOverlays("/tmp/work"))

	require.NoError(t, RegisterOverlayString("cue.mod/module.cue", `module: "x.dev/x"`))
	resolved := ResolveOverlays("/tmp/work")
	require.Len(t, resolved, 1)
	_, ok := resolved[filepath.Join("/tmp/work", "cue.mod/module.cue")]
	require.True(t, ok)
}

func TestApplyDefaultOverlaysInstallsHardwareSchema(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	require.NoError(t, ApplyDefaultOverlays())
	resolved := ResolveOverlays("/work")
	require.Contains(t, resolved, filepath.Join("/work", hardwareModulePath))
	require.Contains(t, resolved, filepath.Join("/work", hardwareOverlayPath))

	// A second application must not re-install and fail on duplicates.
	require.NoError(t, ApplyDefaultOverlays())
}

func TestRegisterDefaultOverlayQueuesInstaller(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	installed := 0
	RegisterDefaultOverlay(func() error {
		installed++
		return RegisterOverlay("extra.cue", load.FromString("package extra"))
	})

	require.NoError(t, ApplyDefaultOverlays())
	require.NoError(t, ApplyDefaultOverlays())
	require.Equal(t, 1, installed)

	resolved := ResolveOverlays("/base")
	require.Contains(t, resolved, filepath.Join("/base", "extra.cue"))
}
