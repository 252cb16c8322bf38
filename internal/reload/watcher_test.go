package reload

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func TestUniquePathsFiltersDuplicatesAndEmptyValues(t *testing.T) {
	paths := []string{"", "/tmp/a", "/tmp/b", "/tmp/a", "\t", "/tmp/c", "/tmp/b"}
	got := uniquePaths(paths)
	want := []string{"/tmp/a", "/tmp/b", "/tmp/c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("uniquePaths() = %v, want %v", got, want)
	}
}

func TestWatcherTracksExistingFiles(t *testing.T) {
	dir := t.TempDir()
	scheduleFile := filepath.Join(dir, "schedule.json")
	hardwareFile := filepath.Join(dir, "hardware.yaml")
	missing := filepath.Join(dir, "missing.yaml")

	writeFile(t, scheduleFile, "{}")
	writeFile(t, hardwareFile, "name: rig")

	watcher := NewWatcher(scheduleFile, hardwareFile, missing)
	if len(watcher.files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(watcher.files))
	}
	if _, ok := watcher.files[scheduleFile]; !ok {
		t.Fatalf("schedule file %s not tracked", scheduleFile)
	}
	if _, ok := watcher.files[hardwareFile]; !ok {
		t.Fatalf("hardware file %s not tracked", hardwareFile)
	}
}

func TestWatcherCheckDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "schedule.json")
	fileB := filepath.Join(dir, "hardware.yaml")
	writeFile(t, fileA, "first")
	writeFile(t, fileB, "second")

	watcher := NewWatcher(fileA, fileB)
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes on first check, got %v", changed)
	}

	time.Sleep(10 * time.Millisecond)
	writeFile(t, fileA, "first-UPDATED")
	if err := os.Remove(fileB); err != nil {
		t.Fatalf("Remove(%s) error = %v", fileB, err)
	}

	changed := watcher.Check()
	want := []string{fileB, fileA}
	sort.Strings(want)
	if !reflect.DeepEqual(changed, want) {
		t.Fatalf("Check() = %v, want %v", changed, want)
	}
}

func TestWatcherUpdateReplacesSnapshot(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.json")
	fileB := filepath.Join(dir, "b.json")
	writeFile(t, fileA, "a")
	writeFile(t, fileB, "b")

	watcher := NewWatcher(fileA)
	time.Sleep(10 * time.Millisecond)
	writeFile(t, fileA, "a-changed")

	watcher.Update(fileA, fileB)
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("Update() must reset the snapshot, got changes %v", changed)
	}
	if len(watcher.files) != 2 {
		t.Fatalf("expected 2 tracked files after Update, got %d", len(watcher.files))
	}
}

func TestWatcherHandlesNilReceiver(t *testing.T) {
	var watcher *Watcher
	watcher.Update("/tmp/a")
	if changed := watcher.Check(); changed != nil {
		t.Fatalf("expected nil slice from nil watcher, got %v", changed)
	}
}
