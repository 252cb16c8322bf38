package compiler

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/pverheul/tactus/asm"
)

// ErrWaveformMemory is returned when a program needs more waveform samples
// than the sequencer memory holds.
var ErrWaveformMemory = errors.New("waveform memory exceeded")

// waveformHashDomain separates waveform hashes from any other SHA-256 use.
const waveformHashDomain = "tactus/waveform/v1"

// SampleHash returns the content address of a sampled waveform.
func SampleHash(data []float64) string {
	h := sha256.New()
	h.Write([]byte(waveformHashDomain))
	h.Write([]byte{0x00})
	var buf [8]byte
	for _, v := range data {
		bits := math.Float64bits(v)
		// negative zero hashes like zero, so sign-flipped silence dedupes
		if v == 0 {
			bits = 0
		}
		binary.BigEndian.PutUint64(buf[:], bits)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TableEntry is one registered waveform with its assigned memory slot.
type TableEntry struct {
	Data  []float64 `json:"data"`
	Index int       `json:"index"`
}

// Table collects the sampled waveforms of one sequencer program, keyed by
// content hash. A table is scoped to a single compiled program and never
// shared across sequencers.
type Table struct {
	entries map[string]TableEntry
	order   []string
	samples int
}

// NewTable creates an empty waveform table.
func NewTable() *Table {
	return &Table{entries: make(map[string]TableEntry)}
}

// Register stores the sampled data under its content hash and returns the
// assigned slot index. Registering identical data again returns the
// original slot without consuming more memory.
func (t *Table) Register(data []float64) (int, error) {
	hash := SampleHash(data)
	if entry, ok := t.entries[hash]; ok {
		return entry.Index, nil
	}
	if t.samples+len(data) > asm.MaxWaveformSamples {
		return 0, fmt.Errorf("%w: %d samples requested with %d of %d in use", ErrWaveformMemory, len(data), t.samples, asm.MaxWaveformSamples)
	}
	index := len(t.order)
	copied := make([]float64, len(data))
	copy(copied, data)
	t.entries[hash] = TableEntry{Data: copied, Index: index}
	t.order = append(t.order, hash)
	t.samples += len(data)
	return index, nil
}

// Samples returns the number of memory samples in use.
func (t *Table) Samples() int { return t.samples }

// Len returns the number of distinct registered waveforms.
func (t *Table) Len() int { return len(t.order) }

// Entries returns the registered waveforms keyed by content hash.
func (t *Table) Entries() map[string]TableEntry {
	out := make(map[string]TableEntry, len(t.entries))
	for hash, entry := range t.entries {
		out[hash] = entry
	}
	return out
}
