package asm

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrRegisterPoolExhausted is returned when a program needs more
// concurrently live registers than the sequencer provides.
var ErrRegisterPoolExhausted = errors.New("register pool exhausted")

// RegisterManager hands out the sequencer's general purpose registers. Each
// compiled program owns exactly one manager; handles are never shared across
// programs.
type RegisterManager struct {
	free []int
	used map[int]bool
}

func NewRegisterManager() *RegisterManager {
	m := &RegisterManager{
		free: make([]int, NumberOfRegisters),
		used: make(map[int]bool, NumberOfRegisters),
	}
	for i := range m.free {
		m.free[i] = i
	}
	return m
}

// Allocate returns the lowest numbered free register as an "R<n>" handle.
func (m *RegisterManager) Allocate() (string, error) {
	if len(m.free) == 0 {
		return "", fmt.Errorf("%w: all %d registers in use", ErrRegisterPoolExhausted, NumberOfRegisters)
	}
	idx := m.free[0]
	m.free = m.free[1:]
	m.used[idx] = true
	return "R" + strconv.Itoa(idx), nil
}

// Free returns a register to the pool. Freeing a handle that was never
// allocated, or freeing it twice, is an error.
func (m *RegisterManager) Free(register string) error {
	idx, err := parseRegister(register)
	if err != nil {
		return err
	}
	if !m.used[idx] {
		return fmt.Errorf("register %s is not allocated", register)
	}
	delete(m.used, idx)
	m.free = append(m.free, idx)
	sort.Ints(m.free)
	return nil
}

// Available reports how many registers are still free.
func (m *RegisterManager) Available() int {
	return len(m.free)
}

func parseRegister(register string) (int, error) {
	if !strings.HasPrefix(register, "R") {
		return 0, fmt.Errorf("invalid register handle %q", register)
	}
	idx, err := strconv.Atoi(register[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid register handle %q", register)
	}
	if idx < 0 || idx >= NumberOfRegisters {
		return 0, fmt.Errorf("register %s outside the R0..R%d file", register, NumberOfRegisters-1)
	}
	return idx, nil
}
