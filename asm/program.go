package asm

import (
	"fmt"
	"strings"
)

// Instruction is a single program row. Label rows leave Op empty, blank
// separator rows leave every field empty.
type Instruction struct {
	Label   string
	Op      string
	Args    string
	Comment string
}

// Fields renders the row as the four columns of the textual program: label
// (with trailing colon), operation, arguments and comment (with leading #).
func (i Instruction) Fields() []string {
	label := ""
	if i.Label != "" {
		label = i.Label + ":"
	}
	comment := ""
	if i.Comment != "" {
		comment = "# " + i.Comment
	}
	return []string{label, i.Op, i.Args, comment}
}

// Program accumulates sequencer instructions together with the bookkeeping
// needed while lowering a schedule: the register pool, elapsed real time and
// the estimated cycle count.
type Program struct {
	instructions []Instruction
	registers    *RegisterManager
	alignFields  bool
	elapsedNS    int
	cycles       int
}

// NewProgram returns an empty program drawing registers from rm. When
// alignFields is set, Render pads the columns so the operations line up.
func NewProgram(rm *RegisterManager, alignFields bool) *Program {
	return &Program{
		registers:   rm,
		alignFields: alignFields,
	}
}

// Registers exposes the register pool for strategies that need loop
// iterators or scratch values.
func (p *Program) Registers() *RegisterManager {
	return p.registers
}

// Emit appends an instruction row and accounts for its cycle cost.
func (p *Program) Emit(op, args, comment string) {
	p.instructions = append(p.instructions, Instruction{Op: op, Args: args, Comment: comment})
	p.cycles += CycleCost(op)
}

// EmitLabel appends a row carrying only a jump target.
func (p *Program) EmitLabel(label string) {
	p.instructions = append(p.instructions, Instruction{Label: label})
}

// EmitBlank appends an empty separator row.
func (p *Program) EmitBlank() {
	p.instructions = append(p.instructions, Instruction{})
}

// NextLabel derives a jump target from the number of rows emitted so far.
// Opening a loop emits rows before any further label can be requested, so
// targets are unique within a program. The numbering is part of the wire
// format: a stitch loop opened after one emitted row is labelled stitch1.
func (p *Program) NextLabel(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, len(p.instructions))
}

// AddElapsed records real time spent by instructions the caller emitted
// directly, such as play or upd_param.
func (p *Program) AddElapsed(ns int) {
	p.elapsedNS += ns
}

// ElapsedNS reports the real time the program has consumed so far.
func (p *Program) ElapsedNS() int {
	return p.elapsedNS
}

// Cycles reports the estimated classical cycle count of the emitted rows.
func (p *Program) Cycles() int {
	return p.cycles
}

// Instructions returns the emitted rows.
func (p *Program) Instructions() []Instruction {
	return p.instructions
}

// Rows returns every instruction rendered as its four columns.
func (p *Program) Rows() [][]string {
	rows := make([][]string, len(p.instructions))
	for i, instr := range p.instructions {
		rows[i] = instr.Fields()
	}
	return rows
}

// Loop wraps the body in a register backed repetition loop under the given
// label. The iterator register is allocated for the duration of the loop and
// released before returning. The body is emitted once but runs repetitions
// times, so any real time it records is counted that many times.
func (p *Program) Loop(label string, repetitions int, body func() error) error {
	if repetitions < 1 {
		return fmt.Errorf("loop %q needs at least one repetition, got %d", label, repetitions)
	}
	register, err := p.registers.Allocate()
	if err != nil {
		return fmt.Errorf("allocating iterator for loop %q: %w", label, err)
	}
	p.Emit(OpMove, fmt.Sprintf("%d,%s", repetitions, register), fmt.Sprintf("iterator for loop with label %s", label))
	p.EmitLabel(label)
	before := p.elapsedNS
	if err := body(); err != nil {
		return err
	}
	p.elapsedNS += (repetitions - 1) * (p.elapsedNS - before)
	p.Emit(OpLoop, fmt.Sprintf("%s,@%s", register, label), "")
	if err := p.registers.Free(register); err != nil {
		return fmt.Errorf("releasing iterator for loop %q: %w", label, err)
	}
	return nil
}

// AutoWait emits the wait instructions covering ns nanoseconds and adds the
// time to the elapsed counter. Waits longer than the immediate field allows
// are folded into a register loop of maximal waits plus a remainder.
func (p *Program) AutoWait(ns int) error {
	if ns == 0 {
		return nil
	}
	if ns < 0 {
		return fmt.Errorf("cannot wait %d ns, negative wait durations are impossible to realize", ns)
	}
	comment := fmt.Sprintf("auto generated wait (%d ns)", ns)
	remainder := ns
	if ns > MaxWaitNS {
		repetitions := ns / MaxWaitNS
		remainder = ns % MaxWaitNS
		if repetitions == 1 {
			p.Emit(OpWait, fmt.Sprintf("%d", MaxWaitNS), comment)
		} else {
			err := p.Loop(p.NextLabel("wait"), repetitions, func() error {
				p.Emit(OpWait, fmt.Sprintf("%d", MaxWaitNS), comment)
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	if remainder > 0 {
		p.Emit(OpWait, fmt.Sprintf("%d", remainder), comment)
	}
	p.elapsedNS += ns
	return nil
}

// Render serializes the program as assembly text, one instruction per
// line. With alignFields enabled the label, operation and argument columns
// are padded to a common width.
func (p *Program) Render() string {
	rows := p.Rows()
	widths := [3]int{}
	if p.alignFields {
		for _, row := range rows {
			for c := 0; c < 3; c++ {
				if len(row[c]) > widths[c] {
					widths[c] = len(row[c])
				}
			}
		}
	}
	var b strings.Builder
	for _, row := range rows {
		line := fmt.Sprintf("%-*s %-*s %-*s %s", widths[0], row[0], widths[1], row[1], widths[2], row[2], row[3])
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}
