// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator runs LS-8 programs, tying the CPU to an optional
// assembled Program for source level error reporting.
package emulator

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/ls8/cpu"
	"github.com/ezrec/ls8/internal"
)

var _emulator_defines = map[string]string{
	"PROGRAM_BASE": fmt.Sprintf("%d", 0),
}

// Emulator state. CPU + program image.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Reference to the assembled program, if any.
	Image    []byte       // Memory image loaded at each Reset.
	MaxTicks int          // If non-zero, Run stops after this many ticks.
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Cpu:     cpu.NewCpu(),
		Program: &cpu.Program{},
	}

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.Cpu.Defines(),
	)
}

// SetProgram attaches an assembled program, and uses its binary as the image.
func (emu *Emulator) SetProgram(prog *cpu.Program) {
	emu.Program = prog
	emu.Image = prog.Binary()
}

// Reset the CPU and reload the memory image.
func (emu *Emulator) Reset() (err error) {
	emu.Cpu.Verbose = false

	emu.Cpu.Reset()

	err = emu.Cpu.LoadBytes(emu.Image)
	if err != nil {
		return
	}

	emu.Cpu.Verbose = emu.Verbose

	if emu.Verbose {
		log.Printf("emulator: reset, %d byte image", len(emu.Image))
	}

	return
}

// Ticks returns the total ticks since a reset.
func (emu *Emulator) Ticks() int {
	return emu.Cpu.Ticks
}

// Pc returns the current program counter.
func (emu *Emulator) Pc() int {
	return emu.Cpu.Pc
}

// Code returns the instruction at the program counter.
func (emu *Emulator) Code() cpu.Code {
	code, err := emu.Cpu.FetchCode()
	if err != nil {
		return cpu.Code{}
	}

	return code
}

// LineNo returns the source line number for the executing instruction, or 0
// if unknown.
func (emu *Emulator) LineNo() int {
	if emu.Program == nil {
		return 0
	}

	dbg := emu.Program.Debug(emu.Cpu.Pc)
	if dbg.Statement == nil {
		return 0
	}

	return dbg.LineNo
}

// Tick performs a single tick of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	lineno := emu.LineNo()
	pc := emu.Cpu.Pc
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Pc: pc, Err: err}
		}
	}()

	err = emu.Cpu.Tick()
	if errors.Is(err, cpu.ErrHalted) {
		err = nil
		done = true
		return
	}

	return
}

// Run ticks the emulator until the program halts, fails, or MaxTicks is
// exceeded.
func (emu *Emulator) Run() (err error) {
	for done := false; !done; {
		if emu.MaxTicks > 0 && emu.Cpu.Ticks >= emu.MaxTicks {
			err = &ErrRuntime{LineNo: emu.LineNo(), Pc: emu.Cpu.Pc, Err: ErrTickLimit}
			return
		}
		done, err = emu.Tick()
		if err != nil {
			return
		}
	}

	if emu.Verbose {
		log.Printf("emulator: halted after %d ticks", emu.Cpu.Ticks)
	}

	return
}
