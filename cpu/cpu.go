package cpu

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"os"
	"strings"
)

const (
	MEMORY_SIZE    = 256  // Bytes of memory.
	REGISTER_COUNT = 8    // Registers in the register file.
	REG_SP         = 7    // Register reserved as the stack pointer.
	STACK_TOP      = 0xf4 // Initial stack pointer.
)

var _cpu_defines = map[string]string{
	"MEMORY_SIZE":    fmt.Sprintf("%d", MEMORY_SIZE),
	"REGISTER_COUNT": fmt.Sprintf("%d", REGISTER_COUNT),
	"SP":             fmt.Sprintf("%d", REG_SP),
	"STACK_TOP":      fmt.Sprintf("0x%x", STACK_TOP),
}

// FlagPolicy selects how CMP treats the flags it does not set.
type FlagPolicy int

const (
	FLAG_POLICY_RETAIN = FlagPolicy(0) // Other flags keep their prior value.
	FLAG_POLICY_RESET  = FlagPolicy(1) // All flags are cleared before compare.
)

func (fp FlagPolicy) String() string {
	switch fp {
	case FLAG_POLICY_RETAIN:
		return "retain"
	case FLAG_POLICY_RESET:
		return "reset"
	}
	return fmt.Sprintf("FlagPolicy(%d)", int(fp))
}

// Flags is the comparison flag state.
type Flags struct {
	Equal   bool
	Greater bool
	Less    bool
}

func (fl Flags) String() string {
	out := []byte("---")
	if fl.Less {
		out[0] = 'L'
	}
	if fl.Greater {
		out[1] = 'G'
	}
	if fl.Equal {
		out[2] = 'E'
	}
	return string(out)
}

// Cpu is the simulation context for the LS-8 processor.
type Cpu struct {
	Verbose    bool       // Set to enable verbose logging.
	Output     io.Writer  // Destination of PRN output.
	FlagPolicy FlagPolicy // CMP flag handling.

	Memory   [MEMORY_SIZE]byte    // Unified program and stack memory.
	Register [REGISTER_COUNT]byte // Register bank. R7 is the stack pointer.
	Pc       int                  // Current program counter.
	Flags    Flags                // Comparison flags.
	Halted   bool                 // Set once HLT has executed.

	Ticks int // CPU ticks counter.
}

// NewCpu creates a new CPU in its reset state, printing to standard output.
func NewCpu() (cpu *Cpu) {
	cpu = &Cpu{
		Output: os.Stdout,
	}
	cpu.Reset()

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// Reset the CPU state.
// - Clears memory, registers and flags.
// - Sets the program counter to zero, and the stack pointer to STACK_TOP.
// - Zeros statistics counters.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	clear(cpu.Memory[:])
	clear(cpu.Register[:])
	cpu.Register[REG_SP] = STACK_TOP
	cpu.Pc = 0
	cpu.Flags = Flags{}
	cpu.Halted = false
	cpu.Ticks = 0
}

// LoadBytes copies a program image into memory, starting at address 0.
func (cpu *Cpu) LoadBytes(data []byte) (err error) {
	if len(data) > MEMORY_SIZE {
		err = ErrProgramSize
		return
	}

	copy(cpu.Memory[:], data)

	if cpu.Verbose {
		log.Printf("cpu: loaded %d bytes", len(data))
	}

	return
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text += fmt.Sprintf("% 5s: 0x%02x\n", "pc", cpu.Pc)
	text += fmt.Sprintf("% 5s: %v\n", "fl", cpu.Flags)
	for n, val := range cpu.Register {
		name := fmt.Sprintf("r%d", n)
		if n == REG_SP {
			name = "sp"
		}
		text += fmt.Sprintf("% 5s: 0x%02x\n", name, val)
	}

	return
}

// Trace returns a single line summary of the program counter, the next three
// bytes of memory and the register bank.
func (cpu *Cpu) Trace() string {
	var sb strings.Builder

	peek := func(addr int) byte {
		value, _ := cpu.Read(addr)
		return value
	}

	fmt.Fprintf(&sb, "TRACE: %02X | %02X %02X %02X |", cpu.Pc, peek(cpu.Pc), peek(cpu.Pc+1), peek(cpu.Pc+2))
	for _, val := range cpu.Register {
		fmt.Fprintf(&sb, " %02X", val)
	}

	return sb.String()
}

// Read returns the byte at a memory address.
func (cpu *Cpu) Read(address int) (value byte, err error) {
	if address < 0 || address >= MEMORY_SIZE {
		err = ErrMemoryRange
		return
	}

	value = cpu.Memory[address]
	return
}

// Write sets the byte at a memory address.
func (cpu *Cpu) Write(address int, value byte) (err error) {
	if address < 0 || address >= MEMORY_SIZE {
		err = ErrMemoryRange
		return
	}

	cpu.Memory[address] = value
	return
}

// Reg returns the value of a register.
func (cpu *Cpu) Reg(index byte) (value byte, err error) {
	if int(index) >= REGISTER_COUNT {
		err = ErrRegisterRange
		return
	}

	value = cpu.Register[index]
	return
}

// SetReg sets the value of a register.
func (cpu *Cpu) SetReg(index byte, value byte) (err error) {
	if int(index) >= REGISTER_COUNT {
		err = ErrRegisterRange
		return
	}

	cpu.Register[index] = value
	return
}

// push decrements SP, then writes value at the new SP.
func (cpu *Cpu) push(value byte) (err error) {
	sp := cpu.Register[REG_SP]
	if sp == 0 {
		err = ErrStackOverflow
		return
	}

	sp--
	cpu.Memory[sp] = value
	cpu.Register[REG_SP] = sp

	return
}

// pop reads the value at SP, then increments SP.
func (cpu *Cpu) pop() (value byte, err error) {
	sp := cpu.Register[REG_SP]
	if sp == MEMORY_SIZE-1 {
		err = ErrStackUnderflow
		return
	}

	value = cpu.Memory[sp]
	cpu.Register[REG_SP] = sp + 1

	return
}

// FetchCode fetches the instruction at the program counter.
func (cpu *Cpu) FetchCode() (code Code, err error) {
	value, err := cpu.Read(cpu.Pc)
	if err != nil {
		return
	}

	code.Opcode = Opcode(value)
	if !code.Opcode.Known() {
		return
	}

	for n := range code.Opcode.Operands() {
		value, err = cpu.Read(cpu.Pc + 1 + n)
		if err != nil {
			return
		}
		code.Operands = append(code.Operands, value)
	}

	return
}

// Tick executes a single CPU instruction cycle.
// Returns ErrHalted once the HLT instruction has executed.
func (cpu *Cpu) Tick() (err error) {
	if cpu.Halted {
		err = ErrHalted
		return
	}

	if cpu.Verbose {
		log.Print(cpu.Trace())
	}

	code, err := cpu.FetchCode()
	if err != nil {
		return
	}

	err = cpu.Execute(code)
	if err != nil {
		return
	}

	if cpu.Halted {
		err = ErrHalted
	}

	return
}

// Execute executes a single decoded instruction at the current program
// counter.
func (cpu *Cpu) Execute(code Code) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrOpcode(code), err)
		}
	}()
	if cpu.Verbose {
		log.Printf("%02x: %v", cpu.Pc, code)
	}

	op := code.Opcode
	if op.Known() && len(code.Operands) < op.Operands() {
		err = ErrOpcodeOperands
		return
	}

	next_pc := cpu.Pc + op.Size()

	reg_a := code.operand(0)
	reg_b := code.operand(1)

	switch op {
	case OP_HLT:
		cpu.Halted = true
		next_pc = cpu.Pc
	case OP_LDI:
		err = cpu.SetReg(reg_a, code.operand(1))
	case OP_PRN:
		if cpu.Output == nil {
			err = ErrOutput
			return
		}
		var value byte
		value, err = cpu.Reg(reg_a)
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(cpu.Output, "%d\n", value)
		if err != nil {
			err = errors.Join(ErrOutput, err)
		}
	case OP_PUSH:
		var value byte
		value, err = cpu.Reg(reg_a)
		if err != nil {
			return
		}
		err = cpu.push(value)
	case OP_POP:
		// Validate the target before touching the stack.
		_, err = cpu.Reg(reg_a)
		if err != nil {
			return
		}
		var value byte
		value, err = cpu.pop()
		if err != nil {
			return
		}
		err = cpu.SetReg(reg_a, value)
	case OP_CALL:
		var target byte
		target, err = cpu.Reg(reg_a)
		if err != nil {
			return
		}
		ret := cpu.Pc + 2
		if ret >= MEMORY_SIZE {
			err = ErrMemoryRange
			return
		}
		err = cpu.push(byte(ret))
		next_pc = int(target)
	case OP_RET:
		var target byte
		target, err = cpu.pop()
		next_pc = int(target)
	case OP_JMP:
		var target byte
		target, err = cpu.Reg(reg_a)
		next_pc = int(target)
	case OP_JEQ, OP_JNE:
		var target byte
		target, err = cpu.Reg(reg_a)
		if err != nil {
			return
		}
		if cpu.Flags.Equal == (op == OP_JEQ) {
			next_pc = int(target)
		}
	default:
		if op.IsAlu() {
			err = cpu.Alu(op, reg_a, reg_b)
		} else {
			err = ErrOpcodeDecode
		}
	}

	if err != nil {
		return
	}

	if cpu.Verbose && op.SetsPc() && next_pc != cpu.Pc+op.Size() {
		log.Printf("%02x: branch to %02x", cpu.Pc, next_pc)
	}

	cpu.Pc = next_pc
	cpu.Ticks += 1

	return
}

// Alu performs the requested ALU operation on two registers.
// ADD and MUL store their result, modulo 256, in reg_a. CMP sets exactly
// one of the flags; the other two are handled as per FlagPolicy.
func (cpu *Cpu) Alu(op Opcode, reg_a, reg_b byte) (err error) {
	switch op {
	case OP_ADD, OP_MUL, OP_CMP:
	default:
		err = ErrOpcodeAlu
		return
	}

	a, err := cpu.Reg(reg_a)
	if err != nil {
		return
	}
	b, err := cpu.Reg(reg_b)
	if err != nil {
		return
	}

	switch op {
	case OP_ADD:
		cpu.Register[reg_a] = byte((uint(a) + uint(b)) % 256)
	case OP_MUL:
		cpu.Register[reg_a] = byte((uint(a) * uint(b)) % 256)
	case OP_CMP:
		if cpu.FlagPolicy == FLAG_POLICY_RESET {
			cpu.Flags = Flags{}
		}
		switch {
		case a == b:
			cpu.Flags.Equal = true
		case a > b:
			cpu.Flags.Greater = true
		default:
			cpu.Flags.Less = true
		}
	}

	return
}
