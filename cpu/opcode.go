package cpu

import (
	"fmt"
	"iter"
	"strings"
)

// Opcode is the first byte of an instruction.
//
// The byte is laid out as AABCDDDD:
//   - AA: number of operand bytes that follow.
//   - B: set if the instruction is handled by the ALU.
//   - C: set if the instruction sets the program counter itself.
//   - DDDD: instruction identifier.
type Opcode byte

const (
	OP_HLT  = Opcode(0b00000001) // HLT
	OP_LDI  = Opcode(0b10000010) // LDI
	OP_PRN  = Opcode(0b01000111) // PRN
	OP_ADD  = Opcode(0b10100000) // ADD
	OP_MUL  = Opcode(0b10100010) // MUL
	OP_CMP  = Opcode(0b10100111) // CMP
	OP_PUSH = Opcode(0b01000101) // PUSH
	OP_POP  = Opcode(0b01000110) // POP
	OP_CALL = Opcode(0b01010000) // CALL
	OP_RET  = Opcode(0b00010001) // RET
	OP_JMP  = Opcode(0b01010100) // JMP
	OP_JEQ  = Opcode(0b01010101) // JEQ
	OP_JNE  = Opcode(0b01010110) // JNE
)

const (
	OPCODE_OPERANDS_SHIFT = 6           // Shift of the operand count.
	OPCODE_ALU            = 0b0010_0000 // ALU operation bit.
	OPCODE_SETS_PC        = 0b0001_0000 // Sets-PC bit.
)

// OperandKind describes how an operand byte is interpreted.
type OperandKind int

const (
	OPERAND_REG = OperandKind(0) // Register index.
	OPERAND_IMM = OperandKind(1) // Immediate value.
)

type opcodeInfo struct {
	name     string
	operands []OperandKind
}

var opcodeTable = map[Opcode]opcodeInfo{
	OP_HLT:  {"HLT", nil},
	OP_LDI:  {"LDI", []OperandKind{OPERAND_REG, OPERAND_IMM}},
	OP_PRN:  {"PRN", []OperandKind{OPERAND_REG}},
	OP_ADD:  {"ADD", []OperandKind{OPERAND_REG, OPERAND_REG}},
	OP_MUL:  {"MUL", []OperandKind{OPERAND_REG, OPERAND_REG}},
	OP_CMP:  {"CMP", []OperandKind{OPERAND_REG, OPERAND_REG}},
	OP_PUSH: {"PUSH", []OperandKind{OPERAND_REG}},
	OP_POP:  {"POP", []OperandKind{OPERAND_REG}},
	OP_CALL: {"CALL", []OperandKind{OPERAND_REG}},
	OP_RET:  {"RET", nil},
	OP_JMP:  {"JMP", []OperandKind{OPERAND_REG}},
	OP_JEQ:  {"JEQ", []OperandKind{OPERAND_REG}},
	OP_JNE:  {"JNE", []OperandKind{OPERAND_REG}},
}

// mnemonicMap maps upper case mnemonics to opcodes.
var mnemonicMap = func() map[string]Opcode {
	mnemonics := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		mnemonics[info.name] = op
	}
	return mnemonics
}()

// LookupOpcode returns the opcode for a mnemonic, ignoring case.
func LookupOpcode(mnemonic string) (op Opcode, ok bool) {
	op, ok = mnemonicMap[strings.ToUpper(mnemonic)]
	return
}

// Operands returns the number of operand bytes following the opcode.
func (op Opcode) Operands() int {
	return int(op >> OPCODE_OPERANDS_SHIFT)
}

// Size returns the size in bytes of the whole instruction.
func (op Opcode) Size() int {
	return 1 + op.Operands()
}

// IsAlu returns true if the opcode is routed to the ALU.
func (op Opcode) IsAlu() bool {
	return (op & OPCODE_ALU) != 0
}

// SetsPc returns true if the instruction sets the program counter itself.
func (op Opcode) SetsPc() bool {
	return (op & OPCODE_SETS_PC) != 0
}

// Known returns true if the opcode is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// OperandKinds returns the interpretation of each operand byte.
func (op Opcode) OperandKinds() []OperandKind {
	return opcodeTable[op].operands
}

func (op Opcode) String() string {
	info, ok := opcodeTable[op]
	if !ok {
		return fmt.Sprintf("0x%02x", byte(op))
	}
	return info.name
}

// Code is a single decoded instruction.
type Code struct {
	Opcode   Opcode
	Operands []byte
}

// MakeCode creates an instruction.
func MakeCode(op Opcode, operands ...byte) Code {
	return Code{Opcode: op, Operands: operands}
}

// Valid returns true if the code is a known opcode with all of its operands.
func (code Code) Valid() bool {
	return code.Opcode.Known() && len(code.Operands) == code.Opcode.Operands()
}

// Bytes returns the memory encoding of the instruction.
func (code Code) Bytes() []byte {
	return append([]byte{byte(code.Opcode)}, code.Operands...)
}

// operand returns the n'th operand, or zero if missing.
func (code Code) operand(n int) byte {
	if n >= len(code.Operands) {
		return 0
	}
	return code.Operands[n]
}

// String returns the assembly language representation of this instruction.
func (code Code) String() string {
	if !code.Valid() {
		return fmt.Sprintf(".byte 0x%02x", byte(code.Opcode))
	}

	args := make([]string, len(code.Operands))
	for n, kind := range code.Opcode.OperandKinds() {
		switch kind {
		case OPERAND_REG:
			args[n] = fmt.Sprintf("R%d", code.Operands[n])
		case OPERAND_IMM:
			args[n] = fmt.Sprintf("%d", code.Operands[n])
		}
	}

	if len(args) == 0 {
		return code.Opcode.String()
	}

	return code.Opcode.String() + " " + strings.Join(args, ",")
}

// Disassemble walks a memory image, yielding each instruction and its
// address. Bytes which do not start a complete instruction are yielded as a
// single byte Code that is not Valid().
func Disassemble(data []byte) iter.Seq2[int, Code] {
	return func(yield func(addr int, code Code) bool) {
		for addr := 0; addr < len(data); {
			op := Opcode(data[addr])
			size := op.Size()
			code := Code{Opcode: op}
			if op.Known() && addr+size <= len(data) {
				code.Operands = data[addr+1 : addr+size]
			} else {
				size = 1
			}
			if !yield(addr, code) {
				return
			}
			addr += size
		}
	}
}
