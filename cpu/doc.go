// Package cpu implements the LS-8 microprocessor, its loader, assembler and
// disassembler.
//
// The CPU consists of a 256 byte memory holding both program and stack, eight
// 8-bit registers (R0-R7, with R7 reserved as the stack pointer), a program
// counter, and the Equal/Greater/Less comparison flags. Instructions are a one
// byte opcode followed by up to two operand bytes; the opcode encodes its own
// operand count, whether it is an ALU operation, and whether it sets the
// program counter itself.
//
// All arithmetic is unsigned 8-bit and wraps modulo 256. Accesses outside of
// memory or the register file are reported as errors rather than wrapped.
//
// The assembler provides a small assembly language for the LS-8 instruction
// set, supporting macros, labels, equates, and compile-time expression
// evaluation.
package cpu
