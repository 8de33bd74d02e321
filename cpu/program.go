package cpu

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Link is an operand byte to be filled with the address of a label.
type Link struct {
	Index int    // Index into Statement.Bytes.
	Label string // Label to resolve.
}

// Statement represents a line of assembled code with its source location and
// generated bytes.
type Statement struct {
	LineNo  int
	Address int
	Words   []string
	Bytes   []byte
	Links   []Link
}

type Program struct {
	Statements []Statement
}

type Debug struct {
	*Statement
	Index int
}

// Debug finds the statement that generated the byte at an address.
func (prog *Program) Debug(addr int) (dbg Debug) {
	for n, st := range prog.Statements {
		if addr >= st.Address && addr < st.Address+len(st.Bytes) {
			dbg = Debug{
				Statement: &prog.Statements[n],
				Index:     addr - st.Address,
			}
			break
		}
	}

	return
}

// Size returns the number of bytes of memory used by the program.
func (prog *Program) Size() (size int) {
	for _, st := range prog.Statements {
		size = max(size, st.Address+len(st.Bytes))
	}

	return
}

// Binary returns the memory image of the program.
func (prog *Program) Binary() (bins []byte) {
	bins = make([]byte, prog.Size())
	for addr, value := range prog.Codes() {
		bins[addr] = value
	}

	return
}

// Codes iterates over every generated byte and its address.
func (prog *Program) Codes() iter.Seq2[int, byte] {
	return func(yield func(addr int, value byte) bool) {
		for _, st := range prog.Statements {
			for n, value := range st.Bytes {
				if !yield(st.Address+n, value) {
					return
				}
			}
		}
	}
}

// WriteLs8 writes the program in the .ls8 text format, annotating the first
// byte of each statement with its source.
func (prog *Program) WriteLs8(w io.Writer) (err error) {
	out := bufio.NewWriter(w)

	for _, st := range prog.Statements {
		for n, value := range st.Bytes {
			if n == 0 {
				_, err = fmt.Fprintf(out, "%08b # %s\n", value, strings.Join(st.Words, " "))
			} else {
				_, err = fmt.Fprintf(out, "%08b\n", value)
			}
			if err != nil {
				return
			}
		}
	}

	err = out.Flush()
	return
}
