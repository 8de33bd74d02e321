package cpu

import (
	"bufio"
	"io"
	"log"
	"strconv"
	"strings"
)

// Load parses a program in the .ls8 text format: one binary byte per line,
// blank lines ignored, and everything following a '#' treated as a comment.
func Load(input io.Reader) (data []byte, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	for scanner.Scan() {
		line = scanner.Text()
		lineno += 1

		text, _, _ := strings.Cut(line, "#")
		text = strings.TrimSpace(text)
		if len(text) == 0 {
			continue
		}

		var value uint64
		value, err = strconv.ParseUint(text, 2, 8)
		if err != nil {
			err = ErrParseBinary
			return
		}

		if len(data) == MEMORY_SIZE {
			err = ErrProgramSize
			return
		}

		data = append(data, byte(value))
	}

	err = scanner.Err()

	return
}

// LoadProgram parses an .ls8 program and places it into memory.
func (cpu *Cpu) LoadProgram(input io.Reader) (err error) {
	data, err := Load(input)
	if err != nil {
		return
	}

	if cpu.Verbose {
		log.Printf("cpu: parsed %d bytes", len(data))
	}

	err = cpu.LoadBytes(data)
	return
}
