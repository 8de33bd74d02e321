// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// Assembler is a single pass macro assembler for the LS-8.
type Assembler struct {
	Verbose   bool        // If set, verbosely logs the assembler actions.
	Statement []Statement // List of generated statements.

	predefine map[string]string   // Predefines
	Label     map[string]int      // Map of labels to addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	expansion int // Count of macro expansions, for local labels.
}

// Predefine defines a new equate or redefines an existing equate, applied at
// the start of every Parse.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// regMap is a map of register names to register indexes.
var regMap = map[string]byte{
	"r0": 0,
	"r1": 1,
	"r2": 2,
	"r3": 3,
	"r4": 4,
	"r5": 5,
	"r6": 6,
	"r7": 7,
}

var (
	reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reCharacter  = regexp.MustCompile(`'\\?[^']'`)
	reParen      = regexp.MustCompile(`\$\([^\$]*\)`)
)

// valueOf returns the byte value of a simple word.
// Negative values are stored as two's complement.
func (asm *Assembler) valueOf(word string) (value byte, err error) {
	if len(word) == 0 {
		err = ErrParseNumber(word)
		return
	}
	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}
	if len(word) == 0 {
		err = ErrParseNumber("~")
		return
	}
	if word[0] == '\'' {
		// Character quotes should have been expanded into
		// values in parseLine()
		err = ErrParseCharacter(word)
		return
	}
	v64, err := strconv.ParseInt(word, 0, 16)
	if err != nil {
		err = ErrParseNumber(word)
		return
	}

	if v64 < -128 || v64 > 0xff {
		err = ErrValueRange
		return
	}

	value = byte(v64)

	if invert {
		value = ^value
	}

	return
}

// register returns the register index for a word.
func (asm *Assembler) register(word string) (index byte, err error) {
	index, ok := regMap[strings.ToLower(word)]
	if ok {
		return
	}

	index, err = asm.valueOf(word)
	if err != nil || int(index) >= REGISTER_COUNT {
		err = ErrRegisterInvalid
		return
	}

	return
}

// immediate returns the value for a word, or the label it links to.
func (asm *Assembler) immediate(word string) (value byte, label string, err error) {
	if reIdentifier.MatchString(word) {
		label = word
		return
	}

	value, err = asm.valueOf(word)
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var value8 byte
		value8, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			err = nil
			continue
		}
		pred[key] = starlark.MakeInt(int(value8))
	}
	for key, addr := range asm.Label {
		pred[key] = starlark.MakeInt(addr)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	return
}

// splitWords splits a line on whitespace and commas.
func splitWords(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

// parseLine parses a single line as a statement.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do 'x' evaluations
	line = reCharacter.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do $() evaluations
	line = reParen.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%d", value)
	})
	if err != nil {
		return
	}

	words = splitWords(line)

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if strings.EqualFold(words[0], ".equ") {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]int, 16)
		}
		asm.Label[label] = asm.currentIp()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		// '@' prefixes labels local to this expansion.
		local := fmt.Sprintf("%v_%v_", name, asm.expansion)
		asm.expansion++

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", local)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentIp gets the address of the next generated byte.
func (asm *Assembler) currentIp() int {
	if len(asm.Statement) == 0 {
		return 0
	}

	last := asm.Statement[len(asm.Statement)-1]

	return last.Address + len(last.Bytes)
}

// Parse parses an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {

	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.expansion = 0
	asm.Statement = asm.Statement[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		text_comment, _, _ := strings.Cut(text, ";")
		line = strings.TrimSpace(text_comment)
		words := splitWords(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of labels.
	for n := range asm.Statement {
		st := &asm.Statement[n]

		for _, link := range st.Links {
			addr, ok := asm.Label[link.Label]
			if !ok {
				lineno = st.LineNo
				line = strings.Join(st.Words, " ")
				err = ErrLabelMissing(link.Label)
				return
			}
			if addr >= MEMORY_SIZE {
				lineno = st.LineNo
				line = strings.Join(st.Words, " ")
				err = ErrValueRange
				return
			}
			st.Bytes[link.Index] = byte(addr)
		}
	}

	prog = &Program{
		Statements: slices.Clone(asm.Statement),
	}

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var bytes []byte
	var links []Link

	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := slices.Clone(words)

	defer func() {
		if err != nil || len(bytes) == 0 {
			return
		}
		st := Statement{LineNo: lineno, Address: asm.currentIp(), Words: initial_words, Bytes: bytes, Links: links}
		if st.Address+len(st.Bytes) > MEMORY_SIZE {
			err = ErrProgramSize
			return
		}
		asm.Statement = append(asm.Statement, st)
	}()

	mnemonic := strings.ToLower(words[0])
	args := words[1:]

	switch mnemonic {
	case ".byte", "db":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, word := range args {
			var value byte
			var label string
			value, label, err = asm.immediate(word)
			if err != nil {
				return
			}
			if len(label) != 0 {
				links = append(links, Link{Index: len(bytes), Label: label})
			}
			bytes = append(bytes, value)
		}
		return
	}

	op, ok := LookupOpcode(mnemonic)
	if !ok {
		err = ErrInstructionInvalid
		return
	}

	kinds := op.OperandKinds()
	if len(args) < len(kinds) {
		err = ErrOpcodeValueMissing
		return
	}
	if len(args) > len(kinds) {
		err = ErrOpcodeExtraArgs
		return
	}

	bytes = append(bytes, byte(op))
	for n, kind := range kinds {
		var value byte
		switch kind {
		case OPERAND_REG:
			value, err = asm.register(args[n])
		case OPERAND_IMM:
			var label string
			value, label, err = asm.immediate(args[n])
			if len(label) != 0 {
				links = append(links, Link{Index: len(bytes), Label: label})
			}
		}
		if err != nil {
			bytes = nil
			return
		}
		bytes = append(bytes, value)
	}

	return
}
