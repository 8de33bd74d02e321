// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ezrec/ls8/cpu"
	"github.com/ezrec/ls8/emulator"
)

func init() {
	log.SetFlags(0)
	log.SetPrefix("ls8: ")
	log.SetOutput(os.Stderr)
}

// loadFile reads a program, assembling it if it is assembly source.
func loadFile(emu *emulator.Emulator, path string, defines []string, verbose bool) (err error) {
	inf, err := os.Open(path)
	if err != nil {
		return
	}
	defer inf.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".asm", ".s":
		asm := &cpu.Assembler{Verbose: verbose}
		for key, value := range emu.Defines() {
			asm.Predefine(key, value)
		}
		for _, define := range defines {
			key, value, ok := strings.Cut(define, "=")
			if !ok {
				value = "1"
			}
			asm.Predefine(key, value)
		}
		var prog *cpu.Program
		prog, err = asm.Parse(inf)
		if err != nil {
			return
		}
		emu.SetProgram(prog)
	default:
		emu.Image, err = cpu.Load(inf)
	}

	if err != nil {
		err = fmt.Errorf("%v: %w", path, err)
	}

	return
}

func main() {
	var verbose bool
	var defines []string

	rootCmd := &cobra.Command{
		Use:          "ls8",
		Short:        "LS-8 byte-code virtual machine",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose mode")
	rootCmd.PersistentFlags().StringArrayVarP(&defines, "define", "D", nil, "Assembler predefine NAME=VALUE")

	var maxTicks int
	var resetFlags bool

	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run an .ls8 program, or assemble and run an .asm program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			emu := emulator.NewEmulator()
			emu.Verbose = verbose
			emu.MaxTicks = maxTicks
			emu.Cpu.Output = cmd.OutOrStdout()
			if resetFlags {
				emu.Cpu.FlagPolicy = cpu.FLAG_POLICY_RESET
			}

			err = loadFile(emu, args[0], defines, verbose)
			if err != nil {
				return
			}

			err = emu.Reset()
			if err != nil {
				return
			}

			err = emu.Run()
			if err != nil {
				if verbose {
					log.Printf("state:\n%v", emu.Cpu)
				}
				return
			}

			return
		},
	}
	runCmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "Stop after this many instructions (0 = unlimited)")
	runCmd.Flags().BoolVar(&resetFlags, "reset-flags", false, "Clear all comparison flags before each CMP")

	var output string

	asmCmd := &cobra.Command{
		Use:   "asm FILE",
		Short: "Assemble a program into the .ls8 format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			emu := emulator.NewEmulator()

			err = loadFile(emu, args[0], defines, verbose)
			if err != nil {
				return
			}

			out := cmd.OutOrStdout()
			if len(output) != 0 && output != "-" {
				ouf, err := os.Create(output)
				if err != nil {
					return err
				}
				defer ouf.Close()
				out = ouf
			}

			if len(emu.Program.Statements) == 0 {
				// Already in .ls8 form; normalize it.
				prog := &cpu.Program{}
				for addr, code := range cpu.Disassemble(emu.Image) {
					prog.Statements = append(prog.Statements, cpu.Statement{
						Address: addr,
						Words:   []string{code.String()},
						Bytes:   code.Bytes(),
					})
				}
				return prog.WriteLs8(out)
			}

			return emu.Program.WriteLs8(out)
		},
	}
	asmCmd.Flags().StringVarP(&output, "output", "o", "-", "Output .ls8 file")

	disCmd := &cobra.Command{
		Use:   "dis FILE",
		Short: "Disassemble a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			emu := emulator.NewEmulator()

			err = loadFile(emu, args[0], defines, verbose)
			if err != nil {
				return
			}

			for addr, code := range cpu.Disassemble(emu.Image) {
				fmt.Fprintf(cmd.OutOrStdout(), "%02x: %v\n", addr, code)
			}

			return
		},
	}

	rootCmd.AddCommand(runCmd, asmCmd, disCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
