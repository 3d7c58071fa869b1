// cpmrun loads an 8080 CP/M .COM image and either runs it to completion
// against the harness package, or disassembles it to stdout.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/jmchacon/i8080/disasm"
	"github.com/jmchacon/i8080/harness"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cpmrun",
		Short: "Run or disassemble 8080 CP/M .COM images",
	}

	var entry uint16
	var maxSteps int
	var trace bool

	runCmd := &cobra.Command{
		Use:   "run <file.com>",
		Short: "Load a .COM image and run it to completion under the CP/M BDOS shim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			h, err := harness.Load(img)
			if err != nil {
				return fmt.Errorf("initializing harness: %w", err)
			}
			if entry != 0 {
				h.Chip.PC = entry
			}
			for i := 0; i < maxSteps && !h.Done(); i++ {
				if trace {
					text, _ := disasm.Step(h.Chip.PC, h.Mem)
					fmt.Fprintf(os.Stderr, "%04X  %s\n", h.Chip.PC, text)
				}
				more, err := h.Step()
				if err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				if !more {
					break
				}
			}
			os.Stdout.Write(h.Transcript.Bytes())
			if !h.Done() {
				return fmt.Errorf("program did not complete within %d steps", maxSteps)
			}
			return nil
		},
	}
	runCmd.Flags().Uint16Var(&entry, "entry", 0, "override the entry point PC (default: 0x0100)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 50_000_000, "instruction budget before giving up on a hung program")
	runCmd.Flags().BoolVar(&trace, "trace", false, "print a disassembly trace to stderr while running")

	var disasmEntry uint16
	var disasmLen int
	disasmCmd := &cobra.Command{
		Use:   "disasm <file.com>",
		Short: "Disassemble a .COM image starting at its load address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			h, err := harness.Load(img)
			if err != nil {
				return fmt.Errorf("initializing harness: %w", err)
			}
			pc := uint16(0x0100)
			if disasmEntry != 0 {
				pc = disasmEntry
			}
			end := pc
			if disasmLen > 0 {
				end = pc + uint16(disasmLen)
			} else {
				end = pc + uint16(len(img))
			}
			for pc < end {
				text, n := disasm.Step(pc, h.Mem)
				fmt.Printf("%04X  %s\n", pc, text)
				pc += uint16(n)
			}
			return nil
		},
	}
	disasmCmd.Flags().Uint16Var(&disasmEntry, "entry", 0, "address to start disassembling from (default: 0x0100)")
	disasmCmd.Flags().IntVar(&disasmLen, "len", 0, "number of bytes to disassemble (default: whole image)")

	tuiCmd := &cobra.Command{
		Use:   "tui <file.com>",
		Short: "Interactively single-step a .COM image with a live register/trace view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}
			return runTUI(img)
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd, tuiCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("cpmrun: %v", err)
	}
}

// loadFile reads fn into memory. On platforms where it's available it
// mmaps the file read-only rather than copying it, falling back to a
// plain read elsewhere (or if the mmap call itself fails). A zero-length
// file yields a nil slice without any mmap or read.
func loadFile(fn string) ([]byte, error) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		return os.ReadFile(fn)
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return os.ReadFile(fn)
	}
	// Copy out of the mapping before returning: the harness keeps this
	// slice for the life of the run and we don't want to hold the file
	// descriptor's mapping open indefinitely.
	out := make([]byte, len(data))
	copy(out, data)
	if err := unix.Munmap(data); err != nil {
		log.Printf("munmap %s: %v", fn, err)
	}
	return out, nil
}
