// Package harness provides a CP/M-flavored host for running classic 8080
// test ROMs (TST8080, 8080PRE, CPUTEST and friends) against the cpu
// package. Per the core's external interface contract, this is ordinary
// port I/O: a sentinel OUT at address 0x0000 signals end-of-test, and an
// IN followed by RET seeded at the BDOS entry point (0x0005) lets the
// guest's "CALL 5" convention invoke print-style services without the
// core knowing anything about CP/M.
package harness

import (
	"bytes"
	"fmt"

	"github.com/jmchacon/i8080/cpu"
	"github.com/jmchacon/i8080/memory"
)

const (
	// loadAddr is where CP/M .COM images are conventionally based.
	loadAddr = 0x0100
	// bdosEntry is the fixed address CP/M programs CALL to invoke BDOS.
	bdosEntry = 0x0005
	// warmBootEntry is where a CALL 0 / JMP 0 sends control on exit.
	warmBootEntry = 0x0000
	// sentinelPort is the single port number both sentinel stubs use.
	sentinelPort = 0x00

	bdosFuncPrintChar = 2
	bdosFuncPrintStr  = 9
)

// Harness wires a cpu.Chip to a flat memory bank preloaded with a CP/M
// .COM image, and implements io.Ports itself so it can interpret the
// guest's register state on the sentinel port reads/writes the way a real
// BDOS would.
type Harness struct {
	Chip *cpu.Chip
	Mem  *memory.Flat

	// Transcript accumulates everything the guest prints via BDOS
	// functions 2 and 9, so a test can assert on the ROM's banner text.
	Transcript bytes.Buffer

	done bool
}

// Load builds a Harness with img placed at loadAddr and the CPU's PC set
// there. Address 0x0000 is seeded with OUT 0,A (the end-of-test sentinel)
// and address 0x0005 with IN A,0 followed by RET (the BDOS-call stub);
// both are ordinary instructions executed by the normal dispatch loop, so
// the core itself never needs to know CP/M exists.
func Load(img []byte) (*Harness, error) {
	m := memory.NewFlat()
	m.LoadAt(loadAddr, img)
	m.Write(warmBootEntry, 0xD3)        // OUT
	m.Write(warmBootEntry+1, sentinelPort)
	m.Write(bdosEntry, 0xDB)            // IN
	m.Write(bdosEntry+1, sentinelPort)
	m.Write(bdosEntry+2, 0xC9) // RET

	h := &Harness{Mem: m}
	c, err := cpu.Init(&cpu.ChipDef{Mem: m, Ports: h})
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	c.PC = loadAddr
	c.SP = 0xFFFE
	h.Chip = c
	return h, nil
}

// Done reports whether the guest has executed the end-of-test sentinel.
func (h *Harness) Done() bool {
	return h.done
}

// Read implements io.Ports. It is invoked by the IN A,0 seeded at the
// BDOS entry point; it interprets register C the way real CP/M BDOS
// functions 2 and 9 do and returns a dummy byte, since the genuine BDOS
// call would leave some status value in A but test ROMs don't inspect it.
func (h *Harness) Read(port uint8) uint8 {
	if port != sentinelPort {
		return 0
	}
	switch h.Chip.C {
	case bdosFuncPrintChar:
		h.Transcript.WriteByte(h.Chip.E)
	case bdosFuncPrintStr:
		addr := h.Chip.GetDE()
		for {
			b := h.Mem.Read(addr)
			if b == '$' {
				break
			}
			h.Transcript.WriteByte(b)
			addr++
		}
	}
	return 0
}

// Write implements io.Ports. It is invoked by the OUT 0,A seeded at
// address 0x0000, which real test ROMs jump to in order to warm-boot back
// to CP/M; here that simply marks the run as finished.
func (h *Harness) Write(port uint8, val uint8) {
	if port == sentinelPort {
		h.done = true
	}
}

// Step advances the guest by exactly one instruction and reports whether
// the run should continue (false once Done() becomes true).
func (h *Harness) Step() (bool, error) {
	if h.done {
		return false, nil
	}
	if err := h.Chip.Step(); err != nil {
		return false, err
	}
	return !h.done, nil
}

// RunUntilDone steps the harness until the guest hits the end-of-test
// sentinel or the instruction budget is exhausted, returning an error only
// for a CPU dispatch failure (never for exhausting the budget, since
// that's the caller's signal a ROM hung).
func RunUntilDone(h *Harness, maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		more, err := h.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}
