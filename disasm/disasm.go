// Package disasm implements a disassembler for 8080 opcodes. It is a
// debug-only collaborator: nothing in the cpu package depends on it, the
// same way the teacher keeps opcode metadata for display out of its core
// and into a dedicated disassemble package.
package disasm

import (
	"fmt"

	"github.com/jmchacon/i8080/memory"
)

// Operand width in bytes beyond the opcode itself.
const (
	widthNone = iota
	widthImm8
	widthImm16
)

// Entry is one opcode's disassembly metadata: mnemonic, operand width, and
// base cycle cost. Modeled on a per-opcode metadata table, the same role
// played by an instruction catalog keyed by opcode byte.
type Entry struct {
	Mnemonic string
	Width    int
	Cycles   uint8
}

// Table is the full 256 entry opcode metadata table. Undocumented aliases
// are given their own Mnemonic string (suffixed "*") so a disassembly
// listing can flag them, even though cpu.Chip executes them identically to
// their documented sibling.
var Table = [256]Entry{
	0x00: {"NOP", widthNone, 4}, 0x01: {"LXI B,", widthImm16, 10}, 0x02: {"STAX B", widthNone, 7}, 0x03: {"INX B", widthNone, 5},
	0x04: {"INR B", widthNone, 5}, 0x05: {"DCR B", widthNone, 5}, 0x06: {"MVI B,", widthImm8, 7}, 0x07: {"RLC", widthNone, 4},
	0x08: {"NOP*", widthNone, 4}, 0x09: {"DAD B", widthNone, 10}, 0x0A: {"LDAX B", widthNone, 7}, 0x0B: {"DCX B", widthNone, 5},
	0x0C: {"INR C", widthNone, 5}, 0x0D: {"DCR C", widthNone, 5}, 0x0E: {"MVI C,", widthImm8, 7}, 0x0F: {"RRC", widthNone, 4},

	0x10: {"NOP*", widthNone, 4}, 0x11: {"LXI D,", widthImm16, 10}, 0x12: {"STAX D", widthNone, 7}, 0x13: {"INX D", widthNone, 5},
	0x14: {"INR D", widthNone, 5}, 0x15: {"DCR D", widthNone, 5}, 0x16: {"MVI D,", widthImm8, 7}, 0x17: {"RAL", widthNone, 4},
	0x18: {"NOP*", widthNone, 4}, 0x19: {"DAD D", widthNone, 10}, 0x1A: {"LDAX D", widthNone, 7}, 0x1B: {"DCX D", widthNone, 5},
	0x1C: {"INR E", widthNone, 5}, 0x1D: {"DCR E", widthNone, 5}, 0x1E: {"MVI E,", widthImm8, 7}, 0x1F: {"RAR", widthNone, 4},

	0x20: {"NOP*", widthNone, 4}, 0x21: {"LXI H,", widthImm16, 10}, 0x22: {"SHLD ", widthImm16, 16}, 0x23: {"INX H", widthNone, 5},
	0x24: {"INR H", widthNone, 5}, 0x25: {"DCR H", widthNone, 5}, 0x26: {"MVI H,", widthImm8, 7}, 0x27: {"DAA", widthNone, 4},
	0x28: {"NOP*", widthNone, 4}, 0x29: {"DAD H", widthNone, 10}, 0x2A: {"LHLD ", widthImm16, 16}, 0x2B: {"DCX H", widthNone, 5},
	0x2C: {"INR L", widthNone, 5}, 0x2D: {"DCR L", widthNone, 5}, 0x2E: {"MVI L,", widthImm8, 7}, 0x2F: {"CMA", widthNone, 4},

	0x30: {"NOP*", widthNone, 4}, 0x31: {"LXI SP,", widthImm16, 10}, 0x32: {"STA ", widthImm16, 13}, 0x33: {"INX SP", widthNone, 5},
	0x34: {"INR M", widthNone, 10}, 0x35: {"DCR M", widthNone, 10}, 0x36: {"MVI M,", widthImm8, 10}, 0x37: {"STC", widthNone, 4},
	0x38: {"NOP*", widthNone, 4}, 0x39: {"DAD SP", widthNone, 10}, 0x3A: {"LDA ", widthImm16, 13}, 0x3B: {"DCX SP", widthNone, 5},
	0x3C: {"INR A", widthNone, 5}, 0x3D: {"DCR A", widthNone, 5}, 0x3E: {"MVI A,", widthImm8, 7}, 0x3F: {"CMC", widthNone, 4},

	0xC0: {"RNZ", widthNone, 5}, 0xC1: {"POP B", widthNone, 10}, 0xC2: {"JNZ ", widthImm16, 10}, 0xC3: {"JMP ", widthImm16, 10},
	0xC4: {"CNZ ", widthImm16, 11}, 0xC5: {"PUSH B", widthNone, 11}, 0xC6: {"ADI ", widthImm8, 7}, 0xC7: {"RST 0", widthNone, 11},
	0xC8: {"RZ", widthNone, 5}, 0xC9: {"RET", widthNone, 10}, 0xCA: {"JZ ", widthImm16, 10}, 0xCB: {"JMP* ", widthImm16, 10},
	0xCC: {"CZ ", widthImm16, 11}, 0xCD: {"CALL ", widthImm16, 17}, 0xCE: {"ACI ", widthImm8, 7}, 0xCF: {"RST 1", widthNone, 11},

	0xD0: {"RNC", widthNone, 5}, 0xD1: {"POP D", widthNone, 10}, 0xD2: {"JNC ", widthImm16, 10}, 0xD3: {"OUT ", widthImm8, 10},
	0xD4: {"CNC ", widthImm16, 11}, 0xD5: {"PUSH D", widthNone, 11}, 0xD6: {"SUI ", widthImm8, 7}, 0xD7: {"RST 2", widthNone, 11},
	0xD8: {"RC", widthNone, 5}, 0xD9: {"RET*", widthNone, 10}, 0xDA: {"JC ", widthImm16, 10}, 0xDB: {"IN ", widthImm8, 10},
	0xDC: {"CC ", widthImm16, 11}, 0xDD: {"CALL* ", widthImm16, 17}, 0xDE: {"SBI ", widthImm8, 7}, 0xDF: {"RST 3", widthNone, 11},

	0xE0: {"RPO", widthNone, 5}, 0xE1: {"POP H", widthNone, 10}, 0xE2: {"JPO ", widthImm16, 10}, 0xE3: {"XTHL", widthNone, 18},
	0xE4: {"CPO ", widthImm16, 11}, 0xE5: {"PUSH H", widthNone, 11}, 0xE6: {"ANI ", widthImm8, 7}, 0xE7: {"RST 4", widthNone, 11},
	0xE8: {"RPE", widthNone, 5}, 0xE9: {"PCHL", widthNone, 5}, 0xEA: {"JPE ", widthImm16, 10}, 0xEB: {"XCHG", widthNone, 4},
	0xEC: {"CPE ", widthImm16, 11}, 0xED: {"CALL* ", widthImm16, 17}, 0xEE: {"XRI ", widthImm8, 7}, 0xEF: {"RST 5", widthNone, 11},

	0xF0: {"RP", widthNone, 5}, 0xF1: {"POP PSW", widthNone, 10}, 0xF2: {"JP ", widthImm16, 10}, 0xF3: {"DI", widthNone, 4},
	0xF4: {"CP ", widthImm16, 11}, 0xF5: {"PUSH PSW", widthNone, 11}, 0xF6: {"ORI ", widthImm8, 7}, 0xF7: {"RST 6", widthNone, 11},
	0xF8: {"RM", widthNone, 5}, 0xF9: {"SPHL", widthNone, 5}, 0xFA: {"JM ", widthImm16, 10}, 0xFB: {"EI", widthNone, 4},
	0xFC: {"CM ", widthImm16, 11}, 0xFD: {"CALL* ", widthImm16, 17}, 0xFE: {"CPI ", widthImm8, 7}, 0xFF: {"RST 7", widthNone, 11},
}

func init() {
	// Rows 0x40-0xBF (MOV/ALU) are mechanically regular; fill them in here
	// rather than repeating 128 nearly identical literals above.
	regs := [8]string{"B", "C", "D", "E", "H", "L", "M", "A"}
	for dst := 0; dst < 8; dst++ {
		for src := 0; src < 8; src++ {
			op := uint8(0x40 + dst*8 + src)
			if op == 0x76 {
				Table[op] = Entry{"HLT", widthNone, 7}
				continue
			}
			cycles := uint8(5)
			if dst == 6 || src == 6 {
				cycles = 7
			}
			Table[op] = Entry{fmt.Sprintf("MOV %s,%s", regs[dst], regs[src]), widthNone, cycles}
		}
	}
	alu := []string{"ADD", "ADC", "SUB", "SBB", "ANA", "XRA", "ORA", "CMP"}
	for g, mnem := range alu {
		for src := 0; src < 8; src++ {
			op := uint8(0x80 + g*8 + src)
			cycles := uint8(4)
			if src == 6 {
				cycles = 7
			}
			Table[op] = Entry{fmt.Sprintf("%s %s", mnem, regs[src]), widthNone, cycles}
		}
	}
}

// Step disassembles the instruction at pc, returning the formatted text and
// the number of bytes (1-3) the instruction occupies. It does not follow
// control flow: a JMP target is rendered as an operand, not chased.
func Step(pc uint16, m memory.Bank) (string, int) {
	op := m.Read(pc)
	e := Table[op]
	switch e.Width {
	case widthImm8:
		v := m.Read(pc + 1)
		return fmt.Sprintf("%s$%02X", e.Mnemonic, v), 2
	case widthImm16:
		lo := m.Read(pc + 1)
		hi := m.Read(pc + 2)
		return fmt.Sprintf("%s$%02X%02X", e.Mnemonic, hi, lo), 3
	default:
		return e.Mnemonic, 1
	}
}
