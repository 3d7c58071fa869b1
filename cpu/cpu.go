// Package cpu implements the Intel 8080 instruction set architecture and
// provides the methods needed to run the CPU and interface with it for
// emulation: register file, flags, addressing, the full 256-entry opcode
// dispatch, and cycle-accurate timing.
package cpu

import (
	"fmt"

	"github.com/jmchacon/i8080/io"
	"github.com/jmchacon/i8080/irq"
	"github.com/jmchacon/i8080/memory"
)

// PSW flag bit positions (MSB -> LSB: S Z 0 AC 0 P 1 CY).
const (
	pswS  = uint8(0x80)
	pswZ  = uint8(0x40)
	pswAC = uint8(0x10)
	pswP  = uint8(0x04)
	pswC1 = uint8(0x02) // Always reads as 1.
	pswCY = uint8(0x01)
)

// Register index encoding used by MOV/ALU/INR/DCR/MVI opcodes: the 8080
// packs a 3 bit field for B,C,D,E,H,L,M,A in that order into the opcode
// byte, with 6 meaning "the byte at the address in HL" rather than an
// actual register.
const (
	regB = uint8(iota)
	regC
	regD
	regE
	regH
	regL
	regM
	regA
)

// InvalidState represents a structurally invalid CPU precondition. Init
// returns it when the ChipDef or its memory bank is missing (a missing
// port space is not an error: it defaults to io.Null). Per spec this is a
// programming error, not a recoverable runtime condition.
type InvalidState struct {
	Reason string
}

// Error implements error.
func (e InvalidState) Error() string {
	return fmt.Sprintf("invalid cpu state: %s", e.Reason)
}

// UnhandledOpcode represents a dispatch miss. With an exhaustive 256-entry
// switch this should be unreachable; it exists so a future dispatch bug
// is reported rather than silently corrupting state.
type UnhandledOpcode struct {
	Opcode uint8
}

// Error implements error.
func (e UnhandledOpcode) Error() string {
	return fmt.Sprintf("unhandled opcode 0x%02X", e.Opcode)
}

// Chip is a single 8080 CPU instance. It holds no process-wide state; two
// Chips are fully independent and may be driven from different threads as
// long as each one (and the memory/ports it reaches through its callbacks)
// is touched by only one thread at a time.
type Chip struct {
	// Registers.
	A, B, C, D, E, H, L uint8
	PC, SP              uint16

	// Condition flags.
	S, Z, AC, P, CY bool
	// Interrupt enable latch.
	IE bool

	// HALT and interrupt state.
	halted           bool
	interruptPending bool
	interruptVector  uint8
	eiDelay          int // Countdown until a pending EI actually sets IE.

	// Cycles is the monotonically increasing count of clock cycles consumed.
	Cycles uint64

	mem   memory.Bank
	ports io.Ports
	irq   irq.Sender
}

// ChipDef configures a new Chip.
type ChipDef struct {
	// Mem is the memory bank the CPU reads/writes through. Required.
	Mem memory.Bank
	// Ports is the I/O port space driven by IN/OUT. If nil, io.Null{} is used.
	Ports io.Ports
	// Irq is an optional interrupt source polled at the top of every Step,
	// in addition to (not instead of) explicit calls to Interrupt.
	Irq irq.Sender
}

// Init creates a new Chip bound to the given host collaborators and
// returns it in power-on state.
func Init(def *ChipDef) (*Chip, error) {
	if def == nil || def.Mem == nil {
		return nil, InvalidState{"ChipDef.Mem must be set"}
	}
	p := &Chip{
		mem:   def.Mem,
		ports: def.Ports,
		irq:   def.Irq,
	}
	if p.ports == nil {
		p.ports = io.Null{}
	}
	p.PowerOn()
	return p, nil
}

// PowerOn resets the CPU to its initial state: all registers, flags,
// counters, and latches cleared. It does not re-bind callbacks.
func (c *Chip) PowerOn() {
	c.A, c.B, c.C, c.D, c.E, c.H, c.L = 0, 0, 0, 0, 0, 0, 0
	c.PC, c.SP = 0, 0
	c.S, c.Z, c.AC, c.P, c.CY = false, false, false, false, false
	c.IE = false
	c.halted = false
	c.interruptPending = false
	c.interruptVector = 0
	c.eiDelay = 0
	c.Cycles = 0
}

// Reset returns the CPU to its initial state without re-binding callbacks,
// identical to PowerOn. The 8080 has no dedicated RESET pin behavior beyond
// this (unlike the 6502's multi-cycle reset sequence reading a vector).
func (c *Chip) Reset() {
	c.PowerOn()
}

// Interrupt posts an interrupt request consisting of a single opcode
// (conventionally an RST n) to be serviced on a later Step. Must be called
// from the same goroutine that drives Step; the core does no locking.
func (c *Chip) Interrupt(opcode uint8) {
	c.interruptPending = true
	c.interruptVector = opcode
}

// Halted reports whether the CPU is currently stopped on a HLT instruction
// awaiting an interrupt.
func (c *Chip) Halted() bool {
	return c.halted
}

// GetBC returns the BC register pair as (B<<8)|C.
func (c *Chip) GetBC() uint16 { return uint16(c.B)<<8 | uint16(c.C) }

// SetBC sets B and C from a 16 bit value.
func (c *Chip) SetBC(v uint16) { c.B, c.C = uint8(v>>8), uint8(v) }

// GetDE returns the DE register pair as (D<<8)|E.
func (c *Chip) GetDE() uint16 { return uint16(c.D)<<8 | uint16(c.E) }

// SetDE sets D and E from a 16 bit value.
func (c *Chip) SetDE(v uint16) { c.D, c.E = uint8(v>>8), uint8(v) }

// GetHL returns the HL register pair as (H<<8)|L.
func (c *Chip) GetHL() uint16 { return uint16(c.H)<<8 | uint16(c.L) }

// SetHL sets H and L from a 16 bit value.
func (c *Chip) SetHL(v uint16) { c.H, c.L = uint8(v>>8), uint8(v) }

// PSW packs A (high byte) and the flag byte (low byte) into a single 16
// bit value, per the bit layout in spec §6: S Z 0 AC 0 P 1 CY.
func (c *Chip) PSW() uint16 {
	return uint16(c.A)<<8 | uint16(c.flagsByte())
}

func (c *Chip) flagsByte() uint8 {
	var f uint8 = pswC1
	if c.S {
		f |= pswS
	}
	if c.Z {
		f |= pswZ
	}
	if c.AC {
		f |= pswAC
	}
	if c.P {
		f |= pswP
	}
	if c.CY {
		f |= pswCY
	}
	return f
}

// SetPSW unpacks a 16 bit value into A and the five flags, ignoring and
// then re-forcing bits 1/3/5 of the flag byte per spec.
func (c *Chip) SetPSW(v uint16) {
	c.A = uint8(v >> 8)
	f := uint8(v)
	c.S = f&pswS != 0
	c.Z = f&pswZ != 0
	c.AC = f&pswAC != 0
	c.P = f&pswP != 0
	c.CY = f&pswCY != 0
}

// reg reads the register named by an 8080 3 bit register field (B,C,D,E,
// H,L,M,A in that order), dereferencing HL for M.
func (c *Chip) reg(idx uint8) uint8 {
	switch idx {
	case regB:
		return c.B
	case regC:
		return c.C
	case regD:
		return c.D
	case regE:
		return c.E
	case regH:
		return c.H
	case regL:
		return c.L
	case regM:
		return c.mem.Read(c.GetHL())
	default: // regA
		return c.A
	}
}

// setReg writes the register named by an 8080 3 bit register field,
// dereferencing HL for M.
func (c *Chip) setReg(idx uint8, v uint8) {
	switch idx {
	case regB:
		c.B = v
	case regC:
		c.C = v
	case regD:
		c.D = v
	case regE:
		c.E = v
	case regH:
		c.H = v
	case regL:
		c.L = v
	case regM:
		c.mem.Write(c.GetHL(), v)
	default: // regA
		c.A = v
	}
}

// fetch reads the byte at PC and advances PC.
func (c *Chip) fetch() uint8 {
	v := c.mem.Read(c.PC)
	c.PC++
	return v
}

// fetchWord reads the little-endian word at PC and advances PC by 2.
func (c *Chip) fetchWord() uint16 {
	lo := c.fetch()
	hi := c.fetch()
	return uint16(hi)<<8 | uint16(lo)
}

// push writes a 16 bit value onto the stack, little-endian, decrementing
// SP by 2 first so SP always ends pointing at the low byte just written.
func (c *Chip) push(v uint16) {
	c.SP -= 2
	memory.WriteWord(c.mem, c.SP, v)
}

// pop reads a 16 bit value off the stack and increments SP by 2.
func (c *Chip) pop() uint16 {
	v := memory.ReadWord(c.mem, c.SP)
	c.SP += 2
	return v
}

// baseCycles is the 256 entry table of an opcode's base (unconditional)
// cycle cost. Conditional call/return add +6 when taken on top of this,
// per the dispatch loop in Step.
var baseCycles = [256]uint8{
	// 0x00-0x0F
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4,
	// 0x10-0x1F
	4, 10, 7, 5, 5, 5, 7, 4, 4, 10, 7, 5, 5, 5, 7, 4,
	// 0x20-0x2F
	4, 10, 16, 5, 5, 5, 7, 4, 4, 10, 16, 5, 5, 5, 7, 4,
	// 0x30-0x3F
	4, 10, 13, 5, 10, 10, 10, 4, 4, 10, 13, 5, 5, 5, 7, 4,
	// 0x40-0x4F
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	// 0x50-0x5F
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	// 0x60-0x6F
	5, 5, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5, 5, 5, 7, 5,
	// 0x70-0x7F
	7, 7, 7, 7, 7, 7, 7, 7, 5, 5, 5, 5, 5, 5, 7, 5,
	// 0x80-0x8F
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	// 0x90-0x9F
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	// 0xA0-0xAF
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	// 0xB0-0xBF
	4, 4, 4, 4, 4, 4, 7, 4, 4, 4, 4, 4, 4, 4, 7, 4,
	// 0xC0-0xCF
	5, 10, 10, 10, 11, 11, 7, 11, 5, 10, 10, 10, 11, 17, 7, 11,
	// 0xD0-0xDF
	5, 10, 10, 10, 11, 11, 7, 11, 5, 10, 10, 10, 11, 17, 7, 11,
	// 0xE0-0xEF
	5, 10, 10, 18, 11, 11, 7, 11, 5, 5, 10, 4, 11, 17, 7, 11,
	// 0xF0-0xFF
	5, 10, 10, 4, 11, 11, 7, 11, 5, 5, 10, 4, 11, 17, 7, 11,
}

// Step executes exactly one instruction: it checks for a pending interrupt,
// fetches/decodes/dispatches an opcode (or the injected interrupt opcode),
// and advances Cycles by the opcode's tabulated cost plus any documented
// surcharge. It returns an error only for the "should be unreachable"
// conditions in spec §4.9/§7 (dispatch miss); a halted idle step changes
// nothing but Cycles.
func (c *Chip) Step() error {
	if c.irq != nil && !c.interruptPending && c.irq.Raised() {
		c.interruptPending = true
		c.interruptVector = c.irq.Opcode()
	}

	if c.halted && !(c.interruptPending && c.IE) {
		// Idle tick: equivalent to the time a NOP would take. A pending
		// interrupt only lifts HALT once it is actually accepted (IE set);
		// a disabled/unacknowledged one leaves the CPU sitting here.
		c.Cycles += 4
		return nil
	}

	serviced := false
	if c.interruptPending && c.IE {
		c.interruptPending = false
		c.IE = false
		c.halted = false
		serviced = true
	}

	var op uint8
	if serviced {
		op = c.interruptVector
	} else {
		op = c.fetch()
	}

	taken, err := c.dispatch(op)
	if err != nil {
		return err
	}

	cycles := uint64(baseCycles[op])
	if taken {
		cycles += 6
	}
	if serviced {
		cycles += 11
	}
	c.Cycles += cycles

	if c.eiDelay > 0 {
		c.eiDelay--
		if c.eiDelay == 0 {
			c.IE = true
		}
	}
	return nil
}

// dispatch executes the instruction named by op. The bool return is true
// only for conditional call/return instructions that were actually taken
// (used by Step to add the +6 cycle surcharge); every other instruction
// returns false here regardless of any internal branch taken/not-taken
// state, since unconditional transfers and conditional *jumps* carry no
// surcharge per spec §4.1/§4.5.
func (c *Chip) dispatch(op uint8) (bool, error) {
	switch op {
	case 0x00:
		// NOP
	case 0x01:
		// LXI B,d16
		c.SetBC(c.fetchWord())
	case 0x02:
		// STAX B
		c.mem.Write(c.GetBC(), c.A)
	case 0x03:
		// INX B
		c.SetBC(c.GetBC() + 1)
	case 0x04:
		// INR B
		c.B = c.inr(c.B)
	case 0x05:
		// DCR B
		c.B = c.dcr(c.B)
	case 0x06:
		// MVI B,d8
		c.B = c.fetch()
	case 0x07:
		// RLC
		c.rlc()
	case 0x08:
		// NOP (undocumented alias)
	case 0x09:
		// DAD B
		c.dad(c.GetBC())
	case 0x0A:
		// LDAX B
		c.A = c.mem.Read(c.GetBC())
	case 0x0B:
		// DCX B
		c.SetBC(c.GetBC() - 1)
	case 0x0C:
		// INR C
		c.C = c.inr(c.C)
	case 0x0D:
		// DCR C
		c.C = c.dcr(c.C)
	case 0x0E:
		// MVI C,d8
		c.C = c.fetch()
	case 0x0F:
		// RRC
		c.rrc()
	case 0x10:
		// NOP (undocumented alias)
	case 0x11:
		// LXI D,d16
		c.SetDE(c.fetchWord())
	case 0x12:
		// STAX D
		c.mem.Write(c.GetDE(), c.A)
	case 0x13:
		// INX D
		c.SetDE(c.GetDE() + 1)
	case 0x14:
		// INR D
		c.D = c.inr(c.D)
	case 0x15:
		// DCR D
		c.D = c.dcr(c.D)
	case 0x16:
		// MVI D,d8
		c.D = c.fetch()
	case 0x17:
		// RAL
		c.ral()
	case 0x18:
		// NOP (undocumented alias)
	case 0x19:
		// DAD D
		c.dad(c.GetDE())
	case 0x1A:
		// LDAX D
		c.A = c.mem.Read(c.GetDE())
	case 0x1B:
		// DCX D
		c.SetDE(c.GetDE() - 1)
	case 0x1C:
		// INR E
		c.E = c.inr(c.E)
	case 0x1D:
		// DCR E
		c.E = c.dcr(c.E)
	case 0x1E:
		// MVI E,d8
		c.E = c.fetch()
	case 0x1F:
		// RAR
		c.rar()
	case 0x20:
		// NOP (undocumented alias)
	case 0x21:
		// LXI H,d16
		c.SetHL(c.fetchWord())
	case 0x22:
		// SHLD a16
		memory.WriteWord(c.mem, c.fetchWord(), c.GetHL())
	case 0x23:
		// INX H
		c.SetHL(c.GetHL() + 1)
	case 0x24:
		// INR H
		c.H = c.inr(c.H)
	case 0x25:
		// DCR H
		c.H = c.dcr(c.H)
	case 0x26:
		// MVI H,d8
		c.H = c.fetch()
	case 0x27:
		// DAA
		c.daa()
	case 0x28:
		// NOP (undocumented alias)
	case 0x29:
		// DAD H
		c.dad(c.GetHL())
	case 0x2A:
		// LHLD a16
		c.SetHL(memory.ReadWord(c.mem, c.fetchWord()))
	case 0x2B:
		// DCX H
		c.SetHL(c.GetHL() - 1)
	case 0x2C:
		// INR L
		c.L = c.inr(c.L)
	case 0x2D:
		// DCR L
		c.L = c.dcr(c.L)
	case 0x2E:
		// MVI L,d8
		c.L = c.fetch()
	case 0x2F:
		// CMA
		c.A = ^c.A
	case 0x30:
		// NOP (undocumented alias)
	case 0x31:
		// LXI SP,d16
		c.SP = c.fetchWord()
	case 0x32:
		// STA a16
		c.mem.Write(c.fetchWord(), c.A)
	case 0x33:
		// INX SP
		c.SP++
	case 0x34:
		// INR M
		c.mem.Write(c.GetHL(), c.inr(c.mem.Read(c.GetHL())))
	case 0x35:
		// DCR M
		c.mem.Write(c.GetHL(), c.dcr(c.mem.Read(c.GetHL())))
	case 0x36:
		// MVI M,d8
		c.mem.Write(c.GetHL(), c.fetch())
	case 0x37:
		// STC
		c.CY = true
	case 0x38:
		// NOP (undocumented alias)
	case 0x39:
		// DAD SP
		c.dad(c.SP)
	case 0x3A:
		// LDA a16
		c.A = c.mem.Read(c.fetchWord())
	case 0x3B:
		// DCX SP
		c.SP--
	case 0x3C:
		// INR A
		c.A = c.inr(c.A)
	case 0x3D:
		// DCR A
		c.A = c.dcr(c.A)
	case 0x3E:
		// MVI A,d8
		c.A = c.fetch()
	case 0x3F:
		// CMC
		c.CY = !c.CY

	case 0x40:
		// MOV B,B
		c.setReg(0, c.reg(0))
	case 0x41:
		// MOV B,C
		c.setReg(0, c.reg(1))
	case 0x42:
		// MOV B,D
		c.setReg(0, c.reg(2))
	case 0x43:
		// MOV B,E
		c.setReg(0, c.reg(3))
	case 0x44:
		// MOV B,H
		c.setReg(0, c.reg(4))
	case 0x45:
		// MOV B,L
		c.setReg(0, c.reg(5))
	case 0x46:
		// MOV B,M
		c.setReg(0, c.reg(6))
	case 0x47:
		// MOV B,A
		c.setReg(0, c.reg(7))
	case 0x48:
		// MOV C,B
		c.setReg(1, c.reg(0))
	case 0x49:
		// MOV C,C
		c.setReg(1, c.reg(1))
	case 0x4A:
		// MOV C,D
		c.setReg(1, c.reg(2))
	case 0x4B:
		// MOV C,E
		c.setReg(1, c.reg(3))
	case 0x4C:
		// MOV C,H
		c.setReg(1, c.reg(4))
	case 0x4D:
		// MOV C,L
		c.setReg(1, c.reg(5))
	case 0x4E:
		// MOV C,M
		c.setReg(1, c.reg(6))
	case 0x4F:
		// MOV C,A
		c.setReg(1, c.reg(7))
	case 0x50:
		// MOV D,B
		c.setReg(2, c.reg(0))
	case 0x51:
		// MOV D,C
		c.setReg(2, c.reg(1))
	case 0x52:
		// MOV D,D
		c.setReg(2, c.reg(2))
	case 0x53:
		// MOV D,E
		c.setReg(2, c.reg(3))
	case 0x54:
		// MOV D,H
		c.setReg(2, c.reg(4))
	case 0x55:
		// MOV D,L
		c.setReg(2, c.reg(5))
	case 0x56:
		// MOV D,M
		c.setReg(2, c.reg(6))
	case 0x57:
		// MOV D,A
		c.setReg(2, c.reg(7))
	case 0x58:
		// MOV E,B
		c.setReg(3, c.reg(0))
	case 0x59:
		// MOV E,C
		c.setReg(3, c.reg(1))
	case 0x5A:
		// MOV E,D
		c.setReg(3, c.reg(2))
	case 0x5B:
		// MOV E,E
		c.setReg(3, c.reg(3))
	case 0x5C:
		// MOV E,H
		c.setReg(3, c.reg(4))
	case 0x5D:
		// MOV E,L
		c.setReg(3, c.reg(5))
	case 0x5E:
		// MOV E,M
		c.setReg(3, c.reg(6))
	case 0x5F:
		// MOV E,A
		c.setReg(3, c.reg(7))
	case 0x60:
		// MOV H,B
		c.setReg(4, c.reg(0))
	case 0x61:
		// MOV H,C
		c.setReg(4, c.reg(1))
	case 0x62:
		// MOV H,D
		c.setReg(4, c.reg(2))
	case 0x63:
		// MOV H,E
		c.setReg(4, c.reg(3))
	case 0x64:
		// MOV H,H
		c.setReg(4, c.reg(4))
	case 0x65:
		// MOV H,L
		c.setReg(4, c.reg(5))
	case 0x66:
		// MOV H,M
		c.setReg(4, c.reg(6))
	case 0x67:
		// MOV H,A
		c.setReg(4, c.reg(7))
	case 0x68:
		// MOV L,B
		c.setReg(5, c.reg(0))
	case 0x69:
		// MOV L,C
		c.setReg(5, c.reg(1))
	case 0x6A:
		// MOV L,D
		c.setReg(5, c.reg(2))
	case 0x6B:
		// MOV L,E
		c.setReg(5, c.reg(3))
	case 0x6C:
		// MOV L,H
		c.setReg(5, c.reg(4))
	case 0x6D:
		// MOV L,L
		c.setReg(5, c.reg(5))
	case 0x6E:
		// MOV L,M
		c.setReg(5, c.reg(6))
	case 0x6F:
		// MOV L,A
		c.setReg(5, c.reg(7))
	case 0x70:
		// MOV M,B
		c.setReg(6, c.reg(0))
	case 0x71:
		// MOV M,C
		c.setReg(6, c.reg(1))
	case 0x72:
		// MOV M,D
		c.setReg(6, c.reg(2))
	case 0x73:
		// MOV M,E
		c.setReg(6, c.reg(3))
	case 0x74:
		// MOV M,H
		c.setReg(6, c.reg(4))
	case 0x75:
		// MOV M,L
		c.setReg(6, c.reg(5))
	case 0x76:
		// HLT. PC is left on the HLT opcode itself while halted.
		c.PC--
		c.halted = true
	case 0x77:
		// MOV M,A
		c.setReg(6, c.reg(7))
	case 0x78:
		// MOV A,B
		c.setReg(7, c.reg(0))
	case 0x79:
		// MOV A,C
		c.setReg(7, c.reg(1))
	case 0x7A:
		// MOV A,D
		c.setReg(7, c.reg(2))
	case 0x7B:
		// MOV A,E
		c.setReg(7, c.reg(3))
	case 0x7C:
		// MOV A,H
		c.setReg(7, c.reg(4))
	case 0x7D:
		// MOV A,L
		c.setReg(7, c.reg(5))
	case 0x7E:
		// MOV A,M
		c.setReg(7, c.reg(6))
	case 0x7F:
		// MOV A,A
		c.setReg(7, c.reg(7))

	case 0x80:
		// ADD B
		c.iAdd(c.reg(0))
	case 0x81:
		// ADD C
		c.iAdd(c.reg(1))
	case 0x82:
		// ADD D
		c.iAdd(c.reg(2))
	case 0x83:
		// ADD E
		c.iAdd(c.reg(3))
	case 0x84:
		// ADD H
		c.iAdd(c.reg(4))
	case 0x85:
		// ADD L
		c.iAdd(c.reg(5))
	case 0x86:
		// ADD M
		c.iAdd(c.reg(6))
	case 0x87:
		// ADD A
		c.iAdd(c.reg(7))
	case 0x88:
		// ADC B
		c.iAdc(c.reg(0))
	case 0x89:
		// ADC C
		c.iAdc(c.reg(1))
	case 0x8A:
		// ADC D
		c.iAdc(c.reg(2))
	case 0x8B:
		// ADC E
		c.iAdc(c.reg(3))
	case 0x8C:
		// ADC H
		c.iAdc(c.reg(4))
	case 0x8D:
		// ADC L
		c.iAdc(c.reg(5))
	case 0x8E:
		// ADC M
		c.iAdc(c.reg(6))
	case 0x8F:
		// ADC A
		c.iAdc(c.reg(7))
	case 0x90:
		// SUB B
		c.iSub(c.reg(0))
	case 0x91:
		// SUB C
		c.iSub(c.reg(1))
	case 0x92:
		// SUB D
		c.iSub(c.reg(2))
	case 0x93:
		// SUB E
		c.iSub(c.reg(3))
	case 0x94:
		// SUB H
		c.iSub(c.reg(4))
	case 0x95:
		// SUB L
		c.iSub(c.reg(5))
	case 0x96:
		// SUB M
		c.iSub(c.reg(6))
	case 0x97:
		// SUB A
		c.iSub(c.reg(7))
	case 0x98:
		// SBB B
		c.iSbb(c.reg(0))
	case 0x99:
		// SBB C
		c.iSbb(c.reg(1))
	case 0x9A:
		// SBB D
		c.iSbb(c.reg(2))
	case 0x9B:
		// SBB E
		c.iSbb(c.reg(3))
	case 0x9C:
		// SBB H
		c.iSbb(c.reg(4))
	case 0x9D:
		// SBB L
		c.iSbb(c.reg(5))
	case 0x9E:
		// SBB M
		c.iSbb(c.reg(6))
	case 0x9F:
		// SBB A
		c.iSbb(c.reg(7))
	case 0xA0:
		// ANA B
		c.iAna(c.reg(0))
	case 0xA1:
		// ANA C
		c.iAna(c.reg(1))
	case 0xA2:
		// ANA D
		c.iAna(c.reg(2))
	case 0xA3:
		// ANA E
		c.iAna(c.reg(3))
	case 0xA4:
		// ANA H
		c.iAna(c.reg(4))
	case 0xA5:
		// ANA L
		c.iAna(c.reg(5))
	case 0xA6:
		// ANA M
		c.iAna(c.reg(6))
	case 0xA7:
		// ANA A
		c.iAna(c.reg(7))
	case 0xA8:
		// XRA B
		c.iXra(c.reg(0))
	case 0xA9:
		// XRA C
		c.iXra(c.reg(1))
	case 0xAA:
		// XRA D
		c.iXra(c.reg(2))
	case 0xAB:
		// XRA E
		c.iXra(c.reg(3))
	case 0xAC:
		// XRA H
		c.iXra(c.reg(4))
	case 0xAD:
		// XRA L
		c.iXra(c.reg(5))
	case 0xAE:
		// XRA M
		c.iXra(c.reg(6))
	case 0xAF:
		// XRA A
		c.iXra(c.reg(7))
	case 0xB0:
		// ORA B
		c.iOra(c.reg(0))
	case 0xB1:
		// ORA C
		c.iOra(c.reg(1))
	case 0xB2:
		// ORA D
		c.iOra(c.reg(2))
	case 0xB3:
		// ORA E
		c.iOra(c.reg(3))
	case 0xB4:
		// ORA H
		c.iOra(c.reg(4))
	case 0xB5:
		// ORA L
		c.iOra(c.reg(5))
	case 0xB6:
		// ORA M
		c.iOra(c.reg(6))
	case 0xB7:
		// ORA A
		c.iOra(c.reg(7))
	case 0xB8:
		// CMP B
		c.iCmp(c.reg(0))
	case 0xB9:
		// CMP C
		c.iCmp(c.reg(1))
	case 0xBA:
		// CMP D
		c.iCmp(c.reg(2))
	case 0xBB:
		// CMP E
		c.iCmp(c.reg(3))
	case 0xBC:
		// CMP H
		c.iCmp(c.reg(4))
	case 0xBD:
		// CMP L
		c.iCmp(c.reg(5))
	case 0xBE:
		// CMP M
		c.iCmp(c.reg(6))
	case 0xBF:
		// CMP A
		c.iCmp(c.reg(7))

	case 0xC0:
		// RNZ
		return c.condRet(!c.Z), nil
	case 0xC1:
		// POP B
		c.SetBC(c.pop())
	case 0xC2:
		// JNZ a16
		c.condJmp(!c.Z)
	case 0xC3:
		// JMP a16
		c.condJmp(true)
	case 0xC4:
		// CNZ a16
		return c.condCall(!c.Z), nil
	case 0xC5:
		// PUSH B
		c.push(c.GetBC())
	case 0xC6:
		// ADI d8
		c.iAdd(c.fetch())
	case 0xC7:
		// RST 0
		c.rst(0)
	case 0xC8:
		// RZ
		return c.condRet(c.Z), nil
	case 0xC9:
		// RET
		c.PC = c.pop()
	case 0xCA:
		// JZ a16
		c.condJmp(c.Z)
	case 0xCB:
		// JMP a16 (undocumented alias)
		c.condJmp(true)
	case 0xCC:
		// CZ a16
		return c.condCall(c.Z), nil
	case 0xCD:
		// CALL a16
		c.call()
	case 0xCE:
		// ACI d8
		c.iAdc(c.fetch())
	case 0xCF:
		// RST 1
		c.rst(1)
	case 0xD0:
		// RNC
		return c.condRet(!c.CY), nil
	case 0xD1:
		// POP D
		c.SetDE(c.pop())
	case 0xD2:
		// JNC a16
		c.condJmp(!c.CY)
	case 0xD3:
		// OUT p
		c.ports.Write(c.fetch(), c.A)
	case 0xD4:
		// CNC a16
		return c.condCall(!c.CY), nil
	case 0xD5:
		// PUSH D
		c.push(c.GetDE())
	case 0xD6:
		// SUI d8
		c.iSub(c.fetch())
	case 0xD7:
		// RST 2
		c.rst(2)
	case 0xD8:
		// RC
		return c.condRet(c.CY), nil
	case 0xD9:
		// RET (undocumented alias)
		c.PC = c.pop()
	case 0xDA:
		// JC a16
		c.condJmp(c.CY)
	case 0xDB:
		// IN p
		c.A = c.ports.Read(c.fetch())
	case 0xDC:
		// CC a16
		return c.condCall(c.CY), nil
	case 0xDD:
		// CALL a16 (undocumented alias)
		c.call()
	case 0xDE:
		// SBI d8
		c.iSbb(c.fetch())
	case 0xDF:
		// RST 3
		c.rst(3)
	case 0xE0:
		// RPO
		return c.condRet(!c.P), nil
	case 0xE1:
		// POP H
		c.SetHL(c.pop())
	case 0xE2:
		// JPO a16
		c.condJmp(!c.P)
	case 0xE3:
		// XTHL
		top := memory.ReadWord(c.mem, c.SP)
		memory.WriteWord(c.mem, c.SP, c.GetHL())
		c.SetHL(top)
	case 0xE4:
		// CPO a16
		return c.condCall(!c.P), nil
	case 0xE5:
		// PUSH H
		c.push(c.GetHL())
	case 0xE6:
		// ANI d8
		c.iAna(c.fetch())
	case 0xE7:
		// RST 4
		c.rst(4)
	case 0xE8:
		// RPE
		return c.condRet(c.P), nil
	case 0xE9:
		// PCHL
		c.PC = c.GetHL()
	case 0xEA:
		// JPE a16
		c.condJmp(c.P)
	case 0xEB:
		// XCHG
		de := c.GetDE()
		c.SetDE(c.GetHL())
		c.SetHL(de)
	case 0xEC:
		// CPE a16
		return c.condCall(c.P), nil
	case 0xED:
		// CALL a16 (undocumented alias)
		c.call()
	case 0xEE:
		// XRI d8
		c.iXra(c.fetch())
	case 0xEF:
		// RST 5
		c.rst(5)
	case 0xF0:
		// RP
		return c.condRet(!c.S), nil
	case 0xF1:
		// POP PSW
		c.SetPSW(c.pop())
	case 0xF2:
		// JP a16
		c.condJmp(!c.S)
	case 0xF3:
		// DI
		c.IE = false
	case 0xF4:
		// CP a16
		return c.condCall(!c.S), nil
	case 0xF5:
		// PUSH PSW
		c.push(c.PSW())
	case 0xF6:
		// ORI d8
		c.iOra(c.fetch())
	case 0xF7:
		// RST 6
		c.rst(6)
	case 0xF8:
		// RM
		return c.condRet(c.S), nil
	case 0xF9:
		// SPHL
		c.SP = c.GetHL()
	case 0xFA:
		// JM a16
		c.condJmp(c.S)
	case 0xFB:
		// EI. The enable itself is deferred: IE only becomes true after
		// the instruction following this one completes (see Step).
		c.eiDelay = 2
	case 0xFC:
		// CM a16
		return c.condCall(c.S), nil
	case 0xFD:
		// CALL a16 (undocumented alias)
		c.call()
	case 0xFE:
		// CPI d8
		c.iCmp(c.fetch())
	case 0xFF:
		// RST 7
		c.rst(7)
	default:
		return false, UnhandledOpcode{op}
	}
	return false, nil
}

// condJmp always consumes the 16 bit operand and transfers control to it
// only if cond holds, per spec §4.5.
func (c *Chip) condJmp(cond bool) {
	addr := c.fetchWord()
	if cond {
		c.PC = addr
	}
}

// call implements the unconditional CALL a16 and its three undocumented
// aliases: push the return address and transfer control. baseCycles[op]
// already carries CALL's full 17-cycle cost, so unlike condCall this never
// reports a taken surcharge to Step.
func (c *Chip) call() {
	addr := c.fetchWord()
	c.push(c.PC)
	c.PC = addr
}

// condCall always consumes the 16 bit operand; if cond holds it pushes the
// return address and transfers control, returning true so Step can apply
// the +6 taken surcharge. Only the genuinely conditional CALL opcodes
// (CNZ/CZ/CNC/CC/CPO/CPE/CP/CM) use this — the unconditional CALL and its
// aliases use call() instead, since CALL carries no surcharge.
func (c *Chip) condCall(cond bool) bool {
	addr := c.fetchWord()
	if !cond {
		return false
	}
	c.push(c.PC)
	c.PC = addr
	return true
}

// condRet returns from the current subroutine only if cond holds,
// returning true so Step can apply the +6 taken surcharge.
func (c *Chip) condRet(cond bool) bool {
	if !cond {
		return false
	}
	c.PC = c.pop()
	return true
}

// rst acts as CALL to address n*8.
func (c *Chip) rst(n uint8) {
	c.push(c.PC)
	c.PC = uint16(n) * 8
}

// parityEven reports whether v has an even number of 1 bits.
func parityEven(v uint8) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// setSZP sets the S, Z, and P flags from an 8 bit result, as every
// flag-setting ALU operation does.
func (c *Chip) setSZP(v uint8) {
	c.S = v&0x80 != 0
	c.Z = v == 0
	c.P = parityEven(v)
}

// iAdd implements ADD/ADI: A := A + v.
func (c *Chip) iAdd(v uint8) {
	c.A = c.add(c.A, v, false)
}

// iAdc implements ADC/ACI: A := A + v + CY.
func (c *Chip) iAdc(v uint8) {
	c.A = c.add(c.A, v, c.CY)
}

// add computes a+b+carryIn on a widened intermediate, setting CY/AC/S/Z/P
// per spec §4.2, and returns the 8 bit result.
func (c *Chip) add(a, b uint8, carryIn bool) uint8 {
	var cin uint16
	if carryIn {
		cin = 1
	}
	r := uint16(a) + uint16(b) + cin
	res := uint8(r)
	c.CY = r&0x100 != 0
	c.AC = (a^b^res)&0x10 != 0
	c.setSZP(res)
	return res
}

// iSub implements SUB/SUI: A := A - v.
func (c *Chip) iSub(v uint8) {
	c.A = c.sub(c.A, v, false)
}

// iSbb implements SBB/SBI: A := A - v - CY.
func (c *Chip) iSbb(v uint8) {
	c.A = c.sub(c.A, v, c.CY)
}

// sub computes a-b-borrowIn on a widened signed intermediate, setting
// CY/AC/S/Z/P per spec §4.2, and returns the 8 bit result.
func (c *Chip) sub(a, b uint8, borrowIn bool) uint8 {
	var bin int16
	if borrowIn {
		bin = 1
	}
	r := int16(a) - int16(b) - bin
	res := uint8(r)
	c.CY = r&0x100 != 0
	c.AC = !((a^res^b)&0x10 != 0)
	c.setSZP(res)
	return res
}

// iCmp implements CMP/CPI: computes A-v like SUB but discards the result.
func (c *Chip) iCmp(v uint8) {
	c.sub(c.A, v, false)
}

// inr implements INR: like adding 1, but CY is left untouched and AC
// reflects only whether the low nibble wrapped to 0.
func (c *Chip) inr(v uint8) uint8 {
	res := v + 1
	c.AC = res&0x0F == 0
	c.setSZP(res)
	return res
}

// dcr implements DCR: like subtracting 1, but CY is left untouched and AC
// reflects whether the low nibble is anything other than 0xF after the
// decrement.
func (c *Chip) dcr(v uint8) uint8 {
	res := v - 1
	c.AC = res&0x0F != 0x0F
	c.setSZP(res)
	return res
}

// iAna implements ANA/ANI. AC is set from bit 3 of (a|b), the 8080's
// documented (if unusual) half-carry behavior for logical AND; CY clears.
func (c *Chip) iAna(v uint8) {
	res := c.A & v
	c.AC = (c.A|v)&0x08 != 0
	c.CY = false
	c.setSZP(res)
	c.A = res
}

// iXra implements XRA/XRI. CY and AC both clear.
func (c *Chip) iXra(v uint8) {
	res := c.A ^ v
	c.CY = false
	c.AC = false
	c.setSZP(res)
	c.A = res
}

// iOra implements ORA/ORI. CY and AC both clear.
func (c *Chip) iOra(v uint8) {
	res := c.A | v
	c.CY = false
	c.AC = false
	c.setSZP(res)
	c.A = res
}

// dad implements DAD: HL := HL + word mod 2^16, CY set from the carry out
// of bit 15. No other flag is touched.
func (c *Chip) dad(word uint16) {
	r := uint32(c.GetHL()) + uint32(word)
	c.CY = r&0x10000 != 0
	c.SetHL(uint16(r))
}

// rlc rotates A left circularly through CY: CY := bit 7, A := (A<<1)|old bit 7.
func (c *Chip) rlc() {
	bit7 := c.A & 0x80
	c.CY = bit7 != 0
	c.A = c.A<<1 | bit7>>7
}

// rrc rotates A right circularly through CY: CY := bit 0, A := (A>>1)|old bit0<<7.
func (c *Chip) rrc() {
	bit0 := c.A & 0x01
	c.CY = bit0 != 0
	c.A = c.A>>1 | bit0<<7
}

// ral rotates A left through CY: new CY := bit 7, A := (A<<1)|old CY.
func (c *Chip) ral() {
	bit7 := c.A & 0x80
	var cin uint8
	if c.CY {
		cin = 1
	}
	c.A = c.A<<1 | cin
	c.CY = bit7 != 0
}

// rar rotates A right through CY: new CY := bit 0, A := (A>>1)|old CY<<7.
func (c *Chip) rar() {
	bit0 := c.A & 0x01
	var cin uint8
	if c.CY {
		cin = 0x80
	}
	c.A = c.A>>1 | cin
	c.CY = bit0 != 0
}

// daa implements decimal adjust of A per spec §4.2, matching the layered
// adjustment used by superzazu/8080 (see original_source/i8080.c) and
// verified against CPUTEST/8080EXM.
func (c *Chip) daa() {
	lsb := c.A & 0x0F
	msb := c.A >> 4
	var add uint8
	cy := c.CY
	if c.AC || lsb > 9 {
		add += 0x06
	}
	if c.CY || msb > 9 || (msb >= 9 && lsb > 9) {
		add += 0x60
		cy = true
	}
	c.A = c.add(c.A, add, false)
	c.CY = cy
}
