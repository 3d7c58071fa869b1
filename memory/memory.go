// Package memory defines the basic interfaces for working with an 8080
// byte-addressed 16 bit memory map. The core only ever talks to a Bank;
// how the 64K of address space is actually backed (flat RAM, banked ROM,
// memory-mapped video, CP/M's TPA layout) is the host's business.
package memory

// Bank is the memory interface the cpu package reads and writes through.
// Implementations are expected to be total: every address in 0x0000-0xFFFF
// must return something on Read and accept a Write without panicking.
type Bank interface {
	// Read returns the byte stored at addr.
	Read(addr uint16) uint8
	// Write stores val at addr. For read-only regions this is simply a
	// silent no-op, matching real ROM behavior.
	Write(addr uint16, val uint8)
	// PowerOn resets the bank to its initial contents.
	PowerOn()
}

// Flat implements Bank as a single contiguous 64K array, which is all a
// bare 8080 system (no bank switching, no memory-mapped peripherals) ever
// needs.
type Flat struct {
	ram [1 << 16]uint8
}

// NewFlat returns a zeroed 64K memory bank.
func NewFlat() *Flat {
	f := &Flat{}
	f.PowerOn()
	return f
}

// Read implements Bank.
func (f *Flat) Read(addr uint16) uint8 {
	return f.ram[addr]
}

// Write implements Bank.
func (f *Flat) Write(addr uint16, val uint8) {
	f.ram[addr] = val
}

// PowerOn implements Bank. Unlike a NMOS 6502's RAM, which powers on to
// unpredictable garbage, this zeroes the array: CP/M test ROMs rely on the
// low-memory BDOS-intercept stubs (see harness package) being in a known
// state and on unused RAM reading as zero, not on emulating power-on noise.
func (f *Flat) PowerOn() {
	for i := range f.ram {
		f.ram[i] = 0
	}
}

// LoadAt copies img into the bank starting at addr, wrapping per Bank's
// normal addr semantics if it runs off the top of the address space.
func (f *Flat) LoadAt(addr uint16, img []byte) {
	for _, b := range img {
		f.ram[addr] = b
		addr++
	}
}

// ReadWord returns the little-endian 16 bit word at addr: low byte at addr,
// high byte at addr+1.
func ReadWord(b Bank, addr uint16) uint16 {
	lo := b.Read(addr)
	hi := b.Read(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

// WriteWord stores val little-endian at addr: low byte at addr, high byte
// at addr+1.
func WriteWord(b Bank, addr uint16, val uint16) {
	b.Write(addr, uint8(val))
	b.Write(addr+1, uint8(val>>8))
}
