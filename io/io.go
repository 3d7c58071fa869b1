// Package io defines the basic interface for working with an 8080 8 bit
// I/O port space. Unlike the teacher's 6502-oriented io.Port8 (input only,
// since that modeled a 6532 PIA's latched input lines), the 8080's IN/OUT
// instructions are symmetric: a port is both read and written through the
// same interface.
package io

// Ports is the port-space interface the cpu package drives on IN/OUT.
// Implementations are expected to be total across the full 8 bit port
// space, same as memory.Bank.
type Ports interface {
	// Read returns the current byte available on the given port.
	Read(port uint8) uint8
	// Write sends val to the given port.
	Write(port uint8, val uint8)
}

// Null implements Ports as a sink: reads always return 0, writes are
// discarded. Useful as a default for hosts that have no actual port
// devices wired up.
type Null struct{}

// Read implements Ports.
func (Null) Read(uint8) uint8 { return 0 }

// Write implements Ports.
func (Null) Write(uint8, uint8) {}
