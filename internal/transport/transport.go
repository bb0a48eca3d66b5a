// Package transport implements the raw write/read primitives against an
// opened I2C bus handle (spec.md §4.2): a capability set of
// {write, read, set_addr} behind an interface, so the engine above it is
// agnostic to the underlying OS transport (spec.md §9, "polymorphic
// transports").
package transport

import "context"

// SlaveAddress is the fixed DDC/CI monitor slave address on the bus.
const SlaveAddress = 0x37

// ReadMode selects between the two read paths spec.md §4.2 requires exist:
// a single-byte-at-a-time read and a block read. Which one a given build
// uses is fixed by configuration, but both must be exercised by tests.
type ReadMode int

const (
	ReadModeBlock ReadMode = iota
	ReadModeBytewise
)

// Transport is the capability set the single-exchange engine drives a bus
// transaction through.
type Transport interface {
	// SetSlaveAddress pre-sets the slave address the next Write/Read target.
	// force requests the forceable ioctl form as a fallback when the normal
	// form fails (e.g. -EBUSY), per spec.md §4.2.
	SetSlaveAddress(addr uint16, force bool) error

	// Write writes buf starting at offset 1 (the destination byte is
	// implicit in the bus hardware) to the bus at the previously-set slave
	// address.
	Write(ctx context.Context, buf []byte) error

	// Read reads up to len(buf) bytes of the response into buf, using mode
	// to select the bytewise vs. block read path. It returns the number of
	// bytes actually read.
	Read(ctx context.Context, buf []byte, mode ReadMode) (int, error)

	// Close releases the underlying bus handle.
	Close() error
}
