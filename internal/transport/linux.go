package transport

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Linux I2C ioctl request numbers (linux/i2c-dev.h). These are not exposed
// by golang.org/x/sys/unix, so they are declared here the same way the
// teacher declares TIOCM ioctl constants it needs beyond what unix exports.
const (
	i2cSlave      = 0x0703
	i2cSlaveForce = 0x0706
)

// LinuxI2C is a Transport backed by a Linux /dev/i2c-N character device,
// addressed via ioctl the same way the teacher's ptt.go drives TIOCM serial
// control lines with unix.IoctlGetInt/IoctlSetInt against an opened fd —
// here retargeted from termios bits to the I2C_SLAVE family of ioctls.
type LinuxI2C struct {
	f *os.File
}

// OpenLinuxI2C opens the bus device node for bus (e.g. 2 for /dev/i2c-2).
func OpenLinuxI2C(bus int) (*LinuxI2C, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &LinuxI2C{f: f}, nil
}

func (l *LinuxI2C) SetSlaveAddress(addr uint16, force bool) error {
	req := uintptr(i2cSlave)
	if force {
		req = uintptr(i2cSlaveForce)
	}
	return unix.IoctlSetInt(int(l.f.Fd()), uint(req), int(addr))
}

func (l *LinuxI2C) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The destination byte is implicit in the bus hardware; write starts at
	// offset 1 of the packet (spec.md §4.2).
	_, err := l.f.Write(buf[1:])
	return err
}

func (l *LinuxI2C) Read(ctx context.Context, buf []byte, mode ReadMode) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch mode {
	case ReadModeBytewise:
		total := 0
		for total < len(buf) {
			n, err := l.f.Read(buf[total : total+1])
			if err != nil {
				return total, err
			}
			if n == 0 {
				break
			}
			total += n
		}
		return total, nil
	default:
		return l.f.Read(buf)
	}
}

func (l *LinuxI2C) Close() error {
	return l.f.Close()
}
