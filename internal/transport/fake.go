package transport

import "context"

// Fake is an in-memory Transport for unit tests. Each call to Read pops the
// next scripted response (or error) off Responses; Writes are recorded into
// Writes for assertions.
type Fake struct {
	Writes     [][]byte
	WriteErrs  []error // optional, scripted per-call like Responses
	Responses  []FakeResponse
	SetAddrErr error

	read  int
	write int
}

// FakeResponse scripts one Read call's outcome.
type FakeResponse struct {
	Bytes []byte
	Err   error
}

func (f *Fake) SetSlaveAddress(addr uint16, force bool) error {
	return f.SetAddrErr
}

func (f *Fake) Write(ctx context.Context, buf []byte) error {
	cp := append([]byte(nil), buf...)
	f.Writes = append(f.Writes, cp)
	if f.write < len(f.WriteErrs) {
		err := f.WriteErrs[f.write]
		f.write++
		return err
	}
	f.write++
	return nil
}

// Read honors mode the same way LinuxI2C does: ReadModeBlock pops one
// scripted response and copies it into buf in a single shot, while
// ReadModeBytewise treats each scripted response as a single underlying
// one-byte read, consuming entries one at a time until buf fills or a
// zero-length entry signals a short read (mirroring linux.go's
// read-one-byte-per-syscall loop).
func (f *Fake) Read(ctx context.Context, buf []byte, mode ReadMode) (int, error) {
	if mode == ReadModeBytewise {
		total := 0
		for total < len(buf) {
			if f.read >= len(f.Responses) {
				break
			}
			resp := f.Responses[f.read]
			f.read++
			if resp.Err != nil {
				return total, resp.Err
			}
			if len(resp.Bytes) == 0 {
				break
			}
			buf[total] = resp.Bytes[0]
			total++
		}
		return total, nil
	}

	if f.read >= len(f.Responses) {
		return 0, nil
	}
	resp := f.Responses[f.read]
	f.read++
	if resp.Err != nil {
		return 0, resp.Err
	}
	n := copy(buf, resp.Bytes)
	return n, nil
}

func (f *Fake) Close() error { return nil }
