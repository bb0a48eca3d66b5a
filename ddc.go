// Package ddc is the public facade wiring the packet codec, transport,
// single-exchange engine, retry controller, dynamic sleep adjustment, and
// display-lock registry into the small set of operations a caller needs:
// open a display, read/write its VCP features, read its capabilities
// string, and read/write table features.
package ddc

import (
	"context"
	"fmt"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"github.com/ddcio/ddcio/internal/ddcerr"
	"github.com/ddcio/ddcio/internal/displock"
	"github.com/ddcio/ddcio/internal/dsa"
	"github.com/ddcio/ddcio/internal/exchange"
	"github.com/ddcio/ddcio/internal/multipart"
	"github.com/ddcio/ddcio/internal/retry"
	"github.com/ddcio/ddcio/internal/transport"
	"github.com/ddcio/ddcio/internal/wire"
)

// threadSeq hands out the caller tokens displock.Acquire uses to tell
// callers apart. A real thread identity is not observable from Go, so
// Hub.Open mints a fresh token from this package-wide counter on every call,
// the same way the teacher mints connection ids in server.go. As a result
// Hub.Open never reports ddcerr.AlreadyOpen: a second Open of a bus that is
// still held fails with ddcerr.Locked, or waits when OpenOptions.Wait is set.
var threadSeq uint64

// NextThreadToken returns a fresh token identifying "this caller" to the
// display-lock registry.
func NextThreadToken() uint64 {
	return atomic.AddUint64(&threadSeq, 1)
}

// Hub owns the process-wide shared state: the display-lock registry and
// the per-bus DSA tables. One Hub per process is normal; tests construct
// their own to avoid cross-test interference.
type Hub struct {
	Locks *displock.Registry
	DSA   *dsa.Service
	Stats *retry.Stats
	Log   *charmlog.Logger
}

// NewHub constructs a Hub with fresh, empty shared state and the default
// per-kind max-tries settings.
func NewHub(log *charmlog.Logger) *Hub {
	return &Hub{
		Locks: displock.NewRegistry(),
		DSA:   dsa.NewService(nil),
		Stats: retry.NewStats(defaultMaxTries()),
		Log:   log,
	}
}

func defaultMaxTries() map[retry.OpKind]int {
	return map[retry.OpKind]int{
		retry.OpWriteOnly:       7,
		retry.OpWriteRead:       4,
		retry.OpMultiPartRead:   4,
		retry.OpMultiPartWrite:  4,
	}
}

// OpenOptions configures Open. Transport and ReadMode are injectable so
// tests can drive a *transport.Fake instead of real hardware.
type OpenOptions struct {
	Transport                     transport.Transport // nil: open /dev/i2c-<Bus>
	ReadMode                      transport.ReadMode
	MaxRead                       int
	Wait                          bool // block if another caller holds this bus
	MonitorUsesNullForUnsupported bool
}

// Display is one opened, locked DDC/CI connection to a monitor's bus.
type Display struct {
	hub    *Hub
	bus    int
	handle *displock.Handle
	xport  transport.Transport
	engine *exchange.Engine
	ctrl   *retry.Controller
}

// Open acquires bus's display lock, opens its transport, and performs the
// required POST_OPEN settle sleep before any exchange is attempted
// (spec.md §4.2/§4.3). The caller must Close the returned Display.
func (h *Hub) Open(ctx context.Context, bus int, opts OpenOptions) (*Display, error) {
	const source = "ddc.Open"

	handle, err := h.Locks.Acquire(bus, NextThreadToken(), opts.Wait)
	if err != nil {
		return nil, err
	}

	xport := opts.Transport
	if xport == nil {
		lin, err := transport.OpenLinuxI2C(bus)
		if err != nil {
			_ = h.Locks.Release(handle)
			return nil, ddcerr.Wrap(ddcerr.Io, source, err)
		}
		xport = lin
	}

	if err := xport.SetSlaveAddress(transport.SlaveAddress, false); err != nil {
		if err2 := xport.SetSlaveAddress(transport.SlaveAddress, true); err2 != nil {
			_ = xport.Close()
			_ = h.Locks.Release(handle)
			return nil, ddcerr.Wrap(ddcerr.Io, source, err2)
		}
	}

	table := h.DSA.Get(bus)

	maxRead := opts.MaxRead
	if maxRead == 0 {
		maxRead = 36
	}

	engine := &exchange.Engine{
		Transport:  xport,
		Sleeper:    exchange.RealSleeper,
		Multiplier: table.GetSleepMultiplier,
		ReadMode:   opts.ReadMode,
		MaxRead:    maxRead,
		Log:        h.Log,
	}
	engine.SleepFor(exchange.PostOpen)

	ctrl := &retry.Controller{
		Engine:                        engine,
		Table:                         table,
		Clock:                         h.DSA.Clock(),
		Stats:                         h.Stats,
		MaxTries:                      defaultMaxTries(),
		MonitorUsesNullForUnsupported: opts.MonitorUsesNullForUnsupported,
	}

	return &Display{hub: h, bus: bus, handle: handle, xport: xport, engine: engine, ctrl: ctrl}, nil
}

// Close releases the underlying transport and the display lock. Using d
// after Close returns ddcerr.InvalidOperation.
func (d *Display) Close() error {
	xerr := d.xport.Close()
	lerr := d.hub.Locks.Release(d.handle)
	if xerr != nil {
		return ddcerr.Wrap(ddcerr.Io, "ddc.Close", xerr)
	}
	return lerr
}

func (d *Display) checkOpen() error {
	if !d.hub.Locks.IsValid(d.handle) {
		return ddcerr.New(ddcerr.InvalidOperation, "ddc.Display")
	}
	return nil
}

// VCPValue is the decoded result of GetVCP.
type VCPValue struct {
	Supported bool
	Current   uint16
	Max       uint16
}

// GetVCP reads one non-table VCP feature (spec.md §4.1 Get VCP).
func (d *Display) GetVCP(ctx context.Context, code byte) (VCPValue, error) {
	if err := d.checkOpen(); err != nil {
		return VCPValue{}, err
	}
	req := wire.BuildGetVcp(code)
	expect := wire.ExpectedReply{Opcode: wire.OpGetVcpReply, RequestCode: code}
	resp, err := d.ctrl.WriteReadWithRetry(ctx, req, expect, false, retry.OpWriteRead)
	if err != nil {
		// A monitor known to signal "unsupported" via Null Response rather
		// than result_code 0x01 gets the same information-not-error
		// treatment given to result_code 0x01 below (spec.md §7).
		if d.ctrl.MonitorUsesNullForUnsupported && ddcerr.Is(err, ddcerr.NullResponse) {
			return VCPValue{Supported: false}, nil
		}
		return VCPValue{}, err
	}
	if resp.VCP == nil {
		return VCPValue{}, ddcerr.New(ddcerr.MalformedData, "ddc.GetVCP")
	}
	if !resp.VCP.SupportedOpcode {
		return VCPValue{Supported: false}, nil
	}
	return VCPValue{Supported: true, Current: resp.VCP.CurValue, Max: resp.VCP.MaxValue}, nil
}

// SetVCP writes one non-table VCP feature's value (spec.md §4.1 Set VCP).
func (d *Display) SetVCP(ctx context.Context, code byte, value uint16) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	req := wire.BuildSetVcp(code, value)
	return d.ctrl.WriteOnlyWithRetry(ctx, req, false, retry.OpWriteOnly)
}

// SaveSettings issues the Save Current Settings command (spec.md §4.1).
func (d *Display) SaveSettings(ctx context.Context) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	req := wire.BuildSaveSettings()
	return d.ctrl.WriteOnlyWithRetry(ctx, req, true, retry.OpWriteOnly)
}

// Capabilities reads and reassembles the monitor's capabilities string
// (spec.md §4.5), trimmed and NUL-terminated.
func (d *Display) Capabilities(ctx context.Context) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return multipart.ReadAll(ctx, d.ctrl, multipart.KindCapabilities, 0, 3)
}

// TableRead reads and reassembles a table-type VCP feature (spec.md §4.5).
func (d *Display) TableRead(ctx context.Context, code byte) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return multipart.ReadAll(ctx, d.ctrl, multipart.KindTableRead, code, 3)
}

// TableWrite writes a table-type VCP feature in <=31-byte chunks
// (spec.md §4.5).
func (d *Display) TableWrite(ctx context.Context, code byte, payload []byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return multipart.WriteAll(ctx, d.ctrl, code, payload)
}

// Bus returns the I2C bus number this display was opened on.
func (d *Display) Bus() int { return d.bus }

func (d *Display) String() string {
	return fmt.Sprintf("ddc.Display{bus=%d}", d.bus)
}
