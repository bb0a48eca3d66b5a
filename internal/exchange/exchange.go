// Package exchange implements the single-exchange engine (spec.md §4.3):
// one write / optional read / parse cycle against an opened bus handle,
// with correctly placed, DSA-scaled sleeps. It is the engine the retry
// controller drives repeatedly to complete one logical DDC/CI operation.
package exchange

import (
	"context"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/ddcio/ddcio/internal/ddcerr"
	"github.com/ddcio/ddcio/internal/transport"
	"github.com/ddcio/ddcio/internal/wire"
)

// SleepPoint names a sleep placement in the exchange, per spec.md §4.3.
type SleepPoint int

const (
	PostOpen SleepPoint = iota
	WriteToRead
	PostRead
	PostWrite
	PostSaveSettings
	DDCNull
)

// baseDurations holds the event-specific base duration for each sleep
// point; the actual sleep is base x current DSA multiplier.
var baseDurations = map[SleepPoint]time.Duration{
	PostOpen:         250 * time.Millisecond,
	WriteToRead:      50 * time.Millisecond,
	PostRead:         10 * time.Millisecond,
	PostWrite:        50 * time.Millisecond,
	PostSaveSettings: 200 * time.Millisecond,
	DDCNull:          250 * time.Millisecond,
}

// Sleeper abstracts time.Sleep so tests can fake it and assert durations
// without actually waiting.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealSleeper is the production Sleeper, delegating to time.Sleep.
var RealSleeper Sleeper = realSleeper{}

// Multiplier is supplied by the DSA controller for the bus an Engine talks
// to; kept as a function so the engine always sees the latest multiplier,
// including mid-retry-loop step-ups.
type Multiplier func() float64

// Engine performs one write/read/parse attempt.
type Engine struct {
	Transport  transport.Transport
	Sleeper    Sleeper
	Multiplier Multiplier
	ReadMode   transport.ReadMode
	MaxRead    int
	Log        *charmlog.Logger
}

func (e *Engine) sleep(point SleepPoint) {
	base := baseDurations[point]
	mult := 1.0
	if e.Multiplier != nil {
		mult = e.Multiplier()
	}
	d := time.Duration(float64(base) * mult)
	if e.Log != nil {
		e.Log.Debug("sleep", "point", point, "duration", d)
	}
	if e.Sleeper != nil {
		e.Sleeper.Sleep(d)
	}
}

// WriteOnly performs a write-only exchange (e.g. Set VCP): write, then the
// POST_WRITE (or POST_SAVE_SETTINGS) sleep.
func (e *Engine) WriteOnly(ctx context.Context, req *wire.Packet, saveSettings bool) error {
	if err := e.Transport.Write(ctx, req.Bytes); err != nil {
		return ddcerr.Wrap(ddcerr.Io, "exchange.WriteOnly", err)
	}
	if saveSettings {
		e.sleep(PostSaveSettings)
	} else {
		e.sleep(PostWrite)
	}
	return nil
}

// WriteRead performs a write, WRITE_TO_READ sleep, read, POST_READ sleep,
// and parse cycle, classifying an all-zero read as ddcerr.AllZero rather
// than success (spec.md §4.3).
func (e *Engine) WriteRead(ctx context.Context, req *wire.Packet, expect wire.ExpectedReply) (*wire.Packet, error) {
	const source = "exchange.WriteRead"

	if err := e.Transport.Write(ctx, req.Bytes); err != nil {
		return nil, ddcerr.Wrap(ddcerr.Io, source, err)
	}

	e.sleep(WriteToRead)

	buf := make([]byte, e.MaxRead)
	n, err := e.Transport.Read(ctx, buf, e.ReadMode)
	e.sleep(PostRead)
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.Io, source, err)
	}

	raw := buf[:n]
	if allZero(raw) {
		return nil, ddcerr.New(ddcerr.AllZero, source)
	}

	pkt, err := wire.Parse(raw, expect)
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

// SleepFor exposes the DDC_NULL extended back-off for the retry controller
// to invoke directly after classifying a NullResponse.
func (e *Engine) SleepFor(point SleepPoint) {
	e.sleep(point)
}

func allZero(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
