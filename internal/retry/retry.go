// Package retry implements the bounded-retry controller (spec.md §4.4):
// the state machine that drives the single-exchange engine to completion,
// classifying each attempt's outcome as terminal or transient, consulting
// and feeding back into the per-bus DSA controller, and rolling up
// per-attempt causes into a final classified error.
package retry

import (
	"context"
	"errors"
	"syscall"

	"github.com/ddcio/ddcio/internal/ddcerr"
	"github.com/ddcio/ddcio/internal/dsa"
	"github.com/ddcio/ddcio/internal/exchange"
	"github.com/ddcio/ddcio/internal/wire"
)

// Controller drives retry loops for one bus.
type Controller struct {
	Engine *exchange.Engine
	Table  *dsa.Table
	Clock  dsa.Clock
	Stats  *Stats

	MaxTries map[OpKind]int

	// MonitorUsesNullForUnsupported, when true, means this monitor is known
	// to answer unsupported VCP codes with Null Response rather than
	// result_code 0x01, so Null Response must not be retried at all
	// (null_max = 0).
	MonitorUsesNullForUnsupported bool
}

func (c *Controller) maxTries(kind OpKind) int {
	if n, ok := c.MaxTries[kind]; ok {
		return n
	}
	return 4
}

// classification is the outcome of inspecting one attempt's error.
type classification struct {
	retryable bool
	isNull    bool
	isZero    bool
	fatal     bool
}

func classify(err error, allZeroOK bool) classification {
	if err == nil {
		return classification{}
	}

	switch {
	case ddcerr.Is(err, ddcerr.NullResponse):
		return classification{retryable: true, isNull: true}
	case ddcerr.Is(err, ddcerr.AllZero):
		return classification{retryable: !allZeroOK, isZero: true}
	case ddcerr.Is(err, ddcerr.Io):
		if isErrno(err, syscall.EBADF) {
			return classification{retryable: false, fatal: true}
		}
		if isErrno(err, syscall.EIO) || isErrno(err, syscall.ENXIO) {
			// Historically retryable; spec.md §9 open question 3 resolves the
			// ambiguity in favor of retryable.
			return classification{retryable: true}
		}
		return classification{retryable: true}
	default:
		// Other DDC data error (malformed data, etc): retryable.
		return classification{retryable: true}
	}
}

func isErrno(err error, target syscall.Errno) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == target
	}
	return false
}

// WriteReadWithRetry implements spec.md §4.4's write_read_with_retry.
func (c *Controller) WriteReadWithRetry(ctx context.Context, req *wire.Packet, expect wire.ExpectedReply, allZeroOK bool, opKind OpKind) (*wire.Packet, error) {
	maxTries := c.maxTries(opKind)
	nullMax := 3
	if c.MonitorUsesNullForUnsupported {
		nullMax = 0
	}

	var (
		tries     int
		attempts  []error
		nullSeen  int
		zeroSeen  int
		retryable = true
		lastErr   error = ddcerr.New(ddcerr.RetriesExhausted, "retry.WriteReadWithRetry") // non-nil sentinel
		lastCl    classification
		resp      *wire.Packet
	)

	for tries < maxTries && lastErr != nil && retryable {
		pkt, err := c.Engine.WriteRead(ctx, req, expect)
		attempts = append(attempts, err)
		lastErr = err

		if err == nil {
			resp = pkt
			break
		}

		cl := classify(err, allZeroOK)
		switch {
		case cl.isNull:
			nullSeen++
			retryable = nullSeen < nullMax
		case cl.isZero:
			retryable = !allZeroOK
			zeroSeen++
		case cl.fatal:
			retryable = false
		default:
			retryable = cl.retryable
		}
		lastCl = cl

		if retryable {
			c.Table.NoteRetryableFailure(maxTries - tries)
			if cl.isNull {
				c.Engine.SleepFor(exchange.DDCNull)
			}
		}
		tries++
	}

	if lastErr == nil {
		c.recordOutcome(dsa.OutcomeSuccess, tries+1, opKind, true)
		return resp, nil
	}

	// Map the terminal cause to the outcome classifications of spec.md §4.4
	// and the laws of §8: a Null Response terminus is reported as
	// AllResponsesNull whenever the monitor is not known to use Null
	// Response for "unsupported" (§8 law 8), and an AllZero terminus is
	// always reported as AllTriesZero, regardless of whether the loop
	// stopped because all_zero_ok made it non-retryable on the first
	// occurrence or because every attempt up to max_tries came back zero.
	var final error
	switch {
	case lastCl.fatal:
		final = c.attach(lastErr, attempts)
	case lastCl.isNull && nullMax > 0:
		final = c.attach(ddcerr.New(ddcerr.AllResponsesNull, "retry.WriteReadWithRetry"), attempts)
	case lastCl.isNull:
		final = c.attach(lastErr, attempts)
	case lastCl.isZero:
		final = c.attach(ddcerr.New(ddcerr.AllTriesZero, "retry.WriteReadWithRetry"), attempts)
	default:
		final = c.attach(ddcerr.New(ddcerr.RetriesExhausted, "retry.WriteReadWithRetry"), attempts)
	}

	c.recordFailure(tries, opKind, lastCl.fatal)
	return nil, final
}

// WriteOnlyWithRetry implements spec.md §4.4's write_only_with_retry
// variant: a separate max-tries setting, -EIO the only retryable
// condition, no response to classify. opKind lets multi-part table writes
// report into the multi-part-write statistics bucket instead of
// write-only (spec.md §6).
func (c *Controller) WriteOnlyWithRetry(ctx context.Context, req *wire.Packet, saveSettings bool, opKind OpKind) error {
	maxTries := c.maxTries(opKind)

	var (
		tries     int
		attempts  []error
		lastErr   error = ddcerr.New(ddcerr.RetriesExhausted, "retry.WriteOnlyWithRetry")
		retryable = true
	)

	for tries < maxTries && lastErr != nil && retryable {
		err := c.Engine.WriteOnly(ctx, req, saveSettings)
		attempts = append(attempts, err)
		lastErr = err
		if err == nil {
			break
		}
		retryable = isErrno(err, syscall.EIO)
		if retryable {
			c.Table.NoteRetryableFailure(maxTries - tries)
		}
		tries++
	}

	if lastErr == nil {
		c.recordOutcome(dsa.OutcomeSuccess, tries+1, opKind, true)
		return nil
	}

	var final error
	if !retryable {
		final = c.attach(lastErr, attempts)
	} else {
		final = c.attach(ddcerr.New(ddcerr.RetriesExhausted, "retry.WriteOnlyWithRetry"), attempts)
	}
	c.recordFailure(tries, opKind, !retryable)
	return final
}

func (c *Controller) attach(err error, attempts []error) error {
	var de *ddcerr.Error
	if errors.As(err, &de) {
		return de.WithAttempts(attempts)
	}
	return ddcerr.Wrap(ddcerr.Io, "retry", err).WithAttempts(attempts)
}

func (c *Controller) recordOutcome(outcome dsa.Outcome, tries int, kind OpKind, success bool) {
	if c.Table != nil {
		c.Table.RecordFinal(c.Clock, outcome, tries, dsa.InitialStep)
	}
	if c.Stats == nil {
		return
	}
	if success {
		c.Stats.recordSuccessAfter(kind, tries)
	}
}

// recordFailure feeds the failed retry loop back into the DSA table and
// bumps the fatal or exhausted-retry counter, per spec.md §3/§4.6.
func (c *Controller) recordFailure(tries int, kind OpKind, fatal bool) {
	if c.Table != nil {
		c.Table.RecordFinal(c.Clock, dsa.OutcomeFailure, tries, dsa.InitialStep)
	}
	if c.Stats == nil {
		return
	}
	if fatal {
		c.Stats.recordFatal(kind)
	} else {
		c.Stats.recordExhausted(kind)
	}
}
