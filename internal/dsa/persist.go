package dsa

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ddcio/ddcio/internal/ddcerr"
)

const formatVersion = "FORMAT 1"

// BusName formats the bus identifier the way the persistence file expects.
// The core treats bus paths as opaque small integers (spec.md §3); the
// on-disk name is simply the decimal bus number.
func BusName(bus int) string {
	return strconv.Itoa(bus)
}

// Save writes every bus in s to w in the spec.md §6 FORMAT 1 text format.
func Save(s *Service, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, formatVersion); err != nil {
		return err
	}
	for _, t := range s.All() {
		if err := writeTable(bw, t); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeTable(w io.Writer, t *Table) error {
	found := 0
	if t.FoundFailureStep {
		found = 1
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %d %d %d %d", BusName(t.Bus), t.CurStep, t.Lookback,
		t.RemainingInterval, t.MinOkStep, found)
	for _, inv := range t.RecentValues {
		fmt.Fprintf(&b, " {%d,%d,%d}", inv.EpochSeconds, inv.TryCt, inv.RequiredStep)
	}
	_, err := fmt.Fprintln(w, b.String())
	return err
}

// Load parses the spec.md §6 FORMAT 1 text format from r and restores every
// table it contains into s. On any parse error within a line, no table from
// that line (or any not-yet-applied line) is created: Load parses the whole
// file into a staging slice first and only installs it into s once the
// entire file has parsed cleanly, so a partially loaded file never leaves s
// with a half-initialized bus.
func Load(s *Service, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	const source = "dsa.Load"

	staged := make([]*Table, 0)
	sawFormat := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		if !sawFormat {
			if line != formatVersion {
				return ddcerr.New(ddcerr.MalformedData, source)
			}
			sawFormat = true
			continue
		}
		t, err := parseLine(line)
		if err != nil {
			return err
		}
		staged = append(staged, t)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !sawFormat {
		return ddcerr.New(ddcerr.MalformedData, source)
	}

	for _, t := range staged {
		s.Restore(t)
	}
	return nil
}

func parseLine(line string) (*Table, error) {
	const source = "dsa.parseLine"

	fields, rest := splitHeadAndRing(line)
	if len(fields) != 6 {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	bus, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	curStep, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	lookback, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	remaining, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	minOk, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	foundRaw, err := strconv.Atoi(fields[5])
	if err != nil || (foundRaw != 0 && foundRaw != 1) {
		return nil, ddcerr.New(ddcerr.MalformedData, source)
	}

	t := &Table{
		Bus:               bus,
		CurStep:           curStep,
		RetryLoopStep:     curStep,
		Lookback:          lookback,
		RemainingInterval: remaining,
		MinOkStep:         minOk,
		FoundFailureStep:  foundRaw == 1,
	}

	for _, tok := range rest {
		inv, err := parseRingEntry(tok)
		if err != nil {
			return nil, err
		}
		t.RecentValues = append(t.RecentValues, inv)
	}
	if len(t.RecentValues) > ringCapacity {
		t.RecentValues = t.RecentValues[len(t.RecentValues)-ringCapacity:]
	}

	return t, nil
}

// splitHeadAndRing splits a data line into its 6 fixed head fields and the
// remaining {epoch,tryct,step} ring-entry tokens.
func splitHeadAndRing(line string) (head []string, ring []string) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if strings.HasPrefix(f, "{") {
			return fields[:i], fields[i:]
		}
		head = append(head, f)
	}
	return head, nil
}

func parseRingEntry(tok string) (SuccessfulInvocation, error) {
	const source = "dsa.parseRingEntry"
	tok = strings.TrimPrefix(tok, "{")
	tok = strings.TrimSuffix(tok, "}")
	parts := strings.Split(tok, ",")
	if len(parts) != 3 {
		return SuccessfulInvocation{}, ddcerr.New(ddcerr.MalformedData, source)
	}
	epoch, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return SuccessfulInvocation{}, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	tryct, err := strconv.Atoi(parts[1])
	if err != nil {
		return SuccessfulInvocation{}, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	step, err := strconv.Atoi(parts[2])
	if err != nil {
		return SuccessfulInvocation{}, ddcerr.Wrap(ddcerr.MalformedData, source, err)
	}
	return SuccessfulInvocation{EpochSeconds: epoch, TryCt: tryct, RequiredStep: step}, nil
}
