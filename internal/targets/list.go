// Package targets reads and writes target lists and pointing files.
package targets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"slitmask/internal/coords"
	"slitmask/internal/mask"
)

// minFields is name, priority, magnitude, six sexagesimal fields, epoch and
// equinox. Trailing columns such as proper motion are ignored.
const minFields = 11

// LineError reports a malformed line in a target list.
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("target list line %d: %s", e.Line, e.Reason)
}

// List is a parsed target list. Entries with a negative priority are alignment
// star candidates.
type List struct {
	Science []*mask.Target
	Stars   []*mask.Target
}

// All returns science targets followed by alignment stars.
func (l List) All() []*mask.Target {
	out := make([]*mask.Target, 0, len(l.Science)+len(l.Stars))
	out = append(out, l.Science...)
	return append(out, l.Stars...)
}

// ReadList parses whitespace-delimited coords lines. Blank lines and lines
// starting with # are skipped.
func ReadList(r io.Reader) (List, error) {
	var list List
	seen := make(map[string]int)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := parseLine(line)
		if err != nil {
			return List{}, &LineError{Line: lineNo, Reason: err.Error()}
		}
		if prev, dup := seen[t.Name]; dup {
			return List{}, &LineError{Line: lineNo, Reason: fmt.Sprintf("duplicate target %q (first on line %d)", t.Name, prev)}
		}
		seen[t.Name] = lineNo
		if t.Priority < 0 {
			list.Stars = append(list.Stars, t)
		} else {
			list.Science = append(list.Science, t)
		}
	}
	if err := sc.Err(); err != nil {
		return List{}, fmt.Errorf("reading target list: %w", err)
	}
	return list, nil
}

// ReadListFile opens path and parses it with ReadList.
func ReadListFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return List{}, fmt.Errorf("opening target list: %w", err)
	}
	defer f.Close()
	list, err := ReadList(f)
	if err != nil {
		return List{}, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

func parseLine(line string) (*mask.Target, error) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return nil, fmt.Errorf("expected at least %d fields, got %d", minFields, len(fields))
	}
	var nums [minFields - 1]float64
	for i := range nums {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+2, err)
		}
		nums[i] = v
	}
	return &mask.Target{
		Name:      fields[0],
		Priority:  nums[0],
		Magnitude: nums[1],
		Coord:     coords.NewRaDec(nums[2], nums[3], nums[4], nums[5], nums[6], nums[7]),
		Epoch:     nums[8],
		Equinox:   nums[9],
	}, nil
}

// WriteCoords writes one coords line per target in the format ReadList reads.
func WriteCoords(w io.Writer, targets []*mask.Target) error {
	bw := bufio.NewWriter(w)
	for _, t := range targets {
		if t == nil {
			continue
		}
		c := t.Coord
		fmt.Fprintf(bw, "%s  %7.2f  %5.2f  %02.0f  %02.0f  %06.3f  % 03.0f  %02.0f  %05.2f  %6.1f  %6.1f  %3.1f  %3.1f\n",
			t.Name, t.Priority, t.Magnitude,
			c.RaHour, c.RaMin, c.RaSec,
			c.SignedDecDeg(), c.DecMin, c.DecSec,
			t.Epoch, t.Equinox, 0.0, 0.0)
	}
	return bw.Flush()
}
