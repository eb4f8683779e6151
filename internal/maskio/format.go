// Package maskio reads and writes slit mask configurations and the observing
// products derived from them.
package maskio

import (
	"fmt"
	"math"
	"strconv"

	"slitmask/internal/coords"
	"slitmask/internal/mask"
)

func whole(v float64) string   { return fmt.Sprintf("%02.0f", v) }
func seconds(v float64) string { return fmt.Sprintf("%05.2f", v) }
func f1(v float64) string      { return strconv.FormatFloat(v, 'f', 1, 64) }
func f2(v float64) string      { return strconv.FormatFloat(v, 'f', 2, 64) }
func f3(v float64) string      { return strconv.FormatFloat(v, 'f', 3, 64) }
func f5(v float64) string      { return strconv.FormatFloat(v, 'f', 5, 64) }

// decDegrees renders the signed degree field, keeping the sign of -00.
func decDegrees(c coords.RaDec) string {
	if c.Negative {
		return "-" + whole(math.Abs(c.DecDeg))
	}
	return whole(c.DecDeg)
}

// sexagesimal is the six-field rendering shared by the XML, FITS and slit list
// writers: hours, minutes, seconds, degrees, minutes, seconds.
func sexagesimal(c coords.RaDec) [6]string {
	return [6]string{
		whole(c.RaHour), whole(c.RaMin), seconds(c.RaSec),
		decDegrees(c), whole(c.DecMin), seconds(c.DecSec),
	}
}

// alignedMechanical returns the mechanical rows sorted by number with the
// alignment boxes substituted into their rows.
func alignedMechanical(c *mask.Configuration) []mask.MechanicalSlit {
	rows := sortedMechanical(c.Mechanical)
	for _, a := range c.Alignment {
		idx := -1
		if len(rows) == c.Instrument.NumberOfBarPairs {
			idx = a.Number - 1
		} else {
			for i, m := range rows {
				if m.Number == a.Number {
					idx = i
					break
				}
			}
		}
		if idx >= 0 && idx < len(rows) {
			rows[idx] = a
		}
	}
	return rows
}
