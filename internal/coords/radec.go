package coords

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RaDec is an equatorial position in sexagesimal form. Negative declinations
// set Negative and keep DecDeg non-negative so that -00 30 00 survives.
type RaDec struct {
	RaHour   float64 `json:"ra_hour"`
	RaMin    float64 `json:"ra_min"`
	RaSec    float64 `json:"ra_sec"`
	DecDeg   float64 `json:"dec_deg"`
	DecMin   float64 `json:"dec_min"`
	DecSec   float64 `json:"dec_sec"`
	Negative bool    `json:"negative,omitempty"`
}

// NewRaDec builds a position from sexagesimal fields. A negative decDeg (or
// negative zero) marks a southern declination.
func NewRaDec(raH, raM, raS, decD, decM, decS float64) RaDec {
	return RaDec{
		RaHour:   raH,
		RaMin:    raM,
		RaSec:    raS,
		DecDeg:   math.Abs(decD),
		DecMin:   decM,
		DecSec:   decS,
		Negative: math.Signbit(decD),
	}
}

// RaDegrees returns right ascension in degrees.
func (c RaDec) RaDegrees() float64 {
	return (c.RaHour + c.RaMin/60 + c.RaSec/3600) * 15
}

// DecDegrees returns declination in signed degrees.
func (c RaDec) DecDegrees() float64 {
	d := c.DecDeg + c.DecMin/60 + c.DecSec/3600
	if c.Negative {
		return -d
	}
	return d
}

// SignedDecDeg returns the degree field with the declination sign applied.
func (c RaDec) SignedDecDeg() float64 {
	if c.Negative {
		return -c.DecDeg
	}
	return c.DecDeg
}

// FromDegrees converts decimal degrees back to sexagesimal fields.
func FromDegrees(raDeg, decDeg float64) RaDec {
	ra := math.Mod(raDeg/15, 24)
	if ra < 0 {
		ra += 24
	}
	h := math.Floor(ra)
	m := math.Floor((ra - h) * 60)
	s := ((ra-h)*60 - m) * 60

	neg := decDeg < 0
	dec := math.Abs(decDeg)
	d := math.Floor(dec)
	dm := math.Floor((dec - d) * 60)
	ds := ((dec-d)*60 - dm) * 60
	return RaDec{RaHour: h, RaMin: m, RaSec: s, DecDeg: d, DecMin: dm, DecSec: ds, Negative: neg}
}

// ParseRA reads "hh:mm:ss.s" or "hh mm ss.s".
func ParseRA(s string) (h, m, sec float64, err error) {
	parts, err := splitSexagesimal(s)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing ra %q: %w", s, err)
	}
	return parts[0], parts[1], parts[2], nil
}

// ParseDec reads "+dd:mm:ss.s" or "-dd mm ss.s". The returned degree field
// carries the sign, including negative zero.
func ParseDec(s string) (d, m, sec float64, err error) {
	trimmed := strings.TrimSpace(s)
	neg := strings.HasPrefix(trimmed, "-")
	parts, err := splitSexagesimal(strings.TrimLeft(trimmed, "+-"))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing dec %q: %w", s, err)
	}
	d = parts[0]
	if neg {
		d = math.Copysign(d, -1)
	}
	return d, parts[1], parts[2], nil
}

// Parse combines ParseRA and ParseDec.
func Parse(ra, dec string) (RaDec, error) {
	h, m, s, err := ParseRA(ra)
	if err != nil {
		return RaDec{}, err
	}
	d, dm, ds, err := ParseDec(dec)
	if err != nil {
		return RaDec{}, err
	}
	return NewRaDec(h, m, s, d, dm, ds), nil
}

func splitSexagesimal(s string) ([3]float64, error) {
	var out [3]float64
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' || r == '\t' })
	if len(fields) != 3 {
		return out, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// String renders the position as "hh:mm:ss.ss +dd:mm:ss.ss".
func (c RaDec) String() string {
	sign := "+"
	if c.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%02.0f:%02.0f:%05.2f %s%02.0f:%02.0f:%05.2f",
		c.RaHour, c.RaMin, c.RaSec, sign, c.DecDeg, c.DecMin, c.DecSec)
}
