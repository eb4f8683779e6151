package mask

import (
	"fmt"
	"math"
	"strconv"

	"slitmask/internal/instrument"
)

// LongSlit builds a single slit length rows tall centered on the calibration
// row, with one alignment box at that row.
func LongSlit(inst instrument.Params, length int, width float64) *Configuration {
	name := fmt.Sprintf("LONGSLIT-%dx%s", length, strconv.FormatFloat(width, 'f', -1, 64))
	c := New(inst, name, false)
	c.OriginalFilename = name
	c.Params.SlitWidth = width

	halfRows := int(math.Ceil(float64(length)/2)) - 1
	tan := math.Tan(inst.TiltRadians())
	c.Mechanical = make([]MechanicalSlit, 0, length)
	for i := 0; i < length; i++ {
		offset := float64(halfRows-i) * inst.SingleSlitHeight()
		c.Mechanical = append(c.Mechanical, MechanicalSlit{
			Number:         inst.CalibrationRow - halfRows + i,
			CenterPosition: tan * offset,
			Width:          width,
			Rows:           length,
		})
	}
	c.Alignment = []MechanicalSlit{{
		Number:         inst.CalibrationRow,
		CenterPosition: c.Mechanical[halfRows].CenterPosition,
		Width:          inst.AlignmentBoxWidth,
		Rows:           1,
	}}
	return c
}

// OpenMask drives every bar pair to the fixed open positions.
func OpenMask(inst instrument.Params) *Configuration {
	c := New(inst, "OPEN", false)
	c.OriginalFilename = "OPEN"
	widest := 0.0
	for i := range c.Mechanical {
		odd := inst.OpenBarTargets[2*i]
		even := inst.OpenBarTargets[2*i+1]
		c.Mechanical[i].Width = (even - odd) * inst.ArcsecPerMM
		c.Mechanical[i].CenterPosition = ((even+odd)/2 - inst.ZeroPointMM) * inst.ArcsecPerMM
		widest = math.Max(widest, c.Mechanical[i].Width)
	}
	c.Params.SlitWidth = widest
	return c
}
