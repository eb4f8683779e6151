package instrument

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Focal-plane y runs upward from the array center. Row indexes count up from the
// bottom of the array starting at zero; slit numbers count down from the top
// starting at one, so number = N - index.

// RowIndex returns the bottom-up row index containing focal-plane y. The result
// may fall outside 0..N-1 for positions off the array.
func (p Params) RowIndex(y float64) int {
	return int(math.Floor((y + p.Height()/2) / p.RowHeight))
}

// RowNumber returns the 1-based slit number of the row containing y.
func (p Params) RowNumber(y float64) int {
	return p.NumberOfBarPairs - p.RowIndex(y)
}

// DitherRows returns the inclusive bottom-up row range a target at y occupies
// when nodded by +/- dither along the slit.
func (p Params) DitherRows(y, dither float64) (minRow, maxRow int) {
	reach := dither * math.Cos(p.TiltRadians())
	minY := y - reach
	maxY := y + reach
	minRow = int(math.Floor((minY + p.Height()/2 - p.Overlap) / p.RowHeight))
	maxRow = int(math.Floor((maxY + p.Height()/2 + p.Overlap) / p.RowHeight))
	return minRow, maxRow
}

// AlignmentRow returns the bottom-up row holding a star at y, or -1 when the
// star is off the array or closer than edgeBuffer to a row boundary.
func (p Params) AlignmentRow(y, edgeBuffer float64) int {
	row := p.RowIndex(y)
	if row < 0 || row >= p.NumberOfBarPairs {
		return -1
	}
	offset := y + p.Height()/2 - float64(row)*p.RowHeight
	lower := p.Overlap/2 + edgeBuffer
	upper := p.RowHeight - p.Overlap/2 - edgeBuffer
	if offset < lower || offset > upper {
		return -1
	}
	return row
}

// SlitCenterY is the focal-plane y of the middle of a slit whose lowest row is
// bottomRow and which spans rows rows.
func (p Params) SlitCenterY(bottomRow, rows int) float64 {
	return (float64(bottomRow)+float64(rows)/2)*p.RowHeight - p.Height()/2
}

// SlitPosition places a slit so that its tilted axis passes through target.
func (p Params) SlitPosition(bottomRow, rows int, target r2.Vec) r2.Vec {
	y := p.SlitCenterY(bottomRow, rows)
	x := target.X - (target.Y-y)*math.Tan(p.TiltRadians())
	return r2.Vec{X: x, Y: y}
}

// CenterDistance is the offset of target from a slit center measured along the
// tilted slit axis.
func (p Params) CenterDistance(target, center r2.Vec) float64 {
	return (target.Y - center.Y) / math.Cos(p.TiltRadians())
}
