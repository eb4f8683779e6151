package mask

import (
	"log/slog"
	"math"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"

	"gonum.org/v1/gonum/spatial/r2"
)

// Generate lays out a mask for pointing. Targets off the focal plane or outside
// the legal x range are skipped. Each remaining target claims the rows it covers
// while dithered; when reassign is set, rows left empty are handed to their
// neighbors. Expanded rows whose bars would leave their travel are released.
// Science slits and alignment stars are derived from the result.
func Generate(inst instrument.Params, pointing Pointing, params EditParams, reassign bool) *Configuration {
	n := inst.NumberOfBarPairs
	proj := pointing.Projector()

	// slots are indexed bottom-up: slots[i] is slit number n-i.
	slots := make([]MechanicalSlit, n)
	for i := range slots {
		slots[i] = MechanicalSlit{Number: n - i, Width: params.SlitWidth, Rows: Unassigned}
	}

	for _, t := range pointing.Targets {
		projectTarget(inst, proj, t, params.DitherSpace)
		if !inField(inst, params, t.FocalPlane) {
			slog.Debug("target outside legal field", "target", t.Name, "x", t.FocalPlane.X, "y", t.FocalPlane.Y)
			continue
		}
		span := t.MaxRow - t.MinRow + 1
		for row := max(t.MinRow, 0); row <= min(t.MaxRow, n-1); row++ {
			slots[row].Target = t
			slots[row].TargetName = t.Name
			slots[row].Width = params.SlitWidth
			slots[row].Rows = span
		}
	}

	if reassign {
		expand(inst, slots, params.DitherSpace)
	}

	released := 0
	for i := range slots {
		pos := inst.SlitPosition(i, 1, targetPoint(slots[i].Target))
		if slots[i].Target != nil && !inst.BarsWithinTravel(pos.X, slots[i].Width) {
			slots[i] = MechanicalSlit{Number: slots[i].Number, Width: params.SlitWidth, Rows: Unassigned}
			pos = inst.SlitPosition(i, 1, r2.Vec{})
			released++
		}
		slots[i].CenterPosition = pos.X
	}

	c := New(inst, params.MaskName, true)
	c.Mechanical = slots
	c.Pointing = pointing
	c.Params = params
	c.sortSlits()
	if released > 0 {
		slog.Debug("rows released for bar travel", "mask", params.MaskName, "rows", released)
		c.countRuns()
	}
	c.buildScienceSlits()

	if params.MinimumAlignmentStars > 0 {
		c.Alignment = selectAlignmentSlits(inst, proj, pointing.AlignmentStars,
			params.MinimumAlignmentStars, params.AlignmentStarEdgeBuffer)
		c.sortSlits()
	}
	c.UpdatePriority()

	slog.Debug("mask generated",
		"mask", params.MaskName,
		"targets", len(pointing.Targets),
		"science_slits", len(c.Science),
		"alignment_slits", len(c.Alignment),
		"reassign", reassign,
	)
	return c
}

// projectTarget fills the derived positions and dither rows of t.
func projectTarget(inst instrument.Params, proj coords.Projector, t *Target, dither float64) {
	t.Sky, t.FocalPlane = proj.Project(t.Coord)
	t.MinRow, t.MaxRow = inst.DitherRows(t.FocalPlane.Y, dither)
}

// inField reports whether a target at p lies inside the focal-plane circle,
// across the bar array and within the x search range when one is set. Ranges
// are in arcmin.
func inField(inst instrument.Params, params EditParams, p r2.Vec) bool {
	if r2.Norm(p) > inst.FocalPlaneRadius || math.Abs(p.X) > inst.Width/2 {
		return false
	}
	if !inst.BarsWithinTravel(p.X, params.SlitWidth) {
		return false
	}
	if params.XRange > 0 && math.Abs(p.X-params.XCenter*60) > params.XRange*60/2 {
		return false
	}
	return true
}

// targetPoint is the focal-plane position of t, or the array center for an
// empty row.
func targetPoint(t *Target) r2.Vec {
	if t == nil {
		return r2.Vec{}
	}
	return t.FocalPlane
}

// validOffset reports whether a target offset leaves room for the dither.
func validOffset(offset, length, dither float64) bool {
	return math.Abs(offset) <= length/2-dither
}
