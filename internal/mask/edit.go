package mask

import (
	"log/slog"
	"math"
	"slices"
)

// IncrementSlitWidth widens (or narrows, for a negative offset) every slit by
// offset arcsec. Every row is checked first; if any would drop below the
// minimum width or push a bar past its travel, nothing changes and false is
// returned.
func (c *Configuration) IncrementSlitWidth(offset float64) bool {
	inst := c.Instrument
	side := offset / inst.ArcsecPerMM / 2
	for _, m := range c.Mechanical {
		left := inst.LeftBarPosition(m.CenterPosition, m.Width)
		right := inst.RightBarPosition(m.CenterPosition, m.Width)
		if m.Width+offset < inst.MinimumSlitWidth ||
			left+side > inst.MaxBarPositionMM ||
			right-side < inst.MinBarPositionMM {
			slog.Debug("slit width increment rejected", "row", m.Number, "offset", offset)
			return false
		}
	}

	c.Params.SlitWidth += offset
	for i := range c.Mechanical {
		c.Mechanical[i].Width += offset
	}
	for i := range c.Science {
		c.Science[i].Width += offset
	}
	c.Status = StatusModified
	return true
}

// SetSlitWidth sets the width of the science slit that owns row. The width is
// clamped so that no row of the slit runs off the focal plane. It returns the
// width actually applied, or false with the configuration untouched when no
// legal width exists or a bar of the slit would leave its travel range.
func (c *Configuration) SetSlitWidth(row int, width float64) (float64, bool, error) {
	idx := c.MechanicalSlitIndex(row)
	if idx < 0 {
		return 0, false, &LookupError{Row: row, Reason: "no such mechanical slit"}
	}
	t := c.Mechanical[idx].Target
	si := c.ScienceSlitFor(t)
	if si < 0 {
		return 0, false, &LookupError{Row: row, Target: c.Mechanical[idx].Name(), Reason: "no science slit for target"}
	}

	inst := c.Instrument
	widest := 0.0
	for _, m := range c.Mechanical {
		if m.Target == t {
			widest = math.Max(widest, math.Abs(m.CenterPosition))
		}
	}
	maxWidth := (inst.Width/2 - widest) * 2
	if maxWidth < inst.MinimumSlitWidth {
		slog.Debug("slit width rejected: slit off focal plane", "row", row, "max_width", maxWidth)
		return 0, false, nil
	}
	applied := math.Min(math.Max(width, inst.MinimumSlitWidth), maxWidth)
	for _, m := range c.Mechanical {
		if m.Target == t && !inst.BarsWithinTravel(m.CenterPosition, applied) {
			slog.Debug("slit width rejected: bar travel", "row", m.Number, "width", applied)
			return 0, false, nil
		}
	}

	for i := range c.Mechanical {
		if c.Mechanical[i].Target == t {
			c.Mechanical[i].Width = applied
		}
	}
	c.Science[si].Width = applied
	c.Status = StatusModified
	slog.Debug("slit width set", "row", row, "requested", width, "applied", applied)
	return applied, true, nil
}

// AlignSlitWithNeighbor gives row to the slit of its neighbor, the row above
// (lower number) when above is set. The slit that loses the row shrinks, and is
// removed when it has no rows left. Rows already sharing a target are left
// alone.
func (c *Configuration) AlignSlitWithNeighbor(row int, above bool) error {
	idx := c.MechanicalSlitIndex(row)
	if idx < 0 {
		return &LookupError{Row: row, Reason: "no such mechanical slit"}
	}
	nb := idx + 1
	if above {
		nb = idx - 1
	}
	if nb < 0 || nb >= len(c.Mechanical) {
		return &LookupError{Row: row, Reason: "no neighboring slit"}
	}

	origTarget := c.Mechanical[idx].Target
	newTarget := c.Mechanical[nb].Target
	if origTarget == newTarget {
		return nil
	}
	ti := c.ScienceSlitFor(newTarget)
	if ti < 0 {
		return &LookupError{Row: c.Mechanical[nb].Number, Target: c.Mechanical[nb].Name(), Reason: "no science slit for target"}
	}
	oi := c.ScienceSlitFor(origTarget)
	if oi < 0 {
		return &LookupError{Row: row, Target: c.Mechanical[idx].Name(), Reason: "no science slit for target"}
	}

	inst := c.Instrument
	n := inst.NumberOfBarPairs
	newTargetRows := c.Science[ti].Rows + 1
	newOrigRows := c.Science[oi].Rows - 1

	m := &c.Mechanical[idx]
	m.Target = newTarget
	m.TargetName = newTarget.Name
	pos := inst.SlitPosition(n-row, 1, newTarget.FocalPlane)
	m.CenterPosition = pos.X
	m.CenterDistance = inst.CenterDistance(newTarget.FocalPlane, pos)

	var targetStart, origStart int
	if above {
		targetStart = n - row
		origStart = n - row - newOrigRows
	} else {
		targetStart = n - row + 1 - newTargetRows
		origStart = n - row + 1
	}

	c.placeScienceSlit(&c.Science[ti], targetStart, newTargetRows)
	if newOrigRows > 0 {
		c.placeScienceSlit(&c.Science[oi], origStart, newOrigRows)
	} else {
		c.Science = slices.Delete(c.Science, oi, oi+1)
		for k := oi; k < len(c.Science); k++ {
			c.Science[k].Number--
		}
	}
	c.countRuns()
	c.Status = StatusModified
	c.UpdatePriority()
	slog.Debug("slit aligned with neighbor", "row", row, "above", above, "target", newTarget.Name)
	return nil
}

// MoveSlitOntoTarget re-centers the slit holding row onto target, taking as
// many rows as the target needs for its dither. If the displaced slit would be
// split in two, the new slit grows to keep it contiguous. It returns false and
// leaves the configuration untouched when the rows fall off the array or a bar
// would leave its travel range.
func (c *Configuration) MoveSlitOntoTarget(row int, target *Target) (bool, error) {
	idx := c.MechanicalSlitIndex(row)
	if idx < 0 {
		return false, &LookupError{Row: row, Reason: "no such mechanical slit"}
	}
	orig := c.Mechanical[idx].Target
	if c.ScienceSlitFor(orig) < 0 {
		return false, &LookupError{Row: row, Target: c.Mechanical[idx].Name(), Reason: "no science slit for target"}
	}

	inst := c.Instrument
	n := inst.NumberOfBarPairs
	projectTarget(inst, c.Pointing.Projector(), target, c.Params.DitherSpace)

	origStart, origEnd, _ := c.rowRange(orig)
	origTargetRow := inst.RowNumber(orig.FocalPlane.Y)
	start, end := n-target.MaxRow, n-target.MinRow
	if origStart < start && origEnd > end {
		switch {
		case origTargetRow < start:
			end = origEnd
		case origTargetRow > end:
			start = origStart
		default:
			start, end = origStart, origEnd
		}
	}
	if start < 1 || end > n {
		slog.Debug("move rejected: rows off array", "row", row, "target", target.Name, "start", start, "end", end)
		return false, nil
	}

	saved := slices.Clone(c.Mechanical)
	for num := start; num <= end; num++ {
		k := c.MechanicalSlitIndex(num)
		if k < 0 {
			c.Mechanical = saved
			return false, nil
		}
		m := &c.Mechanical[k]
		pos := inst.SlitPosition(n-num, 1, target.FocalPlane)
		if !inst.BarsWithinTravel(pos.X, m.Width) {
			c.Mechanical = saved
			slog.Debug("move rejected: bar travel", "row", num, "target", target.Name)
			return false, nil
		}
		m.CenterPosition = pos.X
		m.Target = target
		m.TargetName = target.Name
	}

	if !slices.Contains(c.Pointing.Targets, target) {
		c.Pointing.Targets = append(c.Pointing.Targets, target)
	}
	c.Status = StatusModified
	c.countRuns()
	c.buildScienceSlits()
	c.UpdatePriority()
	return true, nil
}

// countRuns sets each mechanical row span to the length of its run of rows
// sharing a target.
func (c *Configuration) countRuns() {
	for i := 0; i < len(c.Mechanical); {
		t := c.Mechanical[i].Target
		j := i + 1
		for j < len(c.Mechanical) && c.Mechanical[j].Target == t {
			j++
		}
		rows := j - i
		if t == nil {
			rows = Unassigned
		}
		for k := i; k < j; k++ {
			c.Mechanical[k].Rows = rows
		}
		i = j
	}
}
