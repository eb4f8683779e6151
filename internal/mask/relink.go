package mask

import (
	"math"

	"slitmask/internal/coords"
)

// Relink rebuilds the derived state of a configuration read back from storage:
// the wrap flag, projected target positions, target validity, the links from
// mechanical rows to targets, and row spans. Science and alignment slits must
// already carry their targets.
func (c *Configuration) Relink() {
	inst := c.Instrument
	n := inst.NumberOfBarPairs

	var positions []coords.RaDec
	for _, s := range c.Science {
		positions = append(positions, s.Target.Coord)
	}
	for _, a := range c.Alignment {
		if a.Target != nil {
			positions = append(positions, a.Target.Coord)
		}
	}
	c.Pointing.CoordWrap = coords.SpansWrap(positions)
	proj := c.Pointing.Projector()

	byName := make(map[string]*Target, len(c.Science))
	c.Pointing.Targets = nil
	for i := range c.Science {
		s := &c.Science[i]
		projectTarget(inst, proj, s.Target, c.Params.DitherSpace)
		s.Rows = int(math.Round((s.Length + inst.Overlap) / inst.RowHeight))
		s.Target.CenterDistance = s.CenterDistance
		s.Target.InValidSlit = validOffset(s.CenterDistance, s.Length, c.Params.DitherSpace)
		if _, seen := byName[s.Target.Name]; !seen {
			byName[s.Target.Name] = s.Target
			c.Pointing.Targets = append(c.Pointing.Targets, s.Target)
		}
	}

	c.Pointing.AlignmentStars = nil
	for i := range c.Alignment {
		a := &c.Alignment[i]
		if a.Target == nil {
			continue
		}
		a.Target.Sky, a.Target.FocalPlane = proj.Project(a.Target.Coord)
		a.Target.AlignRow = n - a.Number
		a.Target.CenterDistance = a.CenterDistance
		c.Pointing.AlignmentStars = append(c.Pointing.AlignmentStars, a.Target)
	}
	if len(c.Pointing.OriginalTargets) == 0 {
		c.Pointing.OriginalTargets = append(c.Pointing.OriginalTargets, c.Pointing.Targets...)
		c.Pointing.OriginalTargets = append(c.Pointing.OriginalTargets, c.Pointing.AlignmentStars...)
	}

	for i := range c.Mechanical {
		m := &c.Mechanical[i]
		m.Target = byName[m.TargetName]
	}
	c.sortSlits()
	c.countRuns()
}
