package mask

import "gonum.org/v1/gonum/spatial/r2"

// buildScienceSlits replaces the science list with one slit per maximal run of
// mechanical rows sharing a target. Mechanical slits must be sorted by number.
func (c *Configuration) buildScienceSlits() {
	inst := c.Instrument
	n := inst.NumberOfBarPairs

	c.Science = c.Science[:0]
	for i := 0; i < len(c.Mechanical); {
		t := c.Mechanical[i].Target
		j := i + 1
		for j < len(c.Mechanical) && c.Mechanical[j].Target == t {
			j++
		}
		if t == nil {
			i = j
			continue
		}
		rows := j - i
		first := c.Mechanical[i].Number
		slit := ScienceSlit{
			Number: len(c.Science) + 1,
			Width:  c.Mechanical[i].Width,
			Target: t,
		}
		c.placeScienceSlit(&slit, n-first-rows+1, rows)
		for k := i; k < j; k++ {
			rowCenter := r2.Vec{X: c.Mechanical[k].CenterPosition, Y: inst.SlitCenterY(n-c.Mechanical[k].Number, 1)}
			c.Mechanical[k].CenterDistance = inst.CenterDistance(t.FocalPlane, rowCenter)
		}
		c.Science = append(c.Science, slit)
		i = j
	}
}

// placeScienceSlit sets the geometry of s for a span of rows whose lowest
// bottom-up row is bottomRow, and refreshes the target's validity.
func (c *Configuration) placeScienceSlit(s *ScienceSlit, bottomRow, rows int) {
	inst := c.Instrument
	s.Rows = rows
	s.Length = inst.SlitLength(rows)
	center := inst.SlitPosition(bottomRow, rows, s.Target.FocalPlane)
	s.Center = c.Pointing.Projector().ToSky(center)
	s.CenterDistance = inst.CenterDistance(s.Target.FocalPlane, center)
	s.Target.CenterDistance = s.CenterDistance
	s.Target.InValidSlit = validOffset(s.CenterDistance, s.Length, c.Params.DitherSpace)
}
