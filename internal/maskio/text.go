package maskio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"slitmask/internal/mask"
	"slitmask/internal/targets"
)

// WriteStarList writes the Keck star list line for the pointing center. The
// name is padded or cut so that coordinates start in column 17.
func WriteStarList(w io.Writer, c *mask.Configuration) error {
	name := (c.MaskName + strings.Repeat(" ", 16))[:15]
	cp := sexagesimal(c.Pointing.Center)
	_, err := fmt.Fprintf(w, "%s %s %s %s  %s %s %s 2000.00 rotdest=%s rotmode=PA\n",
		name, cp[0], cp[1], cp[2], cp[3], cp[4], cp[5], f2(c.Pointing.PositionAngle))
	return err
}

// WriteSlitList writes one tab-separated line per science slit.
func WriteSlitList(w io.Writer, c *mask.Configuration) error {
	bw := bufio.NewWriter(w)
	for _, s := range sortedScience(c.Science) {
		t := s.Target
		if t == nil {
			t = &mask.Target{}
		}
		pos := sexagesimal(s.Center)
		tp := sexagesimal(t.Coord)
		fields := []string{strconv.Itoa(s.Number)}
		fields = append(fields, pos[:]...)
		fields = append(fields, f2(s.Width), f2(s.Length), t.Name, f2(t.Priority), f2(s.CenterDistance))
		fields = append(fields, tp[:]...)
		fmt.Fprintln(bw, strings.Join(fields, "\t"))
	}
	return bw.Flush()
}

func writeScript(w io.Writer, c *mask.Configuration, setupName string, rows []mask.MechanicalSlit, targetsOnly bool) error {
	inst := c.Instrument
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "modify -s mcsus setupname=%q\n", setupName)
	for _, m := range rows {
		fmt.Fprintf(bw, "modify -s mcsus b%02dtarg= %7.3f\n", m.RightBarNumber(), inst.RightBarPosition(m.CenterPosition, m.Width))
		fmt.Fprintf(bw, "modify -s mcsus b%02dtarg= %7.3f\n", m.LeftBarNumber(), inst.LeftBarPosition(m.CenterPosition, m.Width))
	}
	if !targetsOnly {
		fmt.Fprintln(bw, "modify -s mcsus setupinit=1")
	}
	return bw.Flush()
}

// WriteScienceScript writes the CSU keyword script that drives the bars to the
// science configuration. Unless targetsOnly is set, the script ends by asking
// the controller to execute the setup.
func WriteScienceScript(w io.Writer, c *mask.Configuration, targetsOnly bool) error {
	return writeScript(w, c, c.MaskName, sortedMechanical(c.Mechanical), targetsOnly)
}

// WriteAlignmentScript is WriteScienceScript with the alignment boxes
// substituted into their rows.
func WriteAlignmentScript(w io.Writer, c *mask.Configuration, targetsOnly bool) error {
	return writeScript(w, c, c.MaskName+" (align)", alignedMechanical(c), targetsOnly)
}

// WriteMaskCoords lists the targets in the mask: science targets in slit
// order, then alignment stars.
func WriteMaskCoords(w io.Writer, c *mask.Configuration) error {
	var list []*mask.Target
	for _, s := range c.Science {
		list = append(list, s.Target)
	}
	for _, a := range c.Alignment {
		list = append(list, a.Target)
	}
	return targets.WriteCoords(w, list)
}

// WriteAllCoords lists every target the mask was generated from.
func WriteAllCoords(w io.Writer, c *mask.Configuration) error {
	return targets.WriteCoords(w, c.Pointing.OriginalTargets)
}

// WriteExcessCoords lists input targets that did not get a slit.
func WriteExcessCoords(w io.Writer, c *mask.Configuration) error {
	return targets.WriteCoords(w, c.ExcessTargets())
}
