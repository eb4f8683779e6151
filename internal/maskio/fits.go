package maskio

import (
	"fmt"
	"io"
	"strconv"

	"slitmask/internal/mask"

	"github.com/astrogo/fitsio"
)

// Extension names written by WriteFITS.
const (
	ExtTargets    = "Target_List"
	ExtScience    = "Science_Slit_List"
	ExtMechanical = "Mechanical_Slit_List"
	ExtAlignment  = "Alignment_Slit_List"
)

type column struct {
	name string
	unit string
}

type asciiTable struct {
	name string
	cols []column
	rows [][]string
}

var (
	targetColumns = []column{
		{name: "Target_Name"}, {name: "Priority"}, {name: "Magnitude"},
		{name: "RA_Hours"}, {name: "RA_Minutes"}, {name: "RA_Seconds"},
		{name: "Dec_Degrees"}, {name: "Dec_Minutes"}, {name: "Dec_Seconds"},
		{name: "Epoch"}, {name: "Equinox"},
	}
	scienceColumns = []column{
		{name: "Slit_Number"},
		{name: "Slit_RA_Hours"}, {name: "Slit_RA_Minutes"}, {name: "Slit_RA_Seconds"},
		{name: "Slit_Dec_Degrees"}, {name: "Slit_Dec_Minutes"}, {name: "Slit_Dec_Seconds"},
		{name: "Slit_width", unit: "arcsec"},
		{name: "Slit_length", unit: "arcsec"},
		{name: "Target_to_center_of_slit_distance", unit: "arcsec"},
		{name: "Target_Name"}, {name: "Target_Priority"},
	}
	mechanicalColumns = []column{
		{name: "Slit_Number"}, {name: "Target_in_Slit"}, {name: "Target_Priority"},
		{name: "Position_of_Slit", unit: "arcsec"},
		{name: "Slit_width", unit: "arcsec"},
		{name: "Target_to_center_of_slit_distance", unit: "arcsec"},
	}
	alignmentColumns = []column{
		{name: "Slit_Number"},
		{name: "Position_of_Slit", unit: "arcsec"},
		{name: "Slit_width", unit: "arcsec"},
		{name: "Target_to_center_of_slit_distance", unit: "arcsec"},
		{name: "Target_in_Slit"}, {name: "Target_Priority"}, {name: "Target_Magnitude"},
		{name: "Target_RA_Hours"}, {name: "Target_RA_Minutes"}, {name: "Target_RA_Seconds"},
		{name: "Target_Dec_Degrees"}, {name: "Target_Dec_Minutes"}, {name: "Target_Dec_Seconds"},
		{name: "Target_Epoch"}, {name: "Target_Equinox"},
	}
)

func targetRow(t *mask.Target) []string {
	if t == nil {
		t = &mask.Target{}
	}
	s := sexagesimal(t.Coord)
	return []string{
		t.Name, f2(t.Priority), f2(t.Magnitude),
		s[0], s[1], s[2], s[3], s[4], s[5],
		f1(t.Epoch), f1(t.Equinox),
	}
}

func targetPriority(t *mask.Target) float64 {
	if t == nil {
		return 0
	}
	return t.Priority
}

// fitsTables lays out the four slit tables. With doAlign the alignment boxes
// replace their rows in the mechanical table.
func fitsTables(c *mask.Configuration, doAlign bool) []asciiTable {
	science := sortedScience(c.Science)

	targets := asciiTable{name: ExtTargets, cols: targetColumns}
	for _, s := range science {
		targets.rows = append(targets.rows, targetRow(s.Target))
	}
	for _, a := range c.Alignment {
		targets.rows = append(targets.rows, targetRow(a.Target))
	}

	sci := asciiTable{name: ExtScience, cols: scienceColumns}
	for _, s := range science {
		pos := sexagesimal(s.Center)
		name := ""
		if s.Target != nil {
			name = s.Target.Name
		}
		sci.rows = append(sci.rows, []string{
			strconv.Itoa(s.Number),
			pos[0], pos[1], pos[2], pos[3], pos[4], pos[5],
			f3(s.Width), f3(s.Length), f3(s.CenterDistance),
			name, f2(targetPriority(s.Target)),
		})
	}

	mech := asciiTable{name: ExtMechanical, cols: mechanicalColumns}
	rows := sortedMechanical(c.Mechanical)
	if doAlign {
		rows = alignedMechanical(c)
	}
	for _, m := range rows {
		mech.rows = append(mech.rows, []string{
			strconv.Itoa(m.Number), m.Name(), f2(targetPriority(m.Target)),
			f3(m.CenterPosition), f3(m.Width), f3(m.CenterDistance),
		})
	}

	align := asciiTable{name: ExtAlignment, cols: alignmentColumns}
	for _, a := range sortedMechanical(c.Alignment) {
		row := []string{strconv.Itoa(a.Number), f3(a.CenterPosition), f3(a.Width), f3(a.CenterDistance)}
		align.rows = append(align.rows, append(row, targetRow(a.Target)...))
	}

	return []asciiTable{targets, sci, mech, align}
}

// WriteFITS writes an empty primary HDU followed by the four slit tables as
// ASCII table extensions.
func WriteFITS(w io.Writer, c *mask.Configuration, doAlign bool) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("creating fits stream: %w", err)
	}
	if err := writeHDUs(f, c, doAlign); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeHDUs(f *fitsio.File, c *mask.Configuration, doAlign bool) error {
	phdr := fitsio.NewHeader([]fitsio.Card{
		{Name: "MASKNAME", Value: c.MaskName, Comment: "slit mask name"},
		{Name: "INSTRUME", Value: c.Instrument.Name, Comment: "instrument"},
		{Name: "MASKPA", Value: c.Pointing.PositionAngle, Comment: "mask position angle (deg)"},
	}, fitsio.IMAGE_HDU, 8, []int{})
	phdu, err := fitsio.NewPrimaryHDU(phdr)
	if err != nil {
		return fmt.Errorf("building primary hdu: %w", err)
	}
	if err := f.Write(phdu); err != nil {
		return fmt.Errorf("writing primary hdu: %w", err)
	}

	for _, t := range fitsTables(c, doAlign) {
		if err := writeTable(f, t); err != nil {
			return fmt.Errorf("writing %s: %w", t.name, err)
		}
	}
	return nil
}

func writeTable(f *fitsio.File, t asciiTable) error {
	cols := make([]fitsio.Column, len(t.cols))
	for i, c := range t.cols {
		width := 1
		for _, row := range t.rows {
			width = max(width, len(row[i]))
		}
		cols[i] = fitsio.Column{Name: c.name, Format: fmt.Sprintf("A%d", width), Unit: c.unit}
	}
	tbl, err := fitsio.NewTable(t.name, cols, fitsio.ASCII_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	args := make([]any, len(t.cols))
	for _, row := range t.rows {
		for i := range row {
			args[i] = &row[i]
		}
		if err := tbl.Write(args...); err != nil {
			return err
		}
	}
	return f.Write(tbl)
}
