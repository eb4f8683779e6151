package maskio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"
	"slitmask/internal/mask"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func sampleConfig(t *testing.T) *mask.Configuration {
	t.Helper()
	inst := instrument.Default()
	p := mask.Pointing{Center: coords.NewRaDec(10, 30, 0, 20, 0, 0), PositionAngle: 12.5}
	proj := p.Projector()
	at := func(name string, prio, x float64, row int) *mask.Target {
		return &mask.Target{
			Name:      name,
			Priority:  prio,
			Magnitude: 20,
			Coord:     proj.ToSky(r2.Vec{X: x, Y: inst.SlitCenterY(row, 1)}),
			Epoch:     2000,
			Equinox:   2000,
		}
	}
	p.Targets = []*mask.Target{at("a", 10, -30, 5), at("b", 5, 12, 12), at("c", 20, 40, 25), at("d", 8, -5, 38)}
	p.AlignmentStars = []*mask.Target{at("s1", -1, -60, 3), at("s2", -1, 50, 20), at("s3", -1, 10, 42)}
	p.OriginalTargets = append(append([]*mask.Target{}, p.Targets...), p.AlignmentStars...)
	p.OriginalTargets = append(p.OriginalTargets, at("far", 1, 500, 10))

	params := mask.EditParams{
		MaskName:                "field1",
		SlitWidth:               0.7,
		DitherSpace:             2.5,
		MinimumAlignmentStars:   2,
		AlignmentStarEdgeBuffer: 0.5,
		XRange:                  3,
	}
	c := mask.Generate(inst, p, params, true)
	require.Len(t, c.Alignment, 2)
	return c
}

func TestXMLRoundTrip(t *testing.T) {
	c := sampleConfig(t)
	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, c, ""))
	assert.Contains(t, buf.String(), `<?xml-stylesheet type="text/xsl" href="msc.xsl"?>`)

	got, warnings, err := ReadXML(&buf, c.Instrument)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "field1", got.MaskName)
	assert.Equal(t, "2.0", got.Version)
	assert.Equal(t, mask.StatusSaved, got.Status)
	assert.InDelta(t, c.Pointing.TotalPriority, got.Pointing.TotalPriority, 0.005)
	assert.Equal(t, c.Params.DitherSpace, got.Params.DitherSpace)
	assert.Equal(t, 2, got.Params.MinimumAlignmentStars)

	require.Len(t, got.Mechanical, len(c.Mechanical))
	for i, m := range got.Mechanical {
		want := c.Mechanical[i]
		assert.Equal(t, want.Number, m.Number)
		assert.InDelta(t, want.CenterPosition, m.CenterPosition, 5e-4)
		assert.InDelta(t, want.Width, m.Width, 5e-4)
		assert.Equal(t, want.Name(), m.Name())
		assert.Equal(t, want.Rows, m.Rows)
	}

	require.Len(t, got.Science, len(c.Science))
	for i, s := range got.Science {
		want := c.Science[i]
		assert.Equal(t, want.Number, s.Number)
		assert.Equal(t, want.Rows, s.Rows)
		assert.Equal(t, want.Target.Name, s.Target.Name)
		assert.Equal(t, want.Target.InValidSlit, s.Target.InValidSlit)
		for _, m := range got.Mechanical {
			if m.TargetName == s.Target.Name {
				assert.Same(t, s.Target, m.Target)
			}
		}
	}

	require.Len(t, got.Alignment, 2)
	for i, a := range got.Alignment {
		assert.Equal(t, c.Alignment[i].Number, a.Number)
		assert.Equal(t, c.Alignment[i].Target.Name, a.Target.Name)
		assert.Equal(t, got.Instrument.NumberOfBarPairs-a.Number, a.Target.AlignRow)
	}
	assert.Len(t, got.Pointing.AlignmentStars, 2)
}

func TestXMLKeepsNegativeZeroDeclination(t *testing.T) {
	inst := instrument.Default()
	c := mask.New(inst, "south", true)
	c.Pointing.Center = coords.NewRaDec(1, 0, 0, math.Copysign(0, -1), 30, 0)

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, c, "1.5"))
	assert.Contains(t, buf.String(), `centerDecD="-00"`)

	got, _, err := ReadXML(&buf, inst)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.Version)
	assert.True(t, got.Pointing.Center.Negative)
	assert.InDelta(t, -0.5, got.Pointing.Center.DecDegrees(), 1e-12)
}

const minimalDoc = `<?xml version="1.0"?>
<slitConfiguration mscVersion="2.0">
  <maskDescription maskName="m" totalPriority="0" centerRaH="10" centerRaM="00" centerRaS="00.00" centerDecD="20" centerDecM="00" centerDecS="00.00" maskPA="0.00"/>
  <mechanicalSlitConfig>
    <mechanicalSlit slitNumber="1" centerPositionArcsec="0.000" slitWidthArcsec="0.700"/>
  </mechanicalSlitConfig>
  <scienceSlitConfig/>
</slitConfiguration>
`

func TestReadXMLWarnsOnMissingTarget(t *testing.T) {
	got, warnings, err := ReadXML(strings.NewReader(minimalDoc), instrument.Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "mechanical slit 1")
	require.Len(t, got.Mechanical, 1)
	assert.Equal(t, mask.Unassigned, got.Mechanical[0].Rows)
}

func TestReadXMLFormatErrors(t *testing.T) {
	cases := []struct {
		name      string
		doc       string
		element   string
		attribute string
	}{
		{
			name:    "wrong root",
			doc:     strings.ReplaceAll(minimalDoc, "slitConfiguration", "slitConfig"),
			element: "slitConfig",
		},
		{
			name:      "missing attribute",
			doc:       strings.Replace(minimalDoc, `maskName="m" `, "", 1),
			element:   "maskDescription",
			attribute: "maskName",
		},
		{
			name:      "bad number",
			doc:       strings.Replace(minimalDoc, `centerRaH="10"`, `centerRaH="ten"`, 1),
			element:   "maskDescription",
			attribute: "centerRaH",
		},
		{
			name:      "bad integer",
			doc:       strings.Replace(minimalDoc, `slitNumber="1"`, `slitNumber="1.5"`, 1),
			element:   "mechanicalSlit",
			attribute: "slitNumber",
		},
		{
			name:    "missing section",
			doc:     strings.Replace(minimalDoc, "<scienceSlitConfig/>", "", 1),
			element: "scienceSlitConfig",
		},
		{
			name:    "unknown child",
			doc:     strings.Replace(minimalDoc, "<scienceSlitConfig/>", "<scienceSlitConfig/><bogus/>", 1),
			element: "bogus",
		},
		{
			name:    "unknown slit child",
			doc:     strings.Replace(minimalDoc, "<scienceSlitConfig/>", "<scienceSlitConfig><slit/></scienceSlitConfig>", 1),
			element: "slit",
		},
		{
			name: "not xml",
			doc:  "<<<",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadXML(strings.NewReader(tc.doc), instrument.Default())
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tc.element, fe.Element)
			assert.Equal(t, tc.attribute, fe.Attribute)
		})
	}
}

func TestSaveXMLLifecycle(t *testing.T) {
	dir := t.TempDir()
	c := sampleConfig(t)
	path := filepath.Join(dir, "field1.xml")
	require.NoError(t, SaveXML(path, c))
	assert.Equal(t, mask.StatusSaved, c.Status)
	assert.Equal(t, path, c.OriginalFilename)

	got, _, err := ReadXMLFile(path, c.Instrument)
	require.NoError(t, err)
	assert.Equal(t, path, got.OriginalFilename)

	preset := mask.LongSlit(c.Instrument, 46, 0.7)
	err = SaveXML(filepath.Join(dir, "ls.xml"), preset)
	assert.ErrorIs(t, err, mask.ErrUnsaveable)
	_, statErr := os.Stat(filepath.Join(dir, "ls.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStarList(t *testing.T) {
	c := sampleConfig(t)
	var buf bytes.Buffer
	require.NoError(t, WriteStarList(&buf, c))
	assert.Equal(t, "field1          10 30 00.00  20 00 00.00 2000.00 rotdest=12.50 rotmode=PA\n", buf.String())

	c.MaskName = "a-very-long-mask-name"
	buf.Reset()
	require.NoError(t, WriteStarList(&buf, c))
	assert.True(t, strings.HasPrefix(buf.String(), "a-very-long-mas 10 30"))
}

func TestCSUScripts(t *testing.T) {
	c := sampleConfig(t)
	inst := c.Instrument

	var buf bytes.Buffer
	require.NoError(t, WriteScienceScript(&buf, c, false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2+2*inst.NumberOfBarPairs)
	assert.Equal(t, `modify -s mcsus setupname="field1"`, lines[0])
	first := c.Mechanical[0]
	assert.Equal(t, fmt.Sprintf("modify -s mcsus b01targ= %7.3f", inst.RightBarPosition(first.CenterPosition, first.Width)), lines[1])
	assert.Equal(t, fmt.Sprintf("modify -s mcsus b02targ= %7.3f", inst.LeftBarPosition(first.CenterPosition, first.Width)), lines[2])
	assert.Equal(t, "modify -s mcsus setupinit=1", lines[len(lines)-1])

	buf.Reset()
	require.NoError(t, WriteAlignmentScript(&buf, c, true))
	out := buf.String()
	assert.Contains(t, out, `setupname="field1 (align)"`)
	assert.NotContains(t, out, "setupinit")
	a := c.Alignment[0]
	assert.Contains(t, out, fmt.Sprintf("b%02dtarg= %7.3f\n", a.RightBarNumber(), inst.RightBarPosition(a.CenterPosition, a.Width)))
}

func TestFITSTables(t *testing.T) {
	c := sampleConfig(t)
	tables := fitsTables(c, true)
	require.Len(t, tables, 4)
	assert.Len(t, tables[0].rows, len(c.Science)+len(c.Alignment))
	assert.Len(t, tables[1].rows, len(c.Science))
	assert.Len(t, tables[3].rows, len(c.Alignment))

	mech := tables[2]
	require.Len(t, mech.rows, c.Instrument.NumberOfBarPairs)
	for _, a := range c.Alignment {
		row := mech.rows[a.Number-1]
		assert.Equal(t, a.Target.Name, row[1])
		assert.Equal(t, "4.000", row[4])
	}
	for _, row := range fitsTables(c, false)[2].rows {
		assert.Equal(t, "0.700", row[4])
	}
	for _, tbl := range tables {
		for _, row := range tbl.rows {
			assert.Len(t, row, len(tbl.cols), tbl.name)
		}
	}
}

func TestWriteFITS(t *testing.T) {
	c := sampleConfig(t)
	var buf bytes.Buffer
	require.NoError(t, WriteFITS(&buf, c, false))

	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	hdus := f.HDUs()
	require.Len(t, hdus, 5)
	var names []string
	for _, h := range hdus[1:] {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{ExtTargets, ExtScience, ExtMechanical, ExtAlignment}, names)
	mech, ok := hdus[3].(*fitsio.Table)
	require.True(t, ok)
	assert.EqualValues(t, c.Instrument.NumberOfBarPairs, mech.NumRows())
}

func TestRegions(t *testing.T) {
	c := sampleConfig(t)
	var buf bytes.Buffer
	require.NoError(t, WriteRegions(&buf, c))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "global color=cyan"))
	assert.Contains(t, out, "\nfk5\n")
	assert.Equal(t, 4, strings.Count(out, "panda("))
	assert.Equal(t, 4, strings.Count(out, "line("))
	assert.Equal(t, len(c.Science), strings.Count(out, "#color=yellow"))
	assert.Equal(t, len(c.Alignment), strings.Count(out, "#color=red"))
	assert.Contains(t, out, "text={field1}")
	assert.Contains(t, out, "text={PA=12.50}")
}

func TestTextAngleStaysReadable(t *testing.T) {
	for pa := -180.0; pa <= 360; pa += 7.5 {
		a := textAngle(pa, 4)
		assert.False(t, a > 90 && a < 270, "pa %v gave %v", pa, a)
	}
}

func TestSlitListAndCoords(t *testing.T) {
	c := sampleConfig(t)
	var buf bytes.Buffer
	require.NoError(t, WriteSlitList(&buf, c))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(c.Science))
	fields := strings.Split(lines[0], "\t")
	assert.Len(t, fields, 18)
	assert.Equal(t, "1", fields[0])
	assert.Equal(t, c.Science[0].Target.Name, fields[9])

	buf.Reset()
	require.NoError(t, WriteMaskCoords(&buf, c))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), len(c.Science)+len(c.Alignment))

	buf.Reset()
	require.NoError(t, WriteExcessCoords(&buf, c))
	excess := buf.String()
	assert.Contains(t, excess, "far ")
	assert.NotContains(t, excess, "a  ")
}

func TestWriteProducts(t *testing.T) {
	dir := t.TempDir()
	c := sampleConfig(t)
	written, err := WriteProducts(dir, c)
	require.NoError(t, err)
	assert.Len(t, written, len(Formats()))
	assert.Equal(t, mask.StatusSaved, c.Status)
	for _, p := range written {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), p)
	}

	open := mask.OpenMask(c.Instrument)
	written, err = WriteProducts(filepath.Join(dir, "open"), open)
	require.NoError(t, err)
	assert.Len(t, written, len(Formats())-1)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XML ")
	require.NoError(t, err)
	assert.Equal(t, FormatXML, f)
	_, err = ParseFormat("pdf")
	assert.Error(t, err)
	assert.Equal(t, "m_align.sh", FormatAlignScript.FileName("m"))
}
