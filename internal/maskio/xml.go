package maskio

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"
	"slitmask/internal/mask"
)

// StylesheetHref is referenced by the xml-stylesheet processing instruction so
// that browsers render the document as a table.
const StylesheetHref = "msc.xsl"

const (
	elRoot        = "slitConfiguration"
	elDescription = "maskDescription"
	elMechConfig  = "mechanicalSlitConfig"
	elMech        = "mechanicalSlit"
	elSciConfig   = "scienceSlitConfig"
	elSci         = "scienceSlit"
	elAlignment   = "alignment"
	elAlign       = "alignSlit"
	elArguments   = "mascgenArguments"
)

// node is a generic element used for both encoding and decoding.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
}

func element(name string, kv ...string) node {
	n := node{XMLName: xml.Name{Local: name}}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return n
}

func sortedMechanical(in []mask.MechanicalSlit) []mask.MechanicalSlit {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b mask.MechanicalSlit) int { return a.Number - b.Number })
	return out
}

func sortedScience(in []mask.ScienceSlit) []mask.ScienceSlit {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b mask.ScienceSlit) int { return a.Number - b.Number })
	return out
}

func targetAttrs(t *mask.Target, centerDistance float64) []string {
	if t == nil {
		t = &mask.Target{}
	}
	s := sexagesimal(t.Coord)
	return []string{
		"target", t.Name,
		"targetPriority", f2(t.Priority),
		"targetMag", f2(t.Magnitude),
		"targetCenterDistance", f2(centerDistance),
		"targetRaH", s[0], "targetRaM", s[1], "targetRaS", s[2],
		"targetDecD", s[3], "targetDecM", s[4], "targetDecS", s[5],
		"targetEpoch", f2(t.Epoch),
		"targetEquinox", f2(t.Equinox),
	}
}

func barAttrs(inst instrument.Params, m mask.MechanicalSlit, numberAttr string) []string {
	return []string{
		numberAttr, strconv.Itoa(m.Number),
		"leftBarNumber", strconv.Itoa(m.LeftBarNumber()),
		"rightBarNumber", strconv.Itoa(m.RightBarNumber()),
		"leftBarPositionMM", f3(inst.LeftBarPosition(m.CenterPosition, m.Width)),
		"rightBarPositionMM", f3(inst.RightBarPosition(m.CenterPosition, m.Width)),
		"centerPositionArcsec", f3(m.CenterPosition),
		"slitWidthArcsec", f3(m.Width),
	}
}

// WriteXML encodes c as an MSC document. version is written as the mscVersion
// attribute; an empty version uses the instrument's.
func WriteXML(w io.Writer, c *mask.Configuration, version string) error {
	if version == "" {
		version = c.Instrument.MSCVersion
	}
	inst := c.Instrument
	center := sexagesimal(c.Pointing.Center)

	root := element(elRoot, "mscVersion", version)
	root.Children = append(root.Children, element(elDescription,
		"maskName", c.MaskName,
		"totalPriority", f2(c.Pointing.TotalPriority),
		"centerRaH", center[0], "centerRaM", center[1], "centerRaS", center[2],
		"centerDecD", center[3], "centerDecM", center[4], "centerDecS", center[5],
		"maskPA", f2(c.Pointing.PositionAngle),
	))

	mech := element(elMechConfig)
	for _, m := range sortedMechanical(c.Mechanical) {
		kv := append(barAttrs(inst, m, "slitNumber"), "target", m.Name())
		mech.Children = append(mech.Children, element(elMech, kv...))
	}
	root.Children = append(root.Children, mech)

	sci := element(elSciConfig)
	for _, s := range sortedScience(c.Science) {
		pos := sexagesimal(s.Center)
		kv := []string{
			"slitNumber", strconv.Itoa(s.Number),
			"slitRaH", pos[0], "slitRaM", pos[1], "slitRaS", pos[2],
			"slitDecD", pos[3], "slitDecM", pos[4], "slitDecS", pos[5],
			"slitWidthArcsec", f2(s.Width),
			"slitLengthArcsec", f2(s.Length),
		}
		kv = append(kv, targetAttrs(s.Target, s.CenterDistance)...)
		sci.Children = append(sci.Children, element(elSci, kv...))
	}
	root.Children = append(root.Children, sci)

	align := element(elAlignment)
	for _, a := range sortedMechanical(c.Alignment) {
		kv := append(barAttrs(inst, a, "mechSlitNumber"), targetAttrs(a.Target, a.CenterDistance)...)
		align.Children = append(align.Children, element(elAlign, kv...))
	}
	root.Children = append(root.Children, align)

	p := c.Params
	root.Children = append(root.Children, element(elArguments,
		"maskName", p.MaskName,
		"slitWidth", f3(p.SlitWidth),
		"ditherSpace", f3(p.DitherSpace),
		"minimumAlignmentStars", strconv.Itoa(p.MinimumAlignmentStars),
		"alignmentStarEdgeBuffer", f3(p.AlignmentStarEdgeBuffer),
		"xCenter", f3(p.XCenter),
		"xRange", f3(p.XRange),
	))

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "<?xml-stylesheet type=\"text/xsl\" href=%q?>\n", StylesheetHref); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// SaveXML writes c to path and marks it saved. Unsaveable presets are refused
// with mask.ErrUnsaveable.
func SaveXML(path string, c *mask.Configuration) error {
	if !c.Saveable() {
		return fmt.Errorf("saving %s: %w", c.MaskName, mask.ErrUnsaveable)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	f, err := os.Create(abs)
	if err != nil {
		return fmt.Errorf("creating %s: %w", abs, err)
	}
	if err := WriteXML(f, c, ""); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.MarkSaved(abs)
	return nil
}

// attrs reads typed attributes from one element. The first failure sticks and
// later reads return zero values.
type attrs struct {
	element string
	values  map[string]string
	err     error
}

func newAttrs(n node) *attrs {
	a := &attrs{element: n.XMLName.Local, values: make(map[string]string, len(n.Attrs))}
	for _, at := range n.Attrs {
		a.values[at.Name.Local] = at.Value
	}
	return a
}

func (a *attrs) fail(name, reason string) {
	if a.err == nil {
		a.err = &FormatError{Element: a.element, Attribute: name, Reason: reason}
	}
}

func (a *attrs) optional(name string) (string, bool) {
	v, ok := a.values[name]
	return v, ok
}

func (a *attrs) str(name string) string {
	v, ok := a.values[name]
	if !ok {
		a.fail(name, "required attribute missing")
	}
	return v
}

func (a *attrs) float(name string) float64 {
	v := a.str(name)
	if a.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		a.fail(name, fmt.Sprintf("not a number: %q", v))
	}
	return f
}

func (a *attrs) int(name string) int {
	v := a.str(name)
	if a.err != nil {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		a.fail(name, fmt.Sprintf("not an integer: %q", v))
	}
	return i
}

func (a *attrs) radec(prefix string) coords.RaDec {
	return coords.NewRaDec(
		a.float(prefix+"RaH"), a.float(prefix+"RaM"), a.float(prefix+"RaS"),
		a.float(prefix+"DecD"), a.float(prefix+"DecM"), a.float(prefix+"DecS"),
	)
}

func (a *attrs) target() *mask.Target {
	return &mask.Target{
		Name:           a.str("target"),
		Priority:       a.float("targetPriority"),
		Magnitude:      a.float("targetMag"),
		CenterDistance: a.float("targetCenterDistance"),
		Coord:          a.radec("target"),
		Epoch:          a.float("targetEpoch"),
		Equinox:        a.float("targetEquinox"),
	}
}

// ReadXML decodes an MSC document for inst. Structural problems are returned
// as *FormatError; recoverable oddities are returned as warnings. The result is
// relinked and SAVED.
func ReadXML(r io.Reader, inst instrument.Params) (*mask.Configuration, []string, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, nil, &FormatError{Reason: fmt.Sprintf("malformed document: %v", err)}
	}
	if root.XMLName.Local != elRoot {
		return nil, nil, &FormatError{Element: root.XMLName.Local, Reason: "root element must be " + elRoot}
	}

	c := mask.New(inst, "", true)
	c.Mechanical = nil
	var warnings []string
	if v, ok := newAttrs(root).optional("mscVersion"); ok {
		c.Version = v
	}

	found := map[string]bool{}
	for _, child := range root.Children {
		name := child.XMLName.Local
		found[name] = true
		var err error
		switch name {
		case elDescription:
			err = readDescription(c, child)
		case elMechConfig:
			warnings, err = readMechanical(c, child, warnings)
		case elSciConfig:
			err = readScience(c, child)
		case elAlignment:
			err = readAlignment(c, child)
		case elArguments:
			warnings = readArguments(c, child, warnings)
		default:
			err = &FormatError{Element: name, Reason: "not a valid child of " + elRoot}
		}
		if err != nil {
			return nil, warnings, err
		}
	}
	for _, req := range []string{elDescription, elMechConfig, elSciConfig} {
		if !found[req] {
			return nil, warnings, &FormatError{Element: req, Reason: "required element not found"}
		}
	}
	if c.Params.MaskName == "" {
		c.Params.MaskName = c.MaskName
	}

	c.Relink()
	c.Status = mask.StatusSaved
	return c, warnings, nil
}

// ReadXMLFile reads path and records it as the configuration's file.
func ReadXMLFile(path string, inst instrument.Params) (*mask.Configuration, []string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()
	c, warnings, err := ReadXML(f, inst)
	if err != nil {
		return nil, warnings, fmt.Errorf("%s: %w", abs, err)
	}
	c.MarkSaved(abs)
	return c, warnings, nil
}

func readDescription(c *mask.Configuration, n node) error {
	a := newAttrs(n)
	c.MaskName = a.str("maskName")
	c.Pointing.TotalPriority = a.float("totalPriority")
	c.Pointing.Center = a.radec("center")
	c.Pointing.PositionAngle = a.float("maskPA")
	return a.err
}

func readMechanical(c *mask.Configuration, n node, warnings []string) ([]string, error) {
	for _, child := range n.Children {
		if child.XMLName.Local != elMech {
			return warnings, &FormatError{Element: child.XMLName.Local, Reason: "not a valid child of " + elMechConfig}
		}
		a := newAttrs(child)
		m := mask.MechanicalSlit{
			Number:         a.int("slitNumber"),
			CenterPosition: a.float("centerPositionArcsec"),
			Width:          a.float("slitWidthArcsec"),
		}
		if a.err != nil {
			return warnings, a.err
		}
		if name, ok := a.optional("target"); ok {
			m.TargetName = name
		} else {
			warnings = append(warnings, fmt.Sprintf("mechanical slit %d does not have a target tag", m.Number))
		}
		c.Mechanical = append(c.Mechanical, m)
	}
	return warnings, nil
}

func readScience(c *mask.Configuration, n node) error {
	for _, child := range n.Children {
		if child.XMLName.Local != elSci {
			return &FormatError{Element: child.XMLName.Local, Reason: "not a valid child of " + elSciConfig}
		}
		a := newAttrs(child)
		s := mask.ScienceSlit{
			Number: a.int("slitNumber"),
			Center: a.radec("slit"),
			Width:  a.float("slitWidthArcsec"),
			Length: a.float("slitLengthArcsec"),
			Target: a.target(),
		}
		if a.err != nil {
			return a.err
		}
		s.CenterDistance = s.Target.CenterDistance
		c.Science = append(c.Science, s)
	}
	return nil
}

func readAlignment(c *mask.Configuration, n node) error {
	for _, child := range n.Children {
		if child.XMLName.Local != elAlign {
			return &FormatError{Element: child.XMLName.Local, Reason: "not a valid child of " + elAlignment}
		}
		a := newAttrs(child)
		m := mask.MechanicalSlit{
			Number:         a.int("mechSlitNumber"),
			CenterPosition: a.float("centerPositionArcsec"),
			Width:          a.float("slitWidthArcsec"),
			Rows:           1,
			Target:         a.target(),
		}
		if a.err != nil {
			return a.err
		}
		m.TargetName = m.Target.Name
		m.CenterDistance = m.Target.CenterDistance
		c.Alignment = append(c.Alignment, m)
	}
	return nil
}

// readArguments is lenient: unreadable generation parameters only produce
// warnings since the layout itself is already complete.
func readArguments(c *mask.Configuration, n node, warnings []string) []string {
	a := newAttrs(n)
	num := func(name string, dst *float64) {
		v, ok := a.optional(name)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring %s=%q", elArguments, name, v))
			return
		}
		*dst = f
	}
	p := &c.Params
	if v, ok := a.optional("maskName"); ok {
		p.MaskName = v
	}
	num("slitWidth", &p.SlitWidth)
	num("ditherSpace", &p.DitherSpace)
	num("alignmentStarEdgeBuffer", &p.AlignmentStarEdgeBuffer)
	num("xCenter", &p.XCenter)
	num("xRange", &p.XRange)
	var stars float64
	num("minimumAlignmentStars", &stars)
	p.MinimumAlignmentStars = int(stars)
	return warnings
}
