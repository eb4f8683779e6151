package maskio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"

	"slitmask/internal/coords"
	"slitmask/internal/mask"

	"gonum.org/v1/gonum/spatial/r2"
)

// regionSky converts tangent-plane arcsec into fk5 degrees for the region
// file, undoing the coordinate wrap.
type regionSky struct {
	proj   coords.Projector
	xScale float64
}

func (r regionSky) ra(x float64) float64 {
	ra := x / r.xScale / 3600
	if r.proj.Wrapped() {
		ra = math.Mod(ra+180, 360)
	}
	return ra
}

func (r regionSky) point(p r2.Vec) string {
	return f5(r.ra(p.X)) + "," + f5(p.Y/3600)
}

// textAngle keeps slit labels readable whatever the position angle.
func textAngle(pa, tilt float64) float64 {
	a := pa + 270 + tilt
	a = a - 180*math.Floor(a/180) + 180
	for a > 90 && a < 270 {
		a -= 90
	}
	return a
}

// WriteRegions writes a DS9 region file outlining the focal plane, the
// science slits and the alignment boxes.
func WriteRegions(w io.Writer, c *mask.Configuration) error {
	inst := c.Instrument
	proj := c.Pointing.Projector()
	cp := proj.CenterTangent()
	pa := c.Pointing.PositionAngle
	paRad := pa * math.Pi / 180
	sky := regionSky{proj: proj, xScale: math.Cos(cp.Y / 3600 * math.Pi / 180)}
	radius := inst.FocalPlaneRadius
	height := inst.Height()
	deltaX := 5 * math.Cos(paRad)
	deltaY := 5 * math.Sin(paRad)

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `global color=cyan font="helvetica 10 bold" width=2 select=1 highlite=0 edit=0 move=0 delete=1 include=1 fixed=0 source`)
	fmt.Fprintln(bw, "fk5")

	// Baffle corners where the square bar array meets the circular field.
	start := math.Acos(inst.Width/2/radius) * 180 / math.Pi
	stop := 90 - start
	onCircle := func(angle float64) r2.Vec {
		rad := angle * math.Pi / 180
		return r2.Vec{X: cp.X + radius*math.Sin(rad), Y: cp.Y + radius*math.Cos(rad)}
	}
	for k := 0.0; k < 4; k++ {
		fmt.Fprintf(bw, "panda(%s,%s,%s,1,%s\",%s\",1) #color=magenta \n",
			sky.point(cp), f2(start+pa+90*k), f2(stop+pa+90*k), f1(radius), f1(radius))
		fmt.Fprintf(bw, "line(%s,%s) #color=magenta\n",
			sky.point(onCircle(pa-start+90*k)), sky.point(onCircle(pa+start+90*k)))
	}

	// Usable field box, offset along the rows by the x center.
	dx := c.Params.XCenter * 60
	box := r2.Vec{X: cp.X + dx*math.Cos(-paRad), Y: cp.Y + dx*math.Sin(-paRad)}
	fmt.Fprintf(bw, "box(%s,%s\",%s\",%s)\t# color=red font=\"helvetica 15 normal\" text={}\n",
		sky.point(box), f5(c.Params.XRange*60), f5(height), f3(pa))

	label := func(step float64, text string) {
		at := r2.Vec{X: cp.X + height/20*step*math.Sin(paRad), Y: cp.Y + height/20*step*math.Cos(paRad)}
		fmt.Fprintf(bw, "# text(%s)\t textangle=%s \t text={%s} color=cyan font=\"helvetica 15 bold\"\n",
			sky.point(at), f2(pa), text)
	}
	center := sexagesimal(c.Pointing.Center)
	label(11, "PA="+f2(pa))
	label(12, fmt.Sprintf("Center=%sh %sm %ss  %sdeg %s' %s\"",
		center[0], center[1], center[2], center[3], center[4], center[5]))
	label(13, c.Params.MaskName)

	ta := f2(textAngle(pa, inst.SlitTiltAngle))
	boxAngle := f3(inst.SlitTiltAngle + pa)
	for _, s := range c.Science {
		t := s.Target
		if t == nil {
			continue
		}
		fmt.Fprintf(bw, "circle(%s,0.5\")\t# text={}\n", sky.point(t.Sky))
		fmt.Fprintf(bw, "# text(%s) \t textangle=%s \t text={%s}\n",
			sky.point(r2.Vec{X: t.Sky.X + deltaX, Y: t.Sky.Y + deltaY}), ta, t.Name)

		slit, _ := proj.Project(s.Center)
		fmt.Fprintf(bw, "box(%s,%s\",%s\",%s)\t #color=yellow\n",
			sky.point(slit), f5(s.Width), f5(s.Length), boxAngle)
		fmt.Fprintf(bw, "# text(%s) \t textangle=%s \t text={%d} color=yellow font=\"helvetica 10 normal\"\n",
			sky.point(r2.Vec{X: slit.X - deltaX, Y: slit.Y - deltaY}), ta, s.Number)
	}

	aligns := sortedMechanical(c.Alignment)
	slices.Reverse(aligns)
	for _, a := range aligns {
		t := a.Target
		if t == nil {
			continue
		}
		fmt.Fprintf(bw, "circle(%s,0.5\")\t# text={}\n", sky.point(t.Sky))
		fmt.Fprintf(bw, "# text(%s) \t textangle=%s \t text={%s} color=red\n",
			sky.point(r2.Vec{X: t.Sky.X + deltaX, Y: t.Sky.Y + deltaY}), ta, t.Name)

		focal := inst.SlitPosition(inst.NumberOfBarPairs-a.Number, 1, t.FocalPlane)
		fmt.Fprintf(bw, "box(%s,%s\",%s\",%s)\t #color=red\n",
			sky.point(proj.Tangent(focal)), f5(a.Width), f5(inst.SingleSlitHeight()), boxAngle)
	}
	return bw.Flush()
}
