package coords

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const arcsecPerDegree = 3600.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// SkyToTangent projects an equatorial position onto the sky-tangent plane in
// arcsec. RA is scaled by the cosine of the reference declination refDec, given
// in arcsec.
func SkyToTangent(c RaDec, refDec float64) r2.Vec {
	scale := math.Cos(radians(refDec / arcsecPerDegree))
	return r2.Vec{
		X: c.RaDegrees() * arcsecPerDegree * scale,
		Y: c.DecDegrees() * arcsecPerDegree,
	}
}

// TangentToSky inverts SkyToTangent.
func TangentToSky(p r2.Vec, refDec float64) RaDec {
	scale := math.Cos(radians(refDec / arcsecPerDegree))
	return FromDegrees(p.X/scale/arcsecPerDegree, p.Y/arcsecPerDegree)
}

// TangentToFocal moves p into the slit unit frame: translate to center, then
// rotate by the position angle pa in degrees.
func TangentToFocal(p, center r2.Vec, pa float64) r2.Vec {
	d := r2.Sub(p, center)
	sin, cos := math.Sincos(radians(pa))
	return r2.Vec{
		X: d.X*cos - d.Y*sin,
		Y: d.X*sin + d.Y*cos,
	}
}

// FocalToTangent inverts TangentToFocal.
func FocalToTangent(p, center r2.Vec, pa float64) r2.Vec {
	sin, cos := math.Sincos(radians(pa))
	return r2.Vec{
		X: p.X*cos + p.Y*sin + center.X,
		Y: -p.X*sin + p.Y*cos + center.Y,
	}
}

// WrapHour shifts the borderline hours 0 and 23 by twelve so that a field
// straddling 0h projects continuously. Other hours are returned unchanged.
func WrapHour(c RaDec) RaDec {
	switch c.RaHour {
	case 0:
		c.RaHour = 12
	case 23:
		c.RaHour = 11
	}
	return c
}

// UnwrapHour undoes WrapHour for a position computed in the wrapped frame.
func UnwrapHour(c RaDec) RaDec {
	h := math.Mod(c.RaHour-12, 24)
	if h < 0 {
		h += 24
	}
	c.RaHour = h
	return c
}

// SpansWrap reports whether a set of positions has both hour 0 and hour 23.
func SpansWrap(positions []RaDec) bool {
	var zero, late bool
	for _, c := range positions {
		switch c.RaHour {
		case 0:
			zero = true
		case 23:
			late = true
		}
	}
	return zero && late
}

// Projector converts between equatorial and focal-plane coordinates for one
// pointing. Positions going in and coming out are always in the real, unwrapped
// frame; the wrap is applied and undone internally.
type Projector struct {
	center  RaDec
	pa      float64
	wrap    bool
	refDec  float64
	tangent r2.Vec
}

func NewProjector(center RaDec, pa float64, wrap bool) Projector {
	inFrame := center
	if wrap {
		inFrame = WrapHour(center)
	}
	refDec := inFrame.DecDegrees() * arcsecPerDegree
	return Projector{
		center:  center,
		pa:      pa,
		wrap:    wrap,
		refDec:  refDec,
		tangent: SkyToTangent(inFrame, refDec),
	}
}

func (p Projector) Center() RaDec          { return p.center }
func (p Projector) PositionAngle() float64 { return p.pa }
func (p Projector) Wrapped() bool          { return p.wrap }

// CenterTangent is the tangent-plane position of the pointing center.
func (p Projector) CenterTangent() r2.Vec { return p.tangent }

// Project returns the tangent-plane and focal-plane positions of c.
func (p Projector) Project(c RaDec) (tangent, focal r2.Vec) {
	if p.wrap {
		c = WrapHour(c)
	}
	tangent = SkyToTangent(c, p.refDec)
	return tangent, TangentToFocal(tangent, p.tangent, p.pa)
}

// Tangent returns the tangent-plane position of a focal-plane point.
func (p Projector) Tangent(focal r2.Vec) r2.Vec {
	return FocalToTangent(focal, p.tangent, p.pa)
}

// ToSky returns the equatorial position of a focal-plane point.
func (p Projector) ToSky(focal r2.Vec) RaDec {
	c := TangentToSky(p.Tangent(focal), p.refDec)
	if p.wrap {
		c = UnwrapHour(c)
	}
	return c
}
