package mask

import (
	"slitmask/internal/coords"

	"gonum.org/v1/gonum/spatial/r2"
)

// Unassigned marks a mechanical row that holds no target yet.
const Unassigned = -1

// Target is an object that may be placed in a slit. Targets are shared by
// pointer between the pointing and the slits of one Configuration.
type Target struct {
	Name      string       `json:"name"`
	Priority  float64      `json:"priority"`
	Magnitude float64      `json:"magnitude"`
	Coord     coords.RaDec `json:"coord"`
	Epoch     float64      `json:"epoch"`
	Equinox   float64      `json:"equinox"`

	// Derived by projection.
	Sky            r2.Vec  `json:"-"`
	FocalPlane     r2.Vec  `json:"-"`
	MinRow         int     `json:"-"`
	MaxRow         int     `json:"-"`
	CenterDistance float64 `json:"center_distance"`
	InValidSlit    bool    `json:"in_valid_slit"`
	AlignRow       int     `json:"-"`
}

func priorityOf(t *Target) float64 {
	if t == nil {
		return 0
	}
	return t.Priority
}

func nameOf(t *Target) string {
	if t == nil {
		return ""
	}
	return t.Name
}

// MechanicalSlit is one bar pair. Bar positions follow from CenterPosition and
// Width, so the width invariant holds by construction.
type MechanicalSlit struct {
	Number         int     `json:"number"`
	CenterPosition float64 `json:"center_position"`
	Width          float64 `json:"width"`
	Rows           int     `json:"rows"`
	Target         *Target `json:"-"`
	TargetName     string  `json:"target"`
	CenterDistance float64 `json:"center_distance"`
}

// Name returns the resolved target name, falling back to the free-text name.
func (m MechanicalSlit) Name() string {
	if m.Target != nil {
		return m.Target.Name
	}
	return m.TargetName
}

func (m MechanicalSlit) LeftBarNumber() int  { return 2 * m.Number }
func (m MechanicalSlit) RightBarNumber() int { return 2*m.Number - 1 }

// ScienceSlit is a run of contiguous mechanical rows observing one target.
type ScienceSlit struct {
	Number         int          `json:"number"`
	Center         coords.RaDec `json:"center"`
	Width          float64      `json:"width"`
	Length         float64      `json:"length"`
	Rows           int          `json:"rows"`
	CenterDistance float64      `json:"center_distance"`
	Target         *Target      `json:"-"`
}

// Pointing is a chosen field center and rotation with the targets it serves.
type Pointing struct {
	Center          coords.RaDec `json:"center"`
	PositionAngle   float64      `json:"position_angle"`
	TotalPriority   float64      `json:"total_priority"`
	CoordWrap       bool         `json:"coord_wrap"`
	Targets         []*Target    `json:"-"`
	AlignmentStars  []*Target    `json:"-"`
	OriginalTargets []*Target    `json:"-"`
}

// Projector returns the wrap-safe transform for this pointing.
func (p Pointing) Projector() coords.Projector {
	return coords.NewProjector(p.Center, p.PositionAngle, p.CoordWrap)
}

// EditParams are the user-chosen generation parameters.
type EditParams struct {
	MaskName                string  `json:"mask_name" yaml:"mask_name"`
	SlitWidth               float64 `json:"slit_width" yaml:"slit_width" validate:"gt=0"`
	DitherSpace             float64 `json:"dither_space" yaml:"dither_space" validate:"gte=0"`
	MinimumAlignmentStars   int     `json:"minimum_alignment_stars" yaml:"minimum_alignment_stars" validate:"gte=0"`
	AlignmentStarEdgeBuffer float64 `json:"alignment_star_edge_buffer" yaml:"alignment_star_edge_buffer" validate:"gte=0"`
	XCenter                 float64 `json:"x_center" yaml:"x_center"`
	XRange                  float64 `json:"x_range" yaml:"x_range" validate:"gte=0"`
}

// Status is the persistence lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusModified   Status = "modified"
	StatusSaved      Status = "saved"
	StatusUnsaveable Status = "unsaveable"
)
