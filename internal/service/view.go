package service

import (
	"slitmask/internal/mask"
)

// MechanicalView is one bar pair as shown to clients.
type MechanicalView struct {
	Number         int     `json:"number"`
	Target         string  `json:"target,omitempty"`
	CenterPosition float64 `json:"center_position"`
	Width          float64 `json:"width"`
	Rows           int     `json:"rows"`
	CenterDistance float64 `json:"center_distance"`
	LeftBar        int     `json:"left_bar"`
	RightBar       int     `json:"right_bar"`
}

// ScienceView is one science slit as shown to clients.
type ScienceView struct {
	Number         int     `json:"number"`
	Target         string  `json:"target"`
	Priority       float64 `json:"priority"`
	Center         string  `json:"center"`
	Width          float64 `json:"width"`
	Length         float64 `json:"length"`
	Rows           int     `json:"rows"`
	CenterDistance float64 `json:"center_distance"`
	Valid          bool    `json:"valid"`
}

// MaskView is the full client representation of a mask.
type MaskView struct {
	Summary
	Version       string           `json:"version"`
	Center        string           `json:"center"`
	PositionAngle float64          `json:"position_angle"`
	CoordWrap     bool             `json:"coord_wrap,omitempty"`
	Params        mask.EditParams  `json:"params"`
	Mechanical    []MechanicalView `json:"mechanical"`
	Science       []ScienceView    `json:"science"`
	Alignment     []MechanicalView `json:"alignment"`
	ExcessTargets []string         `json:"excess_targets,omitempty"`
}

func mechanicalViews(in []mask.MechanicalSlit) []MechanicalView {
	out := make([]MechanicalView, 0, len(in))
	for _, m := range in {
		out = append(out, MechanicalView{
			Number:         m.Number,
			Target:         m.Name(),
			CenterPosition: m.CenterPosition,
			Width:          m.Width,
			Rows:           m.Rows,
			CenterDistance: m.CenterDistance,
			LeftBar:        m.LeftBarNumber(),
			RightBar:       m.RightBarNumber(),
		})
	}
	return out
}

// NewView renders c for clients.
func NewView(id string, c *mask.Configuration, stored bool) MaskView {
	v := MaskView{
		Summary:       summarize(id, c, stored),
		Version:       c.Version,
		Center:        c.Pointing.Center.String(),
		PositionAngle: c.Pointing.PositionAngle,
		CoordWrap:     c.Pointing.CoordWrap,
		Params:        c.Params,
		Mechanical:    mechanicalViews(c.Mechanical),
		Alignment:     mechanicalViews(c.Alignment),
		Science:       make([]ScienceView, 0, len(c.Science)),
	}
	for _, s := range c.Science {
		sv := ScienceView{
			Number:         s.Number,
			Center:         s.Center.String(),
			Width:          s.Width,
			Length:         s.Length,
			Rows:           s.Rows,
			CenterDistance: s.CenterDistance,
		}
		if s.Target != nil {
			sv.Target = s.Target.Name
			sv.Priority = s.Target.Priority
			sv.Valid = s.Target.InValidSlit
		}
		v.Science = append(v.Science, sv)
	}
	for _, t := range c.ExcessTargets() {
		v.ExcessTargets = append(v.ExcessTargets, t.Name)
	}
	return v
}

// View returns the client representation of mask id.
func (s *Service) View(id string) (MaskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load(id)
	if err != nil {
		return MaskView{}, err
	}
	return NewView(id, c, s.isStored(id)), nil
}
