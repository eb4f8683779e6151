package service

import (
	"fmt"

	"slitmask/internal/logging"
	"slitmask/internal/mask"
)

// EditKind names one interactive edit.
type EditKind string

const (
	EditWidth     EditKind = "width"      // widen every slit by Offset
	EditSlitWidth EditKind = "slit-width" // set the width of the slit holding Row
	EditAlign     EditKind = "align"      // give Row to its neighbor
	EditMove      EditKind = "move"       // move the slit holding Row onto Target
)

// Edit is one change request against a mask. Rows are 1-based slit numbers.
type Edit struct {
	Kind   EditKind `json:"kind"`
	Row    int      `json:"row,omitempty"`
	Offset float64  `json:"offset,omitempty"`
	Width  float64  `json:"width,omitempty"`
	Above  bool     `json:"above,omitempty"`
	Target string   `json:"target,omitempty"`
}

// EditResult reports what an edit did. Applied is false when a bounds check
// refused the edit; the mask is then unchanged.
type EditResult struct {
	Applied      bool    `json:"applied"`
	AppliedWidth float64 `json:"applied_width,omitempty"`
	Summary      Summary `json:"summary"`
}

// IncrementWidth widens every slit of mask id by offset arcsec.
func (s *Service) IncrementWidth(id string, offset float64) (EditResult, error) {
	return s.Apply(id, Edit{Kind: EditWidth, Offset: offset})
}

// SetWidth sets the width of the science slit holding row.
func (s *Service) SetWidth(id string, row int, width float64) (EditResult, error) {
	return s.Apply(id, Edit{Kind: EditSlitWidth, Row: row, Width: width})
}

// Align hands row to the slit above (or below) it.
func (s *Service) Align(id string, row int, above bool) (EditResult, error) {
	return s.Apply(id, Edit{Kind: EditAlign, Row: row, Above: above})
}

// Move re-centers the slit holding row onto the named target.
func (s *Service) Move(id string, row int, target string) (EditResult, error) {
	return s.Apply(id, Edit{Kind: EditMove, Row: row, Target: target})
}

// Apply loads mask id, applies e, stores the result and publishes an event.
// Only one edit runs at a time.
func (s *Service) Apply(id string, e Edit) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(id)
	if err != nil {
		return EditResult{}, err
	}
	// In-memory masks are edited in place, so work on a copy until the edit
	// is known to succeed.
	work := c.Clone()

	res, err := applyEdit(work, e)
	if err != nil {
		editsTotal.WithLabelValues(string(e.Kind), "error").Inc()
		logging.LogEditRejected(s.log, id, string(e.Kind), err)
		return EditResult{}, err
	}
	if !res.Applied {
		editsTotal.WithLabelValues(string(e.Kind), "rejected").Inc()
		logging.LogEditRejected(s.log, id, string(e.Kind), nil)
		res.Summary = summarize(id, c, s.isStored(id))
		s.publish(Event{MaskID: id, Kind: "rejected", Status: c.Status, Detail: describe(e)})
		return res, nil
	}

	if _, err := s.persist(id, work); err != nil {
		return EditResult{}, fmt.Errorf("storing edit: %w", err)
	}
	editsTotal.WithLabelValues(string(e.Kind), "applied").Inc()
	logging.LogEditApplied(s.log, id, string(e.Kind), map[string]any{
		"row": e.Row, "offset": e.Offset, "width": res.AppliedWidth, "above": e.Above, "target": e.Target,
	})
	res.Summary = summarize(id, work, s.isStored(id))
	s.record(id, work, "edited", describe(e))
	return res, nil
}

func (s *Service) isStored(id string) bool {
	_, ok := s.scratch[id]
	return !ok && s.store != nil
}

func applyEdit(c *mask.Configuration, e Edit) (EditResult, error) {
	switch e.Kind {
	case EditWidth:
		return EditResult{Applied: c.IncrementSlitWidth(e.Offset)}, nil
	case EditSlitWidth:
		w, ok, err := c.SetSlitWidth(e.Row, e.Width)
		if err != nil {
			return EditResult{}, err
		}
		return EditResult{Applied: ok, AppliedWidth: w}, nil
	case EditAlign:
		if err := c.AlignSlitWithNeighbor(e.Row, e.Above); err != nil {
			return EditResult{}, err
		}
		return EditResult{Applied: true}, nil
	case EditMove:
		t := findTarget(c, e.Target)
		if t == nil {
			return EditResult{}, &mask.LookupError{Row: e.Row, Target: e.Target, Reason: "unknown target"}
		}
		ok, err := c.MoveSlitOntoTarget(e.Row, t)
		if err != nil {
			return EditResult{}, err
		}
		return EditResult{Applied: ok}, nil
	}
	return EditResult{}, fmt.Errorf("unknown edit %q", e.Kind)
}

// findTarget looks a science target up by name, preferring one already placed.
func findTarget(c *mask.Configuration, name string) *mask.Target {
	for _, list := range [][]*mask.Target{c.Pointing.Targets, c.Pointing.OriginalTargets} {
		for _, t := range list {
			if t.Name == name && t.Priority >= 0 {
				return t
			}
		}
	}
	return nil
}

func describe(e Edit) string {
	switch e.Kind {
	case EditWidth:
		return fmt.Sprintf("width %+.2f", e.Offset)
	case EditSlitWidth:
		return fmt.Sprintf("slit %d width %.2f", e.Row, e.Width)
	case EditAlign:
		dir := "below"
		if e.Above {
			dir = "above"
		}
		return fmt.Sprintf("slit %d align %s", e.Row, dir)
	case EditMove:
		return fmt.Sprintf("slit %d onto %s", e.Row, e.Target)
	}
	return string(e.Kind)
}
