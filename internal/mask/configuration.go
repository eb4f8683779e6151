package mask

import (
	"cmp"
	"slices"

	"slitmask/internal/instrument"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Configuration is a complete slit mask layout. It is owned by a single caller
// and is not safe for concurrent use.
type Configuration struct {
	MaskName         string
	Version          string
	Status           Status
	OriginalFilename string
	Mechanical       []MechanicalSlit
	Science          []ScienceSlit
	Alignment        []MechanicalSlit
	Pointing         Pointing
	Params           EditParams
	Instrument       instrument.Params
}

// New returns N centered rows at the default width. Status is NEW when isNew is
// set and UNSAVEABLE otherwise.
func New(inst instrument.Params, name string, isNew bool) *Configuration {
	c := &Configuration{
		MaskName:         name,
		Version:          "unknown",
		OriginalFilename: "none",
		Instrument:       inst,
		Status:           StatusUnsaveable,
		Params: EditParams{
			MaskName:  name,
			SlitWidth: inst.DefaultSlitWidth,
		},
	}
	if isNew {
		c.Status = StatusNew
	}
	c.Mechanical = make([]MechanicalSlit, inst.NumberOfBarPairs)
	for i := range c.Mechanical {
		c.Mechanical[i] = MechanicalSlit{Number: i + 1, Width: inst.DefaultSlitWidth, Rows: Unassigned}
	}
	return c
}

// ValidateParams checks edit parameters before generation.
func ValidateParams(p EditParams) error {
	return validate.Struct(p)
}

func byNumber[T interface{ number() int }](a, b T) int {
	return cmp.Compare(a.number(), b.number())
}

func (m MechanicalSlit) number() int { return m.Number }
func (s ScienceSlit) number() int    { return s.Number }

// sortSlits orders all slit collections by number.
func (c *Configuration) sortSlits() {
	slices.SortStableFunc(c.Mechanical, byNumber[MechanicalSlit])
	slices.SortStableFunc(c.Science, byNumber[ScienceSlit])
	slices.SortStableFunc(c.Alignment, byNumber[MechanicalSlit])
}

// MechanicalSlitIndex returns the position of slit number in the mechanical
// list, or -1.
func (c *Configuration) MechanicalSlitIndex(number int) int {
	return slices.IndexFunc(c.Mechanical, func(m MechanicalSlit) bool { return m.Number == number })
}

// ScienceSlitFor returns the index of the science slit observing t, or -1.
func (c *Configuration) ScienceSlitFor(t *Target) int {
	if t == nil {
		return -1
	}
	return slices.IndexFunc(c.Science, func(s ScienceSlit) bool { return s.Target == t })
}

// rowRange returns the first and last slit numbers held by t in the mechanical
// list.
func (c *Configuration) rowRange(t *Target) (first, last int, ok bool) {
	for _, m := range c.Mechanical {
		if m.Target != t {
			continue
		}
		if !ok {
			first, ok = m.Number, true
		}
		last = m.Number
	}
	return first, last, ok
}

// SetMaskName renames the mask.
func (c *Configuration) SetMaskName(name string) {
	c.MaskName = name
	c.Params.MaskName = name
	c.Status = StatusModified
}

// MarkSaved records a successful write to filename.
func (c *Configuration) MarkSaved(filename string) {
	if filename != "" {
		c.OriginalFilename = filename
	}
	c.Status = StatusSaved
}

// Saveable reports whether the layout may be persisted.
func (c *Configuration) Saveable() bool {
	return c.Status != StatusUnsaveable
}

// UpdatePriority sums the priority of every science target sitting in a valid slit.
func (c *Configuration) UpdatePriority() float64 {
	total := 0.0
	for _, s := range c.Science {
		if s.Target != nil && s.Target.InValidSlit {
			total += s.Target.Priority
		}
	}
	c.Pointing.TotalPriority = total
	return total
}

// HasInvalidSlits reports whether any science target sits too close to its
// slit edge for the dither pattern.
func (c *Configuration) HasInvalidSlits() bool {
	for _, s := range c.Science {
		if s.Target != nil && !s.Target.InValidSlit {
			return true
		}
	}
	return false
}

// ExcessTargets lists targets from the original input that ended up in no slit.
func (c *Configuration) ExcessTargets() []*Target {
	used := make(map[*Target]bool, len(c.Science)+len(c.Alignment))
	for _, s := range c.Science {
		used[s.Target] = true
	}
	for _, a := range c.Alignment {
		used[a.Target] = true
	}
	var out []*Target
	for _, t := range c.Pointing.OriginalTargets {
		if !used[t] {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy. Target pointers in the copy refer to copies of the
// original targets, so edits on either side never leak to the other.
func (c *Configuration) Clone() *Configuration {
	remap := make(map[*Target]*Target)
	dup := func(t *Target) *Target {
		if t == nil {
			return nil
		}
		if n, ok := remap[t]; ok {
			return n
		}
		n := *t
		remap[t] = &n
		return &n
	}
	dupList := func(ts []*Target) []*Target {
		if ts == nil {
			return nil
		}
		out := make([]*Target, len(ts))
		for i, t := range ts {
			out[i] = dup(t)
		}
		return out
	}

	out := *c
	out.Mechanical = slices.Clone(c.Mechanical)
	for i := range out.Mechanical {
		out.Mechanical[i].Target = dup(out.Mechanical[i].Target)
	}
	out.Science = slices.Clone(c.Science)
	for i := range out.Science {
		out.Science[i].Target = dup(out.Science[i].Target)
	}
	out.Alignment = slices.Clone(c.Alignment)
	for i := range out.Alignment {
		out.Alignment[i].Target = dup(out.Alignment[i].Target)
	}
	out.Pointing.Targets = dupList(c.Pointing.Targets)
	out.Pointing.AlignmentStars = dupList(c.Pointing.AlignmentStars)
	out.Pointing.OriginalTargets = dupList(c.Pointing.OriginalTargets)
	out.Instrument.OpenBarTargets = slices.Clone(c.Instrument.OpenBarTargets)
	return &out
}
