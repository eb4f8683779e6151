package targets

import (
	"fmt"
	"os"
	"path/filepath"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"
	"slitmask/internal/mask"

	"gopkg.in/yaml.v3"
)

// PointingFile is the on-disk description of one mask job.
//
//	center:
//	  ra: "10:30:00.0"
//	  dec: "+20:00:00.0"
//	position_angle: 12.5
//	target_list: targets.coords
//	reassign: true
//	params:
//	  mask_name: field1
//	  slit_width: 0.7
//	  dither_space: 2.5
//	  minimum_alignment_stars: 3
//	  alignment_star_edge_buffer: 0.5
type PointingFile struct {
	Center struct {
		RA  string `yaml:"ra"`
		Dec string `yaml:"dec"`
	} `yaml:"center"`
	PositionAngle float64         `yaml:"position_angle"`
	TargetList    string          `yaml:"target_list"`
	Reassign      *bool           `yaml:"reassign,omitempty"`
	Params        mask.EditParams `yaml:"params"`
}

// Job is everything Generate needs.
type Job struct {
	Pointing mask.Pointing
	Params   mask.EditParams
	Reassign bool
}

// LoadPointing reads a YAML pointing file and the target list it names. A
// relative target_list is resolved against the pointing file's directory.
// Missing slit width falls back to the instrument default.
func LoadPointing(path string, inst instrument.Params) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("reading pointing file: %w", err)
	}
	var pf PointingFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Job{}, fmt.Errorf("parsing pointing file %s: %w", path, err)
	}
	if pf.TargetList == "" {
		return Job{}, fmt.Errorf("pointing file %s: target_list is required", path)
	}
	listPath := pf.TargetList
	if !filepath.IsAbs(listPath) {
		listPath = filepath.Join(filepath.Dir(path), listPath)
	}
	list, err := ReadListFile(listPath)
	if err != nil {
		return Job{}, err
	}
	return pf.Job(list, inst)
}

// Job combines the pointing description with a parsed target list.
func (pf PointingFile) Job(list List, inst instrument.Params) (Job, error) {
	center, err := coords.Parse(pf.Center.RA, pf.Center.Dec)
	if err != nil {
		return Job{}, fmt.Errorf("pointing center: %w", err)
	}
	params := pf.Params
	if params.SlitWidth == 0 {
		params.SlitWidth = inst.DefaultSlitWidth
	}
	if err := mask.ValidateParams(params); err != nil {
		return Job{}, fmt.Errorf("pointing params: %w", err)
	}
	reassign := true
	if pf.Reassign != nil {
		reassign = *pf.Reassign
	}
	return Job{
		Pointing: NewPointing(center, pf.PositionAngle, list),
		Params:   params,
		Reassign: reassign,
	}, nil
}

// NewPointing builds a pointing over list and sets the coordinate wrap when the
// targets straddle 0h.
func NewPointing(center coords.RaDec, pa float64, list List) mask.Pointing {
	all := list.All()
	positions := make([]coords.RaDec, 0, len(all))
	for _, t := range all {
		positions = append(positions, t.Coord)
	}
	return mask.Pointing{
		Center:          center,
		PositionAngle:   pa,
		CoordWrap:       coords.SpansWrap(positions),
		Targets:         list.Science,
		AlignmentStars:  list.Stars,
		OriginalTargets: all,
	}
}
