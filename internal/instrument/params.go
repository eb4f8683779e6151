package instrument

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
)

var validate = validator.New()

// Params holds the fixed physical constants of the slit unit. Angles are in
// degrees, positions on the sky in arcsec and bar positions in mm.
type Params struct {
	Name              string    `toml:"name" json:"name"`
	NumberOfBarPairs  int       `toml:"number_of_bar_pairs" json:"number_of_bar_pairs" validate:"gt=2"`
	RowHeight         float64   `toml:"row_height" json:"row_height" validate:"gt=0"`
	Overlap           float64   `toml:"overlap" json:"overlap" validate:"gte=0,ltfield=RowHeight"`
	Width             float64   `toml:"width" json:"width" validate:"gt=0"`
	FocalPlaneRadius  float64   `toml:"focal_plane_radius" json:"focal_plane_radius" validate:"gt=0"`
	SlitTiltAngle     float64   `toml:"slit_tilt_angle" json:"slit_tilt_angle"`
	ArcsecPerMM       float64   `toml:"arcsec_per_mm" json:"arcsec_per_mm" validate:"gt=0"`
	ZeroPointMM       float64   `toml:"zero_point_mm" json:"zero_point_mm"`
	MinBarPositionMM  float64   `toml:"min_bar_position_mm" json:"min_bar_position_mm"`
	MaxBarPositionMM  float64   `toml:"max_bar_position_mm" json:"max_bar_position_mm" validate:"gtfield=MinBarPositionMM"`
	MinimumSlitWidth  float64   `toml:"minimum_slit_width" json:"minimum_slit_width" validate:"gt=0"`
	DefaultSlitWidth  float64   `toml:"default_slit_width" json:"default_slit_width" validate:"gtefield=MinimumSlitWidth"`
	AlignmentBoxWidth float64   `toml:"alignment_box_width" json:"alignment_box_width" validate:"gt=0"`
	CalibrationRow    int       `toml:"calibration_middle_row" json:"calibration_middle_row" validate:"gt=0"`
	OpenBarTargets    []float64 `toml:"open_bar_targets" json:"open_bar_targets"`
	MSCVersion        string    `toml:"msc_version" json:"msc_version"`
}

// Default returns the MOSFIRE CSU geometry.
func Default() Params {
	p := Params{
		Name:              "MOSFIRE",
		NumberOfBarPairs:  46,
		RowHeight:         8.0,
		Overlap:           0.7,
		Width:             368.0,
		FocalPlaneRadius:  204.0,
		SlitTiltAngle:     4.0,
		ArcsecPerMM:       1.3807,
		ZeroPointMM:       137.40,
		MinBarPositionMM:  1.0,
		MaxBarPositionMM:  273.8,
		MinimumSlitWidth:  0.3,
		DefaultSlitWidth:  0.7,
		AlignmentBoxWidth: 4.0,
		CalibrationRow:    23,
		MSCVersion:        "2.0",
	}
	p.OpenBarTargets = make([]float64, 2*p.NumberOfBarPairs)
	for i := 0; i < p.NumberOfBarPairs; i++ {
		p.OpenBarTargets[2*i] = p.MinBarPositionMM + 1.0
		p.OpenBarTargets[2*i+1] = p.MaxBarPositionMM - 1.0
	}
	return p
}

// LoadProfile reads a TOML instrument profile. Keys missing from the file keep
// their Default values.
func LoadProfile(path string) (Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading instrument profile %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing instrument profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("instrument profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks field ranges and that the open-mask table matches the bar count.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if p.CalibrationRow > p.NumberOfBarPairs {
		return fmt.Errorf("calibration row %d outside 1..%d", p.CalibrationRow, p.NumberOfBarPairs)
	}
	if len(p.OpenBarTargets) != 2*p.NumberOfBarPairs {
		return errors.New("open_bar_targets must list two positions per bar pair")
	}
	return nil
}

// Height is the vertical extent of the bar array in arcsec.
func (p Params) Height() float64 {
	return float64(p.NumberOfBarPairs) * p.RowHeight
}

// SingleSlitHeight is the usable height of one row.
func (p Params) SingleSlitHeight() float64 {
	return p.RowHeight - p.Overlap
}

func (p Params) TiltRadians() float64 {
	return p.SlitTiltAngle * math.Pi / 180
}

// SlitLength returns the length of a slit spanning rows bar pairs.
func (p Params) SlitLength(rows int) float64 {
	return float64(rows)*p.RowHeight - p.Overlap
}

// LeftBarPosition converts a slit center and width to the even bar position in mm.
func (p Params) LeftBarPosition(center, width float64) float64 {
	return p.ZeroPointMM + (center+width/2)/p.ArcsecPerMM
}

// RightBarPosition converts a slit center and width to the odd bar position in mm.
func (p Params) RightBarPosition(center, width float64) float64 {
	return p.ZeroPointMM + (center-width/2)/p.ArcsecPerMM
}

// BarsWithinTravel reports whether both bars of a slit stay inside the travel limits.
func (p Params) BarsWithinTravel(center, width float64) bool {
	return p.LeftBarPosition(center, width) <= p.MaxBarPositionMM &&
		p.RightBarPosition(center, width) >= p.MinBarPositionMM
}
