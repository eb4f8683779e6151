package mask

import (
	"math"
	"testing"

	"slitmask/internal/instrument"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func starsAt(inst instrument.Params, pts [][2]float64) ([]*Target, Pointing) {
	p := Pointing{Center: testCenter}
	proj := p.Projector()
	var stars []*Target
	for i, pt := range pts {
		stars = append(stars, targetAt(proj, string(rune('A'+i)), -1, pt[0], rowY(inst, int(pt[1]))))
	}
	p.AlignmentStars = stars
	return stars, p
}

func bruteForceBest(stars []*Target, k int) []string {
	var (
		best      []string
		bestScore float64
	)
	var walk func(start int, picked []int)
	walk = func(start int, picked []int) {
		if len(picked) == k {
			rows := map[int]bool{}
			for _, i := range picked {
				if stars[i].AlignRow < 0 || rows[stars[i].AlignRow] {
					return
				}
				rows[stars[i].AlignRow] = true
			}
			sum, nearest := 0.0, math.MaxFloat64
			for a := 0; a < len(picked); a++ {
				for b := a + 1; b < len(picked); b++ {
					d := r2.Norm(r2.Sub(stars[picked[a]].FocalPlane, stars[picked[b]].FocalPlane))
					sum += d
					nearest = math.Min(nearest, d)
				}
			}
			if score := sum + nearest*float64(k); score > bestScore {
				bestScore = score
				best = best[:0]
				for _, i := range picked {
					best = append(best, stars[i].Name)
				}
			}
			return
		}
		for i := start; i < len(stars); i++ {
			walk(i+1, append(picked, i))
		}
	}
	walk(0, nil)
	return best
}

func names(ts []*Target) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Name)
	}
	return out
}

func TestSelectAlignmentStarsMatchesBruteForce(t *testing.T) {
	inst := instrument.Default()
	stars, p := starsAt(inst, [][2]float64{
		{-80, 5}, {20, 12}, {60, 20}, {-30, 33}, {90, 40},
	})

	got := SelectAlignmentStars(inst, p.Projector(), stars, 3, 0.5)
	require.Len(t, got, 3)
	assert.Equal(t, bruteForceBest(stars, 3), names(got))
}

func TestSelectAlignmentStarsNeedsDistinctRows(t *testing.T) {
	inst := instrument.Default()
	stars, p := starsAt(inst, [][2]float64{
		{-80, 5}, {80, 5}, {20, 12}, {-20, 12},
	})
	assert.Empty(t, SelectAlignmentStars(inst, p.Projector(), stars, 3, 0.5))
	assert.Len(t, SelectAlignmentStars(inst, p.Projector(), stars, 2, 0.5), 2)
}

func TestSelectAlignmentStarsSkipsEdgeBuffer(t *testing.T) {
	inst := instrument.Default()
	p := Pointing{Center: testCenter}
	proj := p.Projector()
	// One star sits right on a row boundary and cannot be boxed.
	edge := targetAt(proj, "edge", -1, 0, rowY(inst, 30)+inst.RowHeight/2)
	inside := targetAt(proj, "inside", -1, 40, rowY(inst, 10))
	got := SelectAlignmentStars(inst, proj, []*Target{edge, inside}, 2, 1.0)
	assert.Empty(t, got)
	assert.Equal(t, -1, edge.AlignRow)
	assert.Equal(t, 10, inside.AlignRow)
}

func TestSelectAlignmentStarsTooFewCandidates(t *testing.T) {
	inst := instrument.Default()
	stars, p := starsAt(inst, [][2]float64{{0, 4}, {10, 9}})
	assert.Empty(t, SelectAlignmentStars(inst, p.Projector(), stars, 3, 0.5))
	assert.Empty(t, SelectAlignmentStars(inst, p.Projector(), stars, 0, 0.5))
}

func TestGenerateAddsAlignmentBoxes(t *testing.T) {
	inst := instrument.Default()
	stars, p := starsAt(inst, [][2]float64{
		{-80, 5}, {20, 12}, {60, 20}, {-30, 33}, {90, 40},
	})
	science := scatteredTargets(inst)
	p.Targets = science.Targets
	params := testParams()
	params.MinimumAlignmentStars = 3
	params.AlignmentStarEdgeBuffer = 0.5

	cfg := Generate(inst, p, params, true)
	require.Len(t, cfg.Alignment, 3)
	for i, a := range cfg.Alignment {
		if i > 0 {
			assert.Less(t, cfg.Alignment[i-1].Number, a.Number)
		}
		assert.Equal(t, inst.AlignmentBoxWidth, a.Width)
		assert.Equal(t, inst.NumberOfBarPairs-a.Target.AlignRow, a.Number)
		assert.Contains(t, stars, a.Target)
		assert.InDelta(t, 0, a.CenterDistance, 1e-6)
	}
}

func TestLongSlitPreset(t *testing.T) {
	inst := instrument.Default()
	cfg := LongSlit(inst, 11, 1.0)

	assert.Equal(t, "LONGSLIT-11x1", cfg.MaskName)
	assert.Equal(t, StatusUnsaveable, cfg.Status)
	require.Len(t, cfg.Mechanical, 11)
	for i, m := range cfg.Mechanical {
		assert.Equal(t, inst.CalibrationRow-5+i, m.Number)
		assert.Equal(t, 1.0, m.Width)
		mirror := cfg.Mechanical[len(cfg.Mechanical)-1-i]
		assert.InDelta(t, -m.CenterPosition, mirror.CenterPosition, 1e-12)
	}
	assert.Zero(t, cfg.Mechanical[5].CenterPosition)
	require.Len(t, cfg.Alignment, 1)
	assert.Equal(t, inst.CalibrationRow, cfg.Alignment[0].Number)
	assert.Equal(t, inst.AlignmentBoxWidth, cfg.Alignment[0].Width)
	assert.False(t, cfg.Saveable())

	assert.Equal(t, "LONGSLIT-46x0.7", LongSlit(inst, 46, 0.7).MaskName)
}

func TestOpenMaskPreset(t *testing.T) {
	inst := instrument.Default()
	cfg := OpenMask(inst)

	assert.Equal(t, "OPEN", cfg.MaskName)
	assert.Equal(t, StatusUnsaveable, cfg.Status)
	require.Len(t, cfg.Mechanical, inst.NumberOfBarPairs)
	for i, m := range cfg.Mechanical {
		odd, even := inst.OpenBarTargets[2*i], inst.OpenBarTargets[2*i+1]
		assert.InDelta(t, odd, inst.RightBarPosition(m.CenterPosition, m.Width), 1e-9)
		assert.InDelta(t, even, inst.LeftBarPosition(m.CenterPosition, m.Width), 1e-9)
	}
}

func TestNewConfiguration(t *testing.T) {
	inst := instrument.Default()
	cfg := New(inst, "blank", true)
	assert.Equal(t, StatusNew, cfg.Status)
	assert.Equal(t, "unknown", cfg.Version)
	require.Len(t, cfg.Mechanical, inst.NumberOfBarPairs)
	for i, m := range cfg.Mechanical {
		assert.Equal(t, i+1, m.Number)
		assert.Zero(t, m.CenterPosition)
		assert.Equal(t, inst.DefaultSlitWidth, m.Width)
	}
	assert.Equal(t, StatusUnsaveable, New(inst, "x", false).Status)

	cfg.SetMaskName("renamed")
	assert.Equal(t, StatusModified, cfg.Status)
	assert.Equal(t, "renamed", cfg.Params.MaskName)
}
