package mask

import (
	"math"

	"slitmask/internal/coords"
	"slitmask/internal/instrument"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/combin"
)

// SelectAlignmentStars picks k candidates, one per row, that are spread as far
// apart as possible. Every k-subset is scored as the sum of its pairwise
// distances plus k times its smallest pairwise distance; the first subset with
// the highest score wins. A subset is skipped when any star has no usable row
// or two stars share a row. The result is empty when no subset qualifies.
func SelectAlignmentStars(inst instrument.Params, proj coords.Projector, candidates []*Target, k int, edgeBuffer float64) []*Target {
	n := len(candidates)
	for _, star := range candidates {
		star.Sky, star.FocalPlane = proj.Project(star.Coord)
		star.AlignRow = inst.AlignmentRow(star.FocalPlane.Y, edgeBuffer)
	}
	if k <= 0 || k > n {
		return nil
	}

	var (
		best      []int
		bestScore = 0.0
		combo     = make([]int, k)
		rows      = make(map[int]bool, k)
	)
	gen := combin.NewCombinationGenerator(n, k)
	for gen.Next() {
		gen.Combination(combo)
		clear(rows)
		distinct := true
		for _, idx := range combo {
			row := candidates[idx].AlignRow
			if row < 0 || rows[row] {
				distinct = false
				break
			}
			rows[row] = true
		}
		if !distinct {
			continue
		}
		if score := subsetScore(candidates, combo); score > bestScore {
			bestScore = score
			best = append(best[:0], combo...)
		}
	}

	out := make([]*Target, 0, len(best))
	for _, idx := range best {
		out = append(out, candidates[idx])
	}
	return out
}

func subsetScore(candidates []*Target, combo []int) float64 {
	total := 0.0
	nearest := math.MaxFloat64
	for i := 0; i < len(combo); i++ {
		for j := i + 1; j < len(combo); j++ {
			d := r2.Norm(r2.Sub(candidates[combo[i]].FocalPlane, candidates[combo[j]].FocalPlane))
			total += d
			nearest = math.Min(nearest, d)
		}
	}
	return total + nearest*float64(len(combo))
}

// selectAlignmentSlits turns the chosen stars into alignment boxes.
func selectAlignmentSlits(inst instrument.Params, proj coords.Projector, candidates []*Target, k int, edgeBuffer float64) []MechanicalSlit {
	stars := SelectAlignmentStars(inst, proj, candidates, k, edgeBuffer)
	slits := make([]MechanicalSlit, 0, len(stars))
	for _, star := range stars {
		slits = append(slits, alignmentSlit(inst, star))
	}
	return slits
}

func alignmentSlit(inst instrument.Params, star *Target) MechanicalSlit {
	pos := inst.SlitPosition(star.AlignRow, 1, star.FocalPlane)
	cd := inst.CenterDistance(star.FocalPlane, pos)
	star.CenterDistance = cd
	return MechanicalSlit{
		Number:         inst.NumberOfBarPairs - star.AlignRow,
		CenterPosition: pos.X,
		Width:          inst.AlignmentBoxWidth,
		Rows:           1,
		Target:         star,
		TargetName:     star.Name,
		CenterDistance: cd,
	}
}
