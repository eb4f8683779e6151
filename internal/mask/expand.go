package mask

import "slitmask/internal/instrument"

// expand hands empty rows to neighboring slits. slots are indexed bottom-up.
// The pass order and every comparison below are part of the hardware contract;
// the two ends of the array are deliberately treated differently.
func expand(inst instrument.Params, slots []MechanicalSlit, dither float64) {
	n := len(slots)
	if n < 4 {
		return
	}
	prio := func(i int) float64 { return priorityOf(slots[i].Target) }
	empty := func(i int) bool { return slots[i].Rows == Unassigned }
	claim := func(dst, src int) {
		slots[dst] = slots[src]
		slots[dst].Number = n - dst
	}

	// Boundary singles become doubles.
	if slots[1].Rows == 1 && empty(2) && prio(1) > prio(3) {
		claim(2, 1)
	}
	if slots[n-2].Rows == 1 && empty(n-3) && prio(n-2) > prio(n-4) {
		claim(n-3, n-2)
	}
	if slots[1].Rows == 1 && empty(0) {
		claim(0, 1)
	}
	if slots[n-2].Rows == 1 && empty(n-1) {
		claim(n-1, n-2)
	}

	// Remaining singles grow toward an empty neighbor when they outrank the
	// slit beyond it or that slit is already a double.
	for i := 0; i < n; i++ {
		if slots[i].Rows != 1 {
			continue
		}
		if i < n-2 && empty(i+1) && (prio(i) > prio(i+2) || slots[i+2].Rows == 2) {
			claim(i+1, i)
		}
		if i > 1 && empty(i-1) && (prio(i) > prio(i-2) || slots[i-2].Rows == 2) {
			claim(i-1, i)
		}
	}

	// Envelope fill. Each pass can only move a slit edge by one row, so n passes
	// are enough to close any gap.
	deadSpace := dither + inst.Overlap/2
	ssh := inst.SingleSlitHeight()
	for pass := 0; pass < n; pass++ {
		for i := 1; i < n-1; i++ {
			if !empty(i) {
				continue
			}
			switch {
			case slots[i-1].Rows > 0 && prio(i-1) > prio(i+1):
				claim(i, i-1)
			case slots[i+1].Rows > 0 && prio(i+1) > prio(i-1):
				claim(i, i+1)
			case prio(i+1) == prio(i-1):
				// Both neighbors may be empty here, and claiming one copies an
				// empty row, so a field of all-zero priorities can keep gaps.
				y := targetPoint(slots[i+1].Target).Y
				fi := float64(i)
				below := y - deadSpace - (fi+1)*ssh - 2*fi*deadSpace
				above := deadSpace + (fi+1)*ssh + 2*fi*deadSpace - y
				if below < above {
					claim(i, i+1)
				} else {
					claim(i, i-1)
				}
			}
		}
	}

	if empty(n-1) && slots[n-2].Rows > 0 {
		claim(n-1, n-2)
	}
	if empty(0) && slots[1].Rows > 0 {
		claim(0, 1)
	}

	// Spans were copied along with the slits; recount them by target name.
	counts := make(map[string]int, n)
	for i := range slots {
		if slots[i].Target != nil {
			counts[slots[i].Target.Name]++
		}
	}
	for i := range slots {
		if slots[i].Target != nil {
			slots[i].Rows = counts[slots[i].Target.Name]
		}
	}
}
