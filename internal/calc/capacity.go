package calc

import "sort"

// Clamp enforces [min, max] on a single requested worker count. This is the
// per-queue clamp every strategy runs as its last step.
func Clamp(requested, min, max int) int {
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}

// CapacityRequest is one queue's post-clamp worker request going into the
// global cap pass.
type CapacityRequest struct {
	Key       interface{} // caller-defined identity, echoed back unchanged
	Requested int
	Min       int
	Max       int
}

// ApplyGlobalCap enforces that the sum of all requests' allowances does not
// exceed globalMax (when globalMax > 0; globalMax <= 0 means "no global
// cap" and requests pass through unchanged). Each queue's Min is preserved
// first; any further reduction needed to fit under the cap is distributed
// proportionally to each queue's share of the (over-min) total demand,
// using largest-remainder rounding so the reduced allowances still sum to
// exactly the cap (not less, not more) whenever that's achievable without
// violating a queue's Min.
func ApplyGlobalCap(requests []CapacityRequest, globalMax int) []int {
	out := make([]int, len(requests))
	for i, r := range requests {
		out[i] = r.Requested
	}
	if globalMax <= 0 {
		return out
	}

	total := 0
	for _, v := range out {
		total += v
	}
	if total <= globalMax {
		return out
	}

	// Budget available for the "above min" portion of every request.
	sumMin := 0
	for _, r := range requests {
		sumMin += r.Min
	}
	aboveMinBudget := globalMax - sumMin
	if aboveMinBudget < 0 {
		aboveMinBudget = 0
	}

	sumAboveMin := 0
	aboveMin := make([]int, len(requests))
	for i, r := range requests {
		a := out[i] - r.Min
		if a < 0 {
			a = 0
		}
		aboveMin[i] = a
		sumAboveMin += a
	}

	if sumAboveMin == 0 {
		// Nothing to distribute above min; everyone gets their min.
		for i, r := range requests {
			out[i] = r.Min
		}
		return out
	}

	type share struct {
		idx       int
		exact     float64
		floor     int
		remainder float64
	}
	shares := make([]share, len(requests))
	flooredSum := 0
	for i := range requests {
		exact := float64(aboveMin[i]) * float64(aboveMinBudget) / float64(sumAboveMin)
		f := int(exact)
		shares[i] = share{idx: i, exact: exact, floor: f, remainder: exact - float64(f)}
		flooredSum += f
	}

	leftover := aboveMinBudget - flooredSum
	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder > shares[b].remainder
	})
	for i := 0; i < leftover && i < len(shares); i++ {
		shares[i].floor++
	}

	for _, s := range shares {
		r := requests[s.idx]
		out[s.idx] = r.Min + s.floor
		if out[s.idx] > r.Requested {
			out[s.idx] = r.Requested
		}
	}
	return out
}
