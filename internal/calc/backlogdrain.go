package calc

// BacklogDrain computes the worker count needed to clear the current
// backlog within horizonSeconds while absorbing the ongoing arrival rate:
//
//	N = ceil((pending/H + arrivalRatePerMinute/60) * avgJobDurationSeconds)
//
// horizonSeconds <= 0 is treated as 1 second (an aggressive, "drain right
// now" horizon) rather than an error, per spec. If the arrival rate alone
// would require maxWorkers or more to keep up (independent of the
// existing backlog), maxWorkers is returned directly — there's no point
// reporting a number that arrivals alone already exceed.
func BacklogDrain(pending int, arrivalRatePerMinute, avgJobDurationSeconds, horizonSeconds float64, maxWorkers int) int {
	if horizonSeconds <= 0 {
		horizonSeconds = 1
	}
	if !validPositive(avgJobDurationSeconds) {
		return 0
	}

	arrivalCapacityNeeded := (arrivalRatePerMinute / 60) * avgJobDurationSeconds
	if arrivalCapacityNeeded >= float64(maxWorkers) {
		return maxWorkers
	}

	rate := float64(pending)/horizonSeconds + arrivalRatePerMinute/60
	n := rate * avgJobDurationSeconds
	if !finite(n) {
		return maxWorkers
	}
	return ceilNonNegative(n)
}
