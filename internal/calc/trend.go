package calc

import "time"

// trendSample is one (timestamp, oldestJobAge) observation.
type trendSample struct {
	at  time.Time
	age float64
}

// TrendPredictor maintains a per-queue ring buffer of recent oldestJobAge
// samples and fits a least-squares line through the last k of them to
// predict the age at a future time. It is the one calculator with state —
// everything else in this package is a pure function — because a
// regression needs a window of history to fit against.
//
// Not safe for concurrent use; the engine holds one instance per queue and
// only the single supervisor control thread touches it.
type TrendPredictor struct {
	k       int
	samples []trendSample
}

// NewTrendPredictor creates a predictor that fits against the last k
// samples (default 10 when k <= 0).
func NewTrendPredictor(k int) *TrendPredictor {
	if k <= 0 {
		k = 10
	}
	return &TrendPredictor{k: k}
}

// Observe records a new sample. Timestamps must be monotonically
// non-decreasing; a sample with at before the last recorded one is dropped
// (it would invert the regression's time axis).
func (t *TrendPredictor) Observe(at time.Time, oldestJobAge float64) {
	if len(t.samples) > 0 && at.Before(t.samples[len(t.samples)-1].at) {
		return
	}
	t.samples = append(t.samples, trendSample{at: at, age: oldestJobAge})
	if len(t.samples) > t.k {
		t.samples = t.samples[len(t.samples)-t.k:]
	}
}

// Predict fits a least-squares line over the retained window and returns
// the predicted oldestJobAge at at+lookahead. Returns nil when fewer than 3
// samples have been observed, or when the independent variable (time) has
// zero variance across the window — both degenerate cases where a slope
// can't be meaningfully fit.
func (t *TrendPredictor) Predict(lookahead time.Duration) *float64 {
	n := len(t.samples)
	if n < 3 {
		return nil
	}

	// Use seconds-since-first-sample as x to keep the regression numerically
	// well-scaled regardless of wall-clock epoch.
	t0 := t.samples[0].at
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range t.samples {
		x := s.at.Sub(t0).Seconds()
		y := s.age
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}

	slope := (nf*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / nf

	lastX := t.samples[n-1].at.Sub(t0).Seconds()
	targetX := lastX + lookahead.Seconds()
	predicted := intercept + slope*targetX
	if predicted < 0 {
		predicted = 0
	}
	return &predicted
}

// Reset drops all retained samples.
func (t *TrendPredictor) Reset() {
	t.samples = t.samples[:0]
}

// SampleCount returns how many samples are currently retained.
func (t *TrendPredictor) SampleCount() int {
	return len(t.samples)
}
