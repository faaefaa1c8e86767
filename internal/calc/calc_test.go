package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLittlesLaw(t *testing.T) {
	cases := []struct {
		name                   string
		pending                int
		avgJobDurationSeconds  float64
		targetSeconds          float64
		fallback               int
		want                   int
	}{
		{"zero pending returns zero", 0, 1, 15, 2, 0},
		{"cold queue zero age zero pending", 0, 1, 30, 1, 0},
		{"linear backlog", 100, 1, 15, 1, 7},
		{"zero duration falls back", 10, 0, 15, 3, 3},
		{"zero target falls back", 10, 1, 0, 3, 3},
		{"non-finite duration falls back", 10, math.NaN(), 15, 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LittlesLaw(tc.pending, tc.avgJobDurationSeconds, tc.targetSeconds, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBacklogDrain(t *testing.T) {
	t.Run("aggressive horizon on non-positive H", func(t *testing.T) {
		n := BacklogDrain(10, 0, 1, 0, 20)
		assert.Equal(t, 10, n)
	})

	t.Run("arrivals alone exceed max returns max", func(t *testing.T) {
		n := BacklogDrain(0, 6000, 1, 60, 5)
		assert.Equal(t, 5, n)
	})

	t.Run("combines backlog and arrivals", func(t *testing.T) {
		n := BacklogDrain(60, 60, 1, 60, 100)
		// pending/H = 1, arrival/60 = 1 => 2 * duration(1) = 2
		assert.Equal(t, 2, n)
	})
}

func TestTrendPredictorInsufficientSamples(t *testing.T) {
	tp := NewTrendPredictor(10)
	assert.Nil(t, tp.Predict(30_000_000_000))
}

func TestCapacityClamp(t *testing.T) {
	assert.Equal(t, 1, Clamp(0, 1, 5))
	assert.Equal(t, 5, Clamp(7, 1, 5))
	assert.Equal(t, 3, Clamp(3, 1, 5))
}

func TestApplyGlobalCapProportional(t *testing.T) {
	reqs := []CapacityRequest{
		{Key: "a", Requested: 8, Min: 1, Max: 10},
		{Key: "b", Requested: 4, Min: 1, Max: 10},
	}
	out := ApplyGlobalCap(reqs, 9)
	sum := 0
	for _, v := range out {
		sum += v
	}
	assert.Equal(t, 9, sum)
	assert.GreaterOrEqual(t, out[0], reqs[0].Min)
	assert.GreaterOrEqual(t, out[1], reqs[1].Min)
}

func TestApplyGlobalCapNoopUnderBudget(t *testing.T) {
	reqs := []CapacityRequest{
		{Key: "a", Requested: 2, Min: 1, Max: 10},
		{Key: "b", Requested: 3, Min: 1, Max: 10},
	}
	out := ApplyGlobalCap(reqs, 100)
	assert.Equal(t, []int{2, 3}, out)
}

func TestApplyGlobalCapDisabled(t *testing.T) {
	reqs := []CapacityRequest{{Key: "a", Requested: 50, Min: 1, Max: 100}}
	out := ApplyGlobalCap(reqs, 0)
	assert.Equal(t, []int{50}, out)
}
