package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrend(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		previous int64
		want     float64
	}{
		{"growth", 150, 100, 50},
		{"decline", 50, 100, -50},
		{"previous zero", 500, 0, 0},
		{"both zero", 0, 0, 0},
		{"one decimal", 2, 3, -33.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trend(decimal.NewFromInt(tt.current), decimal.NewFromInt(tt.previous))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentRounding(t *testing.T) {
	assert.Equal(t, "18.18", Percent(2, 11))
	assert.Equal(t, "0.00", Percent(5, 0))
	assert.Equal(t, "100.00", Percent(3, 3))
	assert.Equal(t, 18.18, PercentFloat(2, 11))
	assert.Equal(t, float64(0), PercentFloat(1, 0))
}

func TestPerUnit(t *testing.T) {
	assert.Equal(t, "150.00", PerUnit(decimal.NewFromInt(300), 2))
	assert.Equal(t, "0.00", PerUnit(decimal.NewFromInt(300), 0))
	assert.Equal(t, "33.33", PerUnit(decimal.NewFromInt(100), 3))
}

func TestRoundedRate(t *testing.T) {
	assert.Equal(t, 75, RoundedRate(3, 4))
	assert.Equal(t, 0, RoundedRate(0, 0))
	assert.Equal(t, 100, RoundedRate(4, 4))
	assert.Equal(t, 67, RoundedRate(2, 3))
}

func TestGoalPercent(t *testing.T) {
	assert.Nil(t, GoalPercent(decimal.NewFromInt(10), decimal.Zero))

	got := GoalPercent(decimal.NewFromInt(250), decimal.NewFromInt(1000))
	require.NotNil(t, got)
	assert.Equal(t, 25.0, *got)
}

func TestDateRange(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	r := DateRange{Start: start, End: start.Add(7 * 24 * time.Hour)}
	require.NoError(t, r.Validate())

	prev := r.Previous()
	assert.Equal(t, start.Add(-7*24*time.Hour), prev.Start)
	assert.Equal(t, start, prev.End)

	assert.Error(t, DateRange{Start: start, End: start}.Validate())
}
