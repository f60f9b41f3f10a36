package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	clk := Fake(start)
	assert.Equal(t, start, clk.Now())

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	later := start.AddDate(0, 3, 0)
	clk.Set(later)
	assert.Equal(t, later, clk.Now())
}

func TestReal(t *testing.T) {
	before := time.Now()
	now := Real().Now()
	assert.False(t, now.Before(before))
}
