package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewManual(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSystemUsesLocation(t *testing.T) {
	loc := time.FixedZone("clinic", 3*60*60)
	now := System(loc).Now()
	assert.Equal(t, loc, now.Location())

	assert.Equal(t, time.UTC, System(nil).Now().Location())
}
