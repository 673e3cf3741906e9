package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvgVal(t *testing.T) {
	avg := NewAvgVal(4)
	avg.Add(2)
	avg.Add(6)
	assert.InDelta(t, 4.0, avg.Val(), 1e-9)
	assert.Equal(t, 3, avg.Count())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			avg.Add(4)
		}()
	}
	wg.Wait()
	assert.Equal(t, 103, avg.Count())
	assert.InDelta(t, 4.0, avg.Val(), 1e-9)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 2, Clamp(1, 2, 10))
	assert.Equal(t, 10, Clamp(11, 2, 10))
	assert.Equal(t, 5, Clamp(5, 2, 10))
	// an upper bound below the lower one leaves v unbounded above
	assert.Equal(t, 500, Clamp(500, 2, 0))
}

func TestMillis(t *testing.T) {
	assert.InDelta(t, 0.25, Millis(250*time.Microsecond), 1e-9)
	assert.InDelta(t, 1500.0, Millis(1500*time.Millisecond), 1e-9)
	assert.Zero(t, Millis(999*time.Nanosecond))
}
