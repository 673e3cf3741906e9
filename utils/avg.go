package utils

import (
	"sync"
	"time"

	"golang.org/x/exp/constraints"
)

// AvgVal is a running mean safe for concurrent use.
type AvgVal struct {
	v     float64
	count int
	lock  sync.Mutex
}

// NewAvgVal seeds the mean with one sample.
func NewAvgVal(val float64) *AvgVal {
	return &AvgVal{
		v:     val,
		count: 1,
	}
}

func (a *AvgVal) Add(val float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.count++
	a.v += (val - a.v) / float64(a.count)
}

func (a *AvgVal) Val() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.v
}

func (a *AvgVal) Count() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.count
}

// Clamp bounds v to [lo, hi]; hi below lo means no upper bound.
func Clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}

// Millis is d in fractional milliseconds, for latency histograms.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
