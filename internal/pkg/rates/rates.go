package rates

import (
	"math"
	"sync/atomic"
)

// DefaultValue is served until the first successful fetch. The deployment has
// run with this order of magnitude for years; pricing tolerates staleness but
// must never divide by a missing rate.
const DefaultValue = 950

var bits atomic.Uint64

func init() {
	Set(DefaultValue)
}

// Value returns the current exchange-rate value. Lock-free; concurrent
// readers may see a value one refresh behind.
func Value() float64 {
	return math.Float64frombits(bits.Load())
}

// Set overwrites the process-wide rate value.
func Set(v float64) {
	bits.Store(math.Float64bits(v))
}
