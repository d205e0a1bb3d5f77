// Package utils holds small helpers shared by the test suites.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector asserts that the goroutine count returns to its
// baseline after a test body finishes. Transport adapters and the controller
// spawn read loops, poll loops, and heartbeat tickers; this catches any of
// them outliving a teardown.
type GoroutineLeakDetector struct {
	t              *testing.T
	baseline       int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
}

// NewGoroutineLeakDetector creates a detector with no growth allowance.
func NewGoroutineLeakDetector(t *testing.T) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  100 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
	}
}

// Start records the baseline goroutine count after a stabilization pause.
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.baseline = runtime.NumGoroutine()
}

// Check fails the test when the goroutine count has grown past the baseline
// plus the allowance. The count is sampled several times and the minimum
// used, since goroutines may still be winding down.
func (d *GoroutineLeakDetector) Check() {
	time.Sleep(d.stabilizeDelay)

	final := runtime.NumGoroutine()
	for i := 0; i < 2; i++ {
		time.Sleep(d.checkInterval)
		if n := runtime.NumGoroutine(); n < final {
			final = n
		}
	}

	leaked := final - d.baseline
	if leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("goroutine leak: baseline %d, now %d (allowed growth %d)\n%s",
			d.baseline, final, d.allowedGrowth, buf[:n])
	}
}

// SetAllowedGrowth permits n goroutines to outlive the test body.
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay overrides the pause before sampling.
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}
