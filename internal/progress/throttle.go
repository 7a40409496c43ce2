package progress

// Throttle suppresses reports that advance by less than Step percentage
// points. A Throttle tracks one calculation and is not safe for concurrent use.
type Throttle struct {
	step int
	last int
}

// NewThrottle creates a Throttle; a non-positive step means DefaultStep.
func NewThrottle(step int) *Throttle {
	if step <= 0 {
		step = DefaultStep
	}
	return &Throttle{step: step}
}

// Observe computes floor(done/total*100) and reports whether it should be
// emitted. A zero total yields 100 once done is reached, without dividing.
func (t *Throttle) Observe(done, total int64) (int, bool) {
	return t.ObservePercent(Percent(done, total))
}

// ObservePercent throttles an already computed percentage, as reported by an
// external process. Values are clamped to 0-100; regressions are ignored.
// The terminal 100 is always emitted once, even when closer than Step.
func (t *Throttle) ObservePercent(p int) (int, bool) {
	p = max(0, min(p, 100))
	if p >= t.last+t.step || (p == 100 && t.last < 100) {
		t.last = p
		return p, true
	}
	return t.last, false
}

// Last returns the most recently emitted percentage.
func (t *Throttle) Last() int {
	return t.last
}

// Percent returns floor(done/total*100), clamped to 0-100. A zero total is
// treated as complete.
func Percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	if done >= total {
		return 100
	}
	if done <= 0 {
		return 0
	}
	return int(done * 100 / total)
}
