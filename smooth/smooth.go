// Package smooth implements the linear parameter ramp (C12) used to
// avoid zippering when a control-rate parameter (gain, pan, pitch,
// filter cutoff) changes.
package smooth

// Linear ramps a value toward a target over a fixed number of samples
// rather than snapping, so control-rate changes never produce an
// audible step.
type Linear struct {
	value      float64
	target     float64
	step       float64
	remaining  int
	totalSteps int
}

// NewLinear returns a smoother initialized to value with no ramp in
// progress.
func NewLinear(value float64) *Linear {
	return &Linear{value: value, target: value}
}

// Reset sets the ramp duration used by future calls to Set: a full
// ramp takes max(1, rate*time) samples, where rate is typically the
// sample rate and time is a duration in seconds.
func (l *Linear) Reset(rate, time float64) {
	steps := int(rate * time)
	if steps < 1 {
		steps = 1
	}
	l.totalSteps = steps
}

// Set schedules a ramp to newValue over totalSteps samples, or snaps
// immediately if immediate is true or no ramp duration was configured.
func (l *Linear) Set(newValue float64, immediate bool) {
	l.target = newValue
	if immediate || l.totalSteps <= 1 {
		l.value = newValue
		l.remaining = 0
		l.step = 0
		return
	}
	l.remaining = l.totalSteps
	l.step = (newValue - l.value) / float64(l.totalSteps)
}

// GetNext returns the next sample of the ramp and advances it.
func (l *Linear) GetNext() float64 {
	if l.remaining > 0 {
		l.value += l.step
		l.remaining--
		if l.remaining == 0 {
			l.value = l.target
		}
	}
	return l.value
}

// Value returns the current value without advancing the ramp.
func (l *Linear) Value() float64 { return l.value }

// IsConstant reports whether no ramp is currently in progress, so the
// caller may skip a per-sample GetNext loop and read Value once.
func (l *Linear) IsConstant() bool { return l.remaining == 0 }
