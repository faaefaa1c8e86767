// Package sla tracks the per-queue SLA state machine: ok, warning, and
// breached, transitioning deterministically from a queue's observed
// oldest-job-age against its configured SLA target.
package sla

import (
	"github.com/autoscaled/autoscaled/internal/domain"
)

// Tracker holds the current SlaStatus for every queue it has seen. It is
// owned exclusively by the supervisor's control loop, matching the
// single-writer model the rest of the core follows.
type Tracker struct {
	status map[domain.Key]domain.SlaStatus
}

// NewTracker builds an empty Tracker; every queue starts implicitly in
// SlaOK the first time Update is called for it.
func NewTracker() *Tracker {
	return &Tracker{status: make(map[domain.Key]domain.SlaStatus)}
}

// Update classifies oldestJobAge against cfg's SLA thresholds and
// advances the tracked state for cfg.Key(), returning the previous and
// new status. warnFraction/recoveryFactor default to 0.8 when the
// configuration leaves them at zero, matching the spec's example
// thresholds.
func (t *Tracker) Update(cfg domain.QueueConfiguration, oldestJobAge float64) (previous, current domain.SlaStatus) {
	key := cfg.Key()
	previous, seen := t.status[key]
	if !seen {
		previous = domain.SlaOK
	}

	warnFraction := cfg.WarnFraction
	if warnFraction <= 0 {
		warnFraction = 0.8
	}
	recoveryFactor := cfg.RecoveryFactor
	if recoveryFactor <= 0 {
		recoveryFactor = 0.8
	}

	current = classify(previous, oldestJobAge, cfg.SLASeconds, warnFraction, recoveryFactor)
	t.status[key] = current
	return previous, current
}

// classify implements the state machine described by the spec:
// ok --(age >= SLA)--> breached --(age < SLA*recoveryFactor)--> ok, with
// an intermediate warning band entered from ok/warning when
// age in [SLA*warnFraction, SLA). A breached queue only returns through
// ok, never stopping in warning — recovery is a single-step transition so
// that two SlaBreached events never appear without an intervening
// SlaRecovered in between.
func classify(previous domain.SlaStatus, age, slaSeconds, warnFraction, recoveryFactor float64) domain.SlaStatus {
	if slaSeconds <= 0 {
		return domain.SlaOK
	}

	warnThreshold := slaSeconds * warnFraction
	recoveryThreshold := slaSeconds * recoveryFactor

	if previous == domain.SlaBreached {
		if age < recoveryThreshold {
			return domain.SlaOK
		}
		return domain.SlaBreached
	}

	switch {
	case age >= slaSeconds:
		return domain.SlaBreached
	case age >= warnThreshold:
		return domain.SlaWarning
	default:
		return domain.SlaOK
	}
}

// Status returns the last known status for a queue, SlaOK if unseen.
func (t *Tracker) Status(key domain.Key) domain.SlaStatus {
	if s, ok := t.status[key]; ok {
		return s
	}
	return domain.SlaOK
}

// Reset drops all tracked state.
func (t *Tracker) Reset() {
	t.status = make(map[domain.Key]domain.SlaStatus)
}
