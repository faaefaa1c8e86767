package domain

// Action is the direction of a ScalingDecision.
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionHold      Action = "hold"
)

// ScalingDecision is immutable once emitted by the engine. Policies do not
// mutate a decision in place — each policy that wants to change one returns
// a new value built from the one it was handed.
type ScalingDecision struct {
	Connection string
	Queue      string

	FromWorkers int
	ToWorkers   int
	Action      Action
	Reason      string

	// Prediction is the strategy's advisory predicted oldest-job-age in
	// seconds at the configured lookahead, nil when the strategy has no
	// prediction for this tick (e.g. fewer than 3 trend samples).
	Prediction *float64

	SourceStrategy string
}

// Hold returns a copy of d rewritten to a no-op decision with the given
// reason. Policies use this to veto a decision while preserving its
// identity (connection/queue/fromWorkers).
func (d ScalingDecision) Hold(reason string) ScalingDecision {
	d.ToWorkers = d.FromWorkers
	d.Action = ActionHold
	d.Reason = reason
	return d
}

// Key returns the (connection, queue) this decision concerns.
func (d ScalingDecision) Key() Key {
	return Key{Connection: d.Connection, Queue: d.Queue}
}
