package filter

import "time"

// Delta describes the timestamp pair used to split a catalog into rows that
// are new relative to a cutoff and rows that were updated relative to it.
//
// For every record and every cutoff C, New(C) and Updated(C) never both match:
// New requires created > C while Updated requires created < C.
type Delta struct {
	CreatedAt Field[time.Time]
	UpdatedAt Field[time.Time]
}

// New matches records created after the cutoff.
func (d Delta) New(cutoff time.Time) Node {
	return Gt(d.CreatedAt, cutoff)
}

// Updated matches records changed after the cutoff that already existed
// before it.
func (d Delta) Updated(cutoff time.Time) Node {
	return All(
		Gt(d.UpdatedAt, cutoff),
		Lt(d.CreatedAt, cutoff),
	)
}
