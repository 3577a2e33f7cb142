package domain

import "time"

type ReconcileReport struct {
	Created   []string
	Updated   []string
	Deleted   []string
	Unchanged int
	Skipped   bool
	Reason    error
	StartedAt time.Time
	Duration  time.Duration
}

// Changed reports whether the pass wrote anything to the projection.
func (r ReconcileReport) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Deleted) > 0
}
