package audit

// Terminal reports whether a sub-task status can no longer change.
func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskCompleted || s == SubtaskError
}

// NextSubtaskStatus returns the status a webhook delivery should leave a
// sub-task in, and whether that is a change. Terminal statuses never
// regress, so a repeated or late webhook is a no-op.
func NextSubtaskStatus(current SubtaskStatus, succeeded bool) (SubtaskStatus, bool) {
	if current.Terminal() {
		return current, false
	}
	if succeeded {
		return SubtaskCompleted, true
	}
	return SubtaskError, true
}

// Overall derives the job's externally visible status from its sub-task
// statuses. It is computed on read, never stored as independent truth.
// Both sub-tasks completed yields StatusCompleted, which callers treat as
// ready-for-aggregation; the client only sees "completed" once aggregation
// itself succeeds.
func Overall(j Job) Status {
	if j.OnPageStatus == SubtaskError || j.LighthouseStatus == SubtaskError {
		return StatusError
	}
	if j.OnPageStatus == SubtaskPending || j.LighthouseStatus == SubtaskPending {
		return StatusPending
	}
	return StatusCompleted
}

// Aggregatable reports whether the job may enter aggregation: both sub-tasks
// completed and neither errored. A job with any sub-task error is never
// aggregated.
func (j Job) Aggregatable() bool {
	return j.OnPageStatus == SubtaskCompleted && j.LighthouseStatus == SubtaskCompleted
}
