package geocode

import "time"

// JobStatus is the lifecycle state of a geocode job.
type JobStatus string

const (
	// JobPending means the job has not been attempted yet.
	JobPending JobStatus = "pending"
	// JobFailed means the last attempt failed; the job stays eligible for
	// retry on the worker's next pass.
	JobFailed JobStatus = "failed"
	// JobDone is terminal. Done jobs are never processed again.
	JobDone JobStatus = "done"
)

// OverrideMarker is recorded as a job's last error when an operator override
// neutralizes it.
const OverrideMarker = "Manual override"

// Job is one unit of pending geocoding work tied to a single order. Attempts
// only ever increases; it is the sole bookkeeping for retries and escalation.
type Job struct {
	ID        string
	OrderID   string
	Status    JobStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FailedJob is a job joined with the order fields operators need for triage.
type FailedJob struct {
	Job
	DeliveryAddress string
	DeliveryLat     *float64
	DeliveryLng     *float64
	GeocodeStatus   string
}

// Point is a resolved coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}
