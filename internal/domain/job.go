package domain

// JobStatus is the lifecycle state of a simulation job. Jobs are owned by the
// orchestrator API; the worker only reads them (deck data, cancellation polls).
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Deck is one of the four deck slots in a job.
type Deck struct {
	Name string `json:"name"`
	Dck  string `json:"dck"`
}

// Job is the orchestrator's view of a submitted simulation job.
type Job struct {
	ID          string    `json:"id"`
	Decks       []Deck    `json:"decks"`
	Simulations int       `json:"simulations"`
	Parallelism int       `json:"parallelism"`
	Status      JobStatus `json:"status"`
}

// Cancelled reports whether the job has been cancelled by a user. The worker
// polls this during execution and aborts the running container when it flips.
func (j *Job) Cancelled() bool {
	return j.Status == JobCancelled
}
