package domain

// SimState is the lifecycle state of a single simulation. The orchestrator
// seeds every simulation as PENDING; a worker only ever writes RUNNING
// followed by exactly one terminal state.
type SimState string

const (
	SimPending   SimState = "PENDING"
	SimRunning   SimState = "RUNNING"
	SimCompleted SimState = "COMPLETED"
	SimFailed    SimState = "FAILED"
	SimCancelled SimState = "CANCELLED"
)

// Terminal reports whether no further transitions occur for the simulation.
func (s SimState) Terminal() bool {
	return s == SimCompleted || s == SimFailed || s == SimCancelled
}

// SimulationTask is one unit of dispatchable work: "run simulation i of job J".
// It is created by the orchestrator (one message per simulation in push mode,
// or fanned out locally from a claimed job in pull mode) and never persisted
// by the worker.
type SimulationTask struct {
	JobID     string `json:"jobId"`
	SimID     string `json:"simId"`
	SimIndex  int    `json:"simIndex"`
	TotalSims int    `json:"totalSims"`
}

// SimulationReport is the PATCH body for a per-simulation status update.
// Updates are last-write-wins on the orchestrator side, so re-sending the
// same report is safe.
type SimulationReport struct {
	State        SimState `json:"state"`
	WorkerID     string   `json:"workerId,omitempty"`
	WorkerName   string   `json:"workerName,omitempty"`
	DurationMs   int64    `json:"durationMs,omitempty"`
	Winner       string   `json:"winner,omitempty"`
	WinningTurn  int      `json:"winningTurn,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}
