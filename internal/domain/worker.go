package domain

// WorkerStatus is the fleet-view state of a worker process.
type WorkerStatus string

const (
	WorkerIdle WorkerStatus = "idle"
	WorkerBusy WorkerStatus = "busy"
	// WorkerUpdating is sent once during graceful shutdown so the fleet view
	// shows a restart instead of a long false "busy" or "offline" gap.
	WorkerUpdating WorkerStatus = "updating"
)

// Heartbeat is the periodic self-report a worker sends to the orchestrator.
// A worker that stops heartbeating simply goes stale in the fleet view; there
// is no explicit deregistration.
type Heartbeat struct {
	WorkerID          string       `json:"workerId"`
	WorkerName        string       `json:"workerName"`
	Status            WorkerStatus `json:"status"`
	Capacity          int          `json:"capacity"`
	ActiveSimulations int          `json:"activeSimulations"`
	UptimeMs          int64        `json:"uptimeMs"`
}
