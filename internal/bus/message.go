// Package bus is the push-mode task source: a Pub/Sub subscription whose
// flow control is capped at the worker's capacity.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// Kind classifies a decoded message.
type Kind int

const (
	// KindSimulation is a current-format simulation task.
	KindSimulation Kind = iota
	// KindLegacyJobCreated is the retired per-job announcement. Still
	// published by old orchestrator builds; acknowledged without processing.
	KindLegacyJobCreated
)

// envelope is the tagged union of every message shape the subscription can
// carry. Shape is validated here at the transport boundary; malformed
// payloads are rejected so poison messages never reach the handler.
type envelope struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	SimID     string `json:"simId"`
	SimIndex  int    `json:"simIndex"`
	TotalSims int    `json:"totalSims"`
	CreatedAt string `json:"createdAt"`
}

// Decode parses one bus message. A non-nil error means the message is
// malformed and must be acknowledged immediately, never redelivered.
func Decode(data []byte) (domain.SimulationTask, Kind, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.SimulationTask{}, 0, fmt.Errorf("unmarshal message: %w", err)
	}

	switch {
	case env.Type == "simulation":
		if env.JobID == "" || env.SimID == "" {
			return domain.SimulationTask{}, 0, fmt.Errorf("simulation message missing jobId/simId")
		}
		return domain.SimulationTask{
			JobID:     env.JobID,
			SimID:     env.SimID,
			SimIndex:  env.SimIndex,
			TotalSims: env.TotalSims,
		}, KindSimulation, nil

	case env.Type == "" && env.JobID != "" && env.CreatedAt != "":
		return domain.SimulationTask{}, KindLegacyJobCreated, nil

	default:
		return domain.SimulationTask{}, 0, fmt.Errorf("unrecognized message shape (type=%q)", env.Type)
	}
}
