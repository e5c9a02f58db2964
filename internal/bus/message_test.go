package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSimulationTask(t *testing.T) {
	data := []byte(`{"type":"simulation","jobId":"job-1","simId":"sim-9","simIndex":3,"totalSims":8}`)

	task, kind, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindSimulation, kind)
	assert.Equal(t, "job-1", task.JobID)
	assert.Equal(t, "sim-9", task.SimID)
	assert.Equal(t, 3, task.SimIndex)
	assert.Equal(t, 8, task.TotalSims)
}

func TestDecodeLegacyJobCreated(t *testing.T) {
	data := []byte(`{"jobId":"job-1","createdAt":"2026-08-01T12:00:00Z"}`)

	_, kind, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindLegacyJobCreated, kind)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"teardown","jobId":"job-1"}`},
		{"simulation missing simId", `{"type":"simulation","jobId":"job-1"}`},
		{"simulation missing jobId", `{"type":"simulation","simId":"sim-1"}`},
		{"empty object", `{}`},
		{"legacy missing createdAt", `{"jobId":"job-1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}
