package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusPending:   false,
		JobStatusSubmitted: false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	}
	for status, want := range terminal {
		assert.Equal(t, want, status.IsTerminal(), string(status))
	}
}

func TestParseJobStatus(t *testing.T) {
	st, ok := ParseJobStatus("COMPLETED")
	assert.True(t, ok)
	assert.Equal(t, JobStatusCompleted, st)

	_, ok = ParseJobStatus("paused")
	assert.False(t, ok)
}

func TestJob_Duration(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &Job{}
	assert.Zero(t, j.Duration(now))

	started := now.Add(-time.Minute)
	j.StartedAt = &started
	assert.Equal(t, time.Minute, j.Duration(now))

	ended := started.Add(10 * time.Second)
	j.EndedAt = &ended
	assert.Equal(t, 10*time.Second, j.Duration(now))
}
