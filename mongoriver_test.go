package main

import (
	"testing"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withStart(t *testing.T, start cfg.StartConfiguration) {
	t.Helper()
	prevStart, prevCheckpoint := cfg.Config.Start, cfg.Config.Checkpoint
	cfg.Config.Start = start
	cfg.Config.Checkpoint = cfg.CheckpointConfiguration{Enabled: true, Name: "default"}
	t.Cleanup(func() {
		cfg.Config.Start = prevStart
		cfg.Config.Checkpoint = prevCheckpoint
	})
}

func TestResolveStart_Modes(t *testing.T) {
	tests := []struct {
		start cfg.StartConfiguration
		want  string
	}{
		{cfg.StartConfiguration{Mode: cfg.StartMostRecent}, "most_recent"},
		{cfg.StartConfiguration{Mode: cfg.StartBeginning}, "beginning"},
		{cfg.StartConfiguration{Mode: cfg.StartTimestamp, Timestamp: "1700000000:3"}, "position(1700000000:3)"},
		{cfg.StartConfiguration{Mode: cfg.StartDate, Date: "2024-01-02T03:04:05+02:00"}, "date(2024-01-02T01:04:05Z)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.start.Mode), func(t *testing.T) {
			withStart(t, tt.start)
			start, err := resolveStart(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, start.String())
		})
	}
}

func TestResolveStart_Checkpoint(t *testing.T) {
	withStart(t, cfg.StartConfiguration{Mode: cfg.StartCheckpoint, Fallback: cfg.StartBeginning})

	store, err := publisher.NewCheckpointStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	start, err := resolveStart(store)
	require.NoError(t, err)
	assert.Equal(t, "beginning", start.String(), "no checkpoint yet uses the fallback")

	_, err = store.Commit("default", oplog.Position{T: 500, I: 2})
	require.NoError(t, err)

	start, err = resolveStart(store)
	require.NoError(t, err)
	assert.Equal(t, "position(500:2)", start.String())
}

func TestResolveStart_Errors(t *testing.T) {
	withStart(t, cfg.StartConfiguration{Mode: cfg.StartCheckpoint, Fallback: cfg.StartMostRecent})
	_, err := resolveStart(nil)
	assert.Error(t, err)

	withStart(t, cfg.StartConfiguration{Mode: cfg.StartTimestamp, Timestamp: "soon"})
	_, err = resolveStart(nil)
	assert.Error(t, err)

	withStart(t, cfg.StartConfiguration{Mode: "sideways"})
	_, err = resolveStart(nil)
	assert.Error(t, err)
}
