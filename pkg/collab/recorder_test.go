package collab

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileRecorderWritesRunBundle(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRecorder(dir)
	require.NoError(t, err)

	run := &RunRecord{
		ID:        "run-123",
		Message:   "plan the migration",
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
		Status:    OutcomeOK,
		Answer:    "the plan",
		Stages: []StageRecord{
			{Role: StageAnalyst, Model: "mock-model", Upstream: "mock-1", Content: "breakdown"},
			{Role: StageResearcher, Model: "mock-model", Upstream: "mock-1", Content: "notes"},
		},
	}
	require.NoError(t, r.RecordRun(context.Background(), run))

	data, err := os.ReadFile(filepath.Join(dir, "run-123", "run.json"))
	require.NoError(t, err)

	var got RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, OutcomeOK, got.Status)
	require.Len(t, got.Stages, 2)

	_, err = os.Stat(filepath.Join(dir, "run-123", "stages", "1-analyst.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "run-123", "stages", "2-researcher.json"))
	require.NoError(t, err)
}

func TestFileRecorderRejectsEmptyRun(t *testing.T) {
	r, err := NewFileRecorder(t.TempDir())
	require.NoError(t, err)
	require.Error(t, r.RecordRun(context.Background(), nil))
	require.Error(t, r.RecordRun(context.Background(), &RunRecord{}))
}

func TestNewFileRecorderRequiresBaseDir(t *testing.T) {
	_, err := NewFileRecorder("")
	require.Error(t, err)
}
