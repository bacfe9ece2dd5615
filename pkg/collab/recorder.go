package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Recorder is the persistence collaborator: it receives the full audit
// bundle at run end. The pipeline itself performs no durable writes.
type Recorder interface {
	RecordRun(ctx context.Context, run *RunRecord) error
}

// NopRecorder discards run records.
type NopRecorder struct{}

func (NopRecorder) RecordRun(context.Context, *RunRecord) error { return nil }

// FileRecorder writes each run as pretty-printed JSON under
// baseDir/<run-id>/, one run.json plus one file per stage.
type FileRecorder struct {
	baseDir string
}

// NewFileRecorder creates a recorder rooted at baseDir.
func NewFileRecorder(baseDir string) (*FileRecorder, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileRecorder{baseDir: baseDir}, nil
}

// RecordRun writes the run bundle.
func (r *FileRecorder) RecordRun(_ context.Context, run *RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record requires an ID")
	}
	runDir := filepath.Join(r.baseDir, run.ID)
	if err := os.MkdirAll(filepath.Join(runDir, "stages"), 0755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, "run.json"), run); err != nil {
		return err
	}
	for i, stage := range run.Stages {
		path := filepath.Join(runDir, "stages", fmt.Sprintf("%d-%s.json", i+1, stage.Role))
		if err := writeJSON(path, stage); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
