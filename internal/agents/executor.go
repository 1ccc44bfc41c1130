// Package agents implements the pipeline stages. Every executor reads the
// task state, does its work and returns an AgentResult; the orchestrator
// decides what happens next.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"documind/models"
)

// State is what a stage sees of the running task.
type State struct {
	Task     *models.AnalysisTask
	Document *models.Document
	Results  map[models.Stage]*models.AgentResult
}

// Result returns the recorded result of an earlier stage, or nil.
func (s *State) Result(stage models.Stage) *models.AgentResult {
	if s.Results == nil {
		return nil
	}
	return s.Results[stage]
}

// Executor runs one stage. A non-nil error marks the stage failed; the
// returned result may still carry partial payload and metadata.
type Executor interface {
	Stage() models.Stage
	Execute(ctx context.Context, st *State) (*models.AgentResult, error)
}

// DocumentSource hands the parser the externally extracted text.
type DocumentSource interface {
	Get(ctx context.Context, documentID string) (*models.Document, error)
}

func newResult(stage models.Stage) *models.AgentResult {
	return &models.AgentResult{Stage: stage, Status: models.ResultSuccess}
}

func setPayload(res *models.AgentResult, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", res.Stage, err)
	}
	res.Payload = data
	return nil
}

func requireDocument(st *State) error {
	if st.Document == nil || len(st.Document.Chunks) == 0 {
		return fmt.Errorf("%w: document has not been parsed", models.ErrStageFailure)
	}
	return nil
}
