package orchestrator

import (
	"testing"

	"documind/models"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    State
		outcome Outcome
		qa      bool
		want    State
	}{
		{StateParse, Success, false, StateSummarize},
		{StateParse, Errored, true, StateFailed},
		{StateSummarize, Success, true, StateQA},
		{StateSummarize, Errored, true, StateQA},
		{StateSummarize, Success, false, StateCompliance},
		{StateSummarize, Errored, false, StateCompliance},
		{StateQA, Success, true, StateCompliance},
		{StateQA, Errored, true, StateCompliance},
		{StateCompliance, Errored, false, StateReport},
		{StateCompliance, Success, true, StateReport},
		{StateReport, Success, false, StateDone},
		{StateReport, Errored, false, StateFailed},
		{StateDone, Success, false, StateFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Next(tt.from, tt.outcome, tt.qa), "%s/%d/qa=%v", tt.from, tt.outcome, tt.qa)
	}
}

func TestQAWanted(t *testing.T) {
	assert.True(t, QAWanted(&models.AnalysisTask{Stages: []models.Stage{models.StageQA}}))
	assert.True(t, QAWanted(&models.AnalysisTask{Stages: []models.Stage{models.StageSummarize}, Questions: []string{"why?"}}))
	assert.False(t, QAWanted(&models.AnalysisTask{Stages: []models.Stage{models.StageSummarize}}))
}

func TestFinalStatus(t *testing.T) {
	ok := &models.AgentResult{Status: models.ResultSuccess}
	bad := &models.AgentResult{Status: models.ResultRetryableError}

	assert.Equal(t, models.TaskComplete, FinalStatus(StateDone, map[models.Stage]*models.AgentResult{models.StageParse: ok, models.StageReport: ok}))
	assert.Equal(t, models.TaskPartial, FinalStatus(StateDone, map[models.Stage]*models.AgentResult{models.StageParse: ok, models.StageQA: bad}))
	assert.Equal(t, models.TaskFailed, FinalStatus(StateFailed, map[models.Stage]*models.AgentResult{models.StageParse: bad}))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, Success, OutcomeOf(&models.AgentResult{Status: models.ResultSuccess}))
	assert.Equal(t, Errored, OutcomeOf(&models.AgentResult{Status: models.ResultFatalError}))
	assert.Equal(t, Errored, OutcomeOf(nil))
}
