package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"documind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func reportState(t *testing.T) *State {
	points := make([]string, 14)
	for i := range points {
		points[i] = fmt.Sprintf("point %d", i)
	}
	return &State{
		Task: &models.AnalysisTask{ID: "task-1", DocumentID: "doc-1"},
		Document: &models.Document{
			ID:      "doc-1",
			RawText: contractText,
			Chunks:  []models.Chunk{{ID: "doc-1:0"}, {ID: "doc-1:1"}},
		},
		Results: map[models.Stage]*models.AgentResult{
			models.StageParse: {Stage: models.StageParse, Status: models.ResultSuccess},
			models.StageSummarize: {
				Stage:          models.StageSummarize,
				Status:         models.ResultSuccess,
				BudgetExceeded: true,
				Meta:           models.ResultMeta{Tier: models.TierBalanced, Model: "fake:b", LLMCalls: 4, InputTokens: 100, OutputTokens: 20},
				Payload:        payload(t, Summary{ExecutiveSummary: "Exec.", KeyPoints: points, DocumentType: "contract"}),
			},
			models.StageQA: {
				Stage:  models.StageQA,
				Status: models.ResultRetryableError,
				Error:  "stage failure: all 1 questions failed",
				Payload: payload(t, QAResult{Answers: []Answer{
					{Question: "q1", Error: "rate limited", Truncated: true},
				}}),
			},
			models.StageCompliance: {
				Stage:  models.StageCompliance,
				Status: models.ResultSuccess,
				Payload: payload(t, ComplianceReport{
					RiskScore: 50,
					RiskLevel: "medium",
					Findings: []Finding{
						{Rule: "unlimited liability", Severity: "high"},
						{Rule: "automatic renewal", Severity: "medium"},
						{Rule: "force majeure", Severity: "low"},
					},
					Recommendations: []string{"Negotiate"},
				}),
			},
		},
	}
}

func TestBuildReport(t *testing.T) {
	st := reportState(t)
	r := BuildReport(st)

	assert.Equal(t, DocumentInfo{DocumentID: "doc-1", TaskID: "task-1", ChunkCount: 2, Characters: len(contractText), DocumentType: "contract"}, r.Document)
	assert.Equal(t, "Exec.", r.ExecutiveSummary)
	assert.Len(t, r.KeyPoints, maxReportKeyPoints)
	assert.Equal(t, "point 0", r.KeyPoints[0])

	require.Len(t, r.Answers, 1)
	require.NotNil(t, r.Compliance)
	assert.Equal(t, 50, r.Compliance.RiskScore)
	assert.Len(t, r.Compliance.Findings.High, 1)
	assert.Len(t, r.Compliance.Findings.Medium, 1)
	assert.Len(t, r.Compliance.Findings.Low, 1)

	require.Len(t, r.Stages, 4)
	assert.Equal(t, models.StageParse, r.Stages[0].Stage)
	assert.Equal(t, 120, r.Stages[1].Tokens)
	assert.Equal(t, []DegradedStage{{Stage: models.StageQA, Reason: "stage failure: all 1 questions failed"}}, r.Degraded)
	assert.ElementsMatch(t, []string{"budget_exceeded:summarize", "truncated_context:q1", "unanswered:q1"}, r.Flags)
}

func TestBuildReportIsDeterministic(t *testing.T) {
	st := reportState(t)
	res1, err := NewReporter().Execute(context.Background(), st)
	require.NoError(t, err)
	res2, err := NewReporter().Execute(context.Background(), st)
	require.NoError(t, err)
	assert.JSONEq(t, string(res1.Payload), string(res2.Payload))
}

func TestBuildReportWithOnlyParse(t *testing.T) {
	st := &State{
		Task:     &models.AnalysisTask{ID: "t", DocumentID: "d"},
		Document: &models.Document{ID: "d", Chunks: []models.Chunk{{ID: "d:0"}}},
		Results: map[models.Stage]*models.AgentResult{
			models.StageParse: {Stage: models.StageParse, Status: models.ResultSuccess},
		},
	}
	r := BuildReport(st)
	assert.Equal(t, "unknown", r.DocumentType)
	assert.Empty(t, r.KeyPoints)
	assert.Empty(t, r.Answers)
	assert.Nil(t, r.Compliance)
	assert.Empty(t, r.Degraded)
}

func TestBuildReportUnreadablePayload(t *testing.T) {
	st := reportState(t)
	st.Results[models.StageSummarize].Payload = json.RawMessage(`"not an object"`)
	r := BuildReport(st)
	assert.Contains(t, r.Degraded, DegradedStage{Stage: models.StageSummarize, Reason: "unreadable summary payload"})
}
