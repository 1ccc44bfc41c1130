package models

import (
	"encoding/json"
	"time"
)

// Stage names a pipeline stage. The same names are accepted by the Task API.
type Stage string

const (
	StageParse      Stage = "parse"
	StageSummarize  Stage = "summarize"
	StageQA         Stage = "qa"
	StageCompliance Stage = "compliance"
	StageReport     Stage = "report"
)

// PipelineStages lists every stage in pipeline order.
var PipelineStages = []Stage{StageParse, StageSummarize, StageQA, StageCompliance, StageReport}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	for _, st := range PipelineStages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// TaskStatus is the lifecycle status of an AnalysisTask.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskRunning  TaskStatus = "running"
	TaskPartial  TaskStatus = "partial"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// Terminal reports whether no further transitions happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskPartial || s == TaskComplete || s == TaskFailed
}

// ResultStatus is the outcome of one stage execution.
type ResultStatus string

const (
	ResultSuccess        ResultStatus = "success"
	ResultRetryableError ResultStatus = "retryable-error"
	ResultFatalError     ResultStatus = "fatal-error"
)

// Tier is a named class of LLM selected by the model router.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierQuality  Tier = "quality"
)

// Rank orders tiers from cheapest to most capable.
func (t Tier) Rank() int {
	switch t {
	case TierFast:
		return 0
	case TierBalanced:
		return 1
	case TierQuality:
		return 2
	}
	return -1
}

// ParseTier validates a tier name. Empty input is not a tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFast, TierBalanced, TierQuality:
		return Tier(s), true
	}
	return "", false
}

// AnalysisTask is one run of the pipeline over a document.
type AnalysisTask struct {
	ID           string                 `bson:"_id" json:"task_id"`
	DocumentID   string                 `bson:"document_id" json:"document_id"`
	Stages       []Stage                `bson:"stages" json:"stages"`
	Questions    []string               `bson:"questions,omitempty" json:"questions,omitempty"`
	TierOverride Tier                   `bson:"tier_override,omitempty" json:"tier_override,omitempty"`
	Status       TaskStatus             `bson:"status" json:"status"`
	Sequence     []string               `bson:"sequence" json:"sequence"`
	Results      map[Stage]*AgentResult `bson:"results" json:"results"`
	Error        string                 `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `bson:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time             `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Requested reports whether the caller asked for the stage.
func (t *AnalysisTask) Requested(stage Stage) bool {
	for _, s := range t.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// ResultMeta carries cost and latency attribution for a stage.
type ResultMeta struct {
	Tier         Tier   `bson:"tier,omitempty" json:"tier,omitempty"`
	Model        string `bson:"model,omitempty" json:"model,omitempty"`
	LLMCalls     int    `bson:"llm_calls" json:"llm_calls"`
	CacheHits    int    `bson:"cache_hits" json:"cache_hits"`
	InputTokens  int    `bson:"input_tokens" json:"input_tokens"`
	OutputTokens int    `bson:"output_tokens" json:"output_tokens"`
	LatencyMS    int64  `bson:"latency_ms" json:"latency_ms"`
}

// Add folds another call's attribution into m.
func (m *ResultMeta) Add(o ResultMeta) {
	if o.Tier.Rank() > m.Tier.Rank() {
		m.Tier = o.Tier
		m.Model = o.Model
	}
	m.LLMCalls += o.LLMCalls
	m.CacheHits += o.CacheHits
	m.InputTokens += o.InputTokens
	m.OutputTokens += o.OutputTokens
}

// AgentResult is the recorded outcome of one stage.
type AgentResult struct {
	Stage          Stage           `bson:"stage" json:"stage"`
	Status         ResultStatus    `bson:"status" json:"status"`
	Payload        json.RawMessage `bson:"payload,omitempty" json:"payload,omitempty"`
	Error          string          `bson:"error,omitempty" json:"error,omitempty"`
	Meta           ResultMeta      `bson:"meta" json:"meta"`
	CitedChunkIDs  []string        `bson:"cited_chunk_ids,omitempty" json:"cited_chunk_ids,omitempty"`
	BudgetExceeded bool            `bson:"budget_exceeded" json:"budget_exceeded"`
	StartedAt      time.Time       `bson:"started_at" json:"started_at"`
	FinishedAt     time.Time       `bson:"finished_at" json:"finished_at"`
}

// Succeeded reports a success status.
func (r *AgentResult) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}

// Decode unmarshals the payload into v.
func (r *AgentResult) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}
