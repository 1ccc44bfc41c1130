package agents

import (
	"context"
	"fmt"

	"documind/models"
)

const maxReportKeyPoints = 10

type DocumentInfo struct {
	DocumentID   string `json:"document_id"`
	TaskID       string `json:"task_id"`
	ChunkCount   int    `json:"chunk_count"`
	Characters   int    `json:"characters"`
	DocumentType string `json:"document_type"`
}

type FindingsBySeverity struct {
	High   []Finding `json:"high"`
	Medium []Finding `json:"medium"`
	Low    []Finding `json:"low"`
}

type ComplianceSection struct {
	RiskScore       int                `json:"risk_score"`
	RiskLevel       string             `json:"risk_level"`
	Findings        FindingsBySeverity `json:"findings"`
	Recommendations []string           `json:"recommendations"`
}

type StageRow struct {
	Stage          models.Stage        `json:"stage"`
	Status         models.ResultStatus `json:"status"`
	Tier           models.Tier         `json:"tier,omitempty"`
	Model          string              `json:"model,omitempty"`
	LLMCalls       int                 `json:"llm_calls"`
	CacheHits      int                 `json:"cache_hits"`
	Tokens         int                 `json:"tokens"`
	LatencyMS      int64               `json:"latency_ms"`
	BudgetExceeded bool                `json:"budget_exceeded"`
}

type DegradedStage struct {
	Stage  models.Stage `json:"stage"`
	Reason string       `json:"reason"`
}

// Report is the reporter payload.
type Report struct {
	Document         DocumentInfo       `json:"document"`
	ExecutiveSummary string             `json:"executive_summary,omitempty"`
	KeyPoints        []string           `json:"key_points"`
	DocumentType     string             `json:"document_type"`
	Answers          []Answer           `json:"answers"`
	Compliance       *ComplianceSection `json:"compliance,omitempty"`
	Stages           []StageRow         `json:"stages"`
	Degraded         []DegradedStage    `json:"degraded"`
	Flags            []string           `json:"flags"`
}

// Reporter assembles the final report from earlier results only.
type Reporter struct{}

func NewReporter() *Reporter { return &Reporter{} }

func (r *Reporter) Stage() models.Stage { return models.StageReport }

func (r *Reporter) Execute(_ context.Context, st *State) (*models.AgentResult, error) {
	res := newResult(models.StageReport)
	report := BuildReport(st)
	return res, setPayload(res, report)
}

// BuildReport is deterministic in the task state.
func BuildReport(st *State) *Report {
	report := &Report{
		Document:     DocumentInfo{DocumentID: st.Task.DocumentID, TaskID: st.Task.ID, DocumentType: "unknown"},
		KeyPoints:    []string{},
		DocumentType: "unknown",
		Answers:      []Answer{},
		Stages:       []StageRow{},
		Degraded:     []DegradedStage{},
		Flags:        []string{},
	}
	if st.Document != nil {
		report.Document.ChunkCount = len(st.Document.Chunks)
		report.Document.Characters = len(st.Document.RawText)
	}

	for _, stage := range models.PipelineStages {
		res := st.Result(stage)
		if res == nil || stage == models.StageReport {
			continue
		}
		report.Stages = append(report.Stages, StageRow{
			Stage:          stage,
			Status:         res.Status,
			Tier:           res.Meta.Tier,
			Model:          res.Meta.Model,
			LLMCalls:       res.Meta.LLMCalls,
			CacheHits:      res.Meta.CacheHits,
			Tokens:         res.Meta.InputTokens + res.Meta.OutputTokens,
			LatencyMS:      res.Meta.LatencyMS,
			BudgetExceeded: res.BudgetExceeded,
		})
		if !res.Succeeded() {
			report.Degraded = append(report.Degraded, DegradedStage{Stage: stage, Reason: res.Error})
		}
		if res.BudgetExceeded {
			report.Flags = append(report.Flags, fmt.Sprintf("budget_exceeded:%s", stage))
		}
	}

	report.addSummary(st.Result(models.StageSummarize))
	report.addAnswers(st.Result(models.StageQA))
	report.addCompliance(st.Result(models.StageCompliance))
	return report
}

func (r *Report) addSummary(res *models.AgentResult) {
	if res == nil || len(res.Payload) == 0 {
		return
	}
	var s Summary
	if err := res.Decode(&s); err != nil {
		r.degrade(models.StageSummarize, "unreadable summary payload")
		return
	}
	r.ExecutiveSummary = s.ExecutiveSummary
	if len(s.KeyPoints) > maxReportKeyPoints {
		s.KeyPoints = s.KeyPoints[:maxReportKeyPoints]
	}
	if s.KeyPoints != nil {
		r.KeyPoints = s.KeyPoints
	}
	if s.DocumentType != "" {
		r.DocumentType = s.DocumentType
		r.Document.DocumentType = s.DocumentType
	}
	if s.Fallback {
		r.Flags = append(r.Flags, "summary_unstructured")
	}
}

func (r *Report) addAnswers(res *models.AgentResult) {
	if res == nil || len(res.Payload) == 0 {
		return
	}
	var qa QAResult
	if err := res.Decode(&qa); err != nil {
		r.degrade(models.StageQA, "unreadable answers payload")
		return
	}
	if qa.Answers != nil {
		r.Answers = qa.Answers
	}
	for _, a := range qa.Answers {
		if a.Truncated {
			r.Flags = append(r.Flags, "truncated_context:"+a.Question)
		}
		if a.Error != "" {
			r.Flags = append(r.Flags, "unanswered:"+a.Question)
		}
	}
}

func (r *Report) addCompliance(res *models.AgentResult) {
	if res == nil || len(res.Payload) == 0 {
		return
	}
	var cr ComplianceReport
	if err := res.Decode(&cr); err != nil {
		r.degrade(models.StageCompliance, "unreadable compliance payload")
		return
	}
	sec := &ComplianceSection{
		RiskScore:       cr.RiskScore,
		RiskLevel:       cr.RiskLevel,
		Recommendations: cr.Recommendations,
		Findings:        FindingsBySeverity{High: []Finding{}, Medium: []Finding{}, Low: []Finding{}},
	}
	for _, f := range cr.Findings {
		switch f.Severity {
		case "high":
			sec.Findings.High = append(sec.Findings.High, f)
		case "medium":
			sec.Findings.Medium = append(sec.Findings.Medium, f)
		default:
			sec.Findings.Low = append(sec.Findings.Low, f)
		}
	}
	for _, c := range cr.Categories {
		if c.Truncated {
			r.Flags = append(r.Flags, "truncated_context:"+c.Name)
		}
		if c.Error != "" {
			r.Flags = append(r.Flags, "category_failed:"+c.Name)
		}
	}
	r.Compliance = sec
}

func (r *Report) degrade(stage models.Stage, reason string) {
	for _, d := range r.Degraded {
		if d.Stage == stage {
			return
		}
	}
	r.Degraded = append(r.Degraded, DegradedStage{Stage: stage, Reason: reason})
}
