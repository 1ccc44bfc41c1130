package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"documind/internal/assembler"
	"documind/internal/logger"
	"documind/models"
)

var severityWeights = map[string]int{"high": 30, "medium": 15, "low": 5}

const (
	maxRiskScore          = 100
	maxExcerptLen         = 100
	defaultRecommendation = "Document appears compliant - standard review recommended"

	MethodLLM     = "llm"
	MethodKeyword = "keyword"
	MethodSkipped = "skipped"
)

type Finding struct {
	Category    string `json:"category"`
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Excerpt     string `json:"excerpt"`
}

type CategoryResult struct {
	Name          string    `json:"name"`
	Method        string    `json:"method"`
	Findings      []Finding `json:"findings"`
	CitedChunkIDs []string  `json:"cited_chunk_ids,omitempty"`
	Truncated     bool      `json:"truncated,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ComplianceReport is the compliance payload.
type ComplianceReport struct {
	RiskScore       int              `json:"risk_score"`
	RiskLevel       string           `json:"risk_level"`
	Findings        []Finding        `json:"findings"`
	Categories      []CategoryResult `json:"categories"`
	Recommendations []string         `json:"recommendations"`
	ChunksAnalyzed  int              `json:"chunks_analyzed"`
}

// Compliance checks each rule category against retrieved excerpts.
type Compliance struct {
	caller    *Caller
	retriever Retriever
	rules     RuleSet
	opts      RAGOptions
}

func NewCompliance(caller *Caller, r Retriever, rules RuleSet, opts RAGOptions) *Compliance {
	return &Compliance{caller: caller, retriever: r, rules: rules, opts: opts}
}

func (c *Compliance) Stage() models.Stage { return models.StageCompliance }

func (c *Compliance) Execute(ctx context.Context, st *State) (*models.AgentResult, error) {
	res := newResult(models.StageCompliance)
	if err := requireDocument(st); err != nil {
		return res, err
	}

	report := ComplianceReport{
		Findings:       []Finding{},
		Categories:     []CategoryResult{},
		ChunksAnalyzed: len(st.Document.Chunks),
	}
	var firstErr error
	applicable, failed := 0, 0
	cited := map[string]bool{}
	for _, cat := range c.rules.Categories {
		if !cat.Applies(st.Document.RawText) {
			report.Categories = append(report.Categories, CategoryResult{Name: cat.Name, Method: MethodSkipped, Findings: []Finding{}})
			continue
		}
		applicable++

		cr, meta, err := c.check(ctx, st, cat)
		res.Meta.Add(meta)
		res.Meta.LatencyMS += meta.LatencyMS
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("Compliance category failed", "task_id", st.Task.ID, "category", cat.Name, "error", err)
			cr.Error = err.Error()
		}
		if cr.Truncated {
			res.BudgetExceeded = true
		}
		for _, id := range cr.CitedChunkIDs {
			if !cited[id] {
				cited[id] = true
				res.CitedChunkIDs = append(res.CitedChunkIDs, id)
			}
		}
		report.Findings = append(report.Findings, cr.Findings...)
		report.Categories = append(report.Categories, cr)
	}

	report.RiskScore, report.RiskLevel = RiskScore(report.Findings)
	report.Recommendations = c.recommendations(report.Categories)

	if err := setPayload(res, report); err != nil {
		return res, err
	}
	if applicable > 0 && failed == applicable {
		return res, fmt.Errorf("%w: all %d compliance categories failed: %w", models.ErrStageFailure, failed, firstErr)
	}
	logger.Info("Compliance check completed",
		"task_id", st.Task.ID,
		"risk_score", report.RiskScore,
		"risk_level", report.RiskLevel,
		"findings", len(report.Findings),
	)
	return res, nil
}

func (c *Compliance) check(ctx context.Context, st *State, cat Category) (CategoryResult, models.ResultMeta, error) {
	cr := CategoryResult{Name: cat.Name, Findings: []Finding{}}

	ranked, err := c.retriever.Retrieve(ctx, cat.Query, st.Document.ID, c.opts.K, models.ModeRelevance)
	if err != nil {
		return cr, models.ResultMeta{}, fmt.Errorf("retrieve: %w", err)
	}
	rc := assembler.Assemble(cat.Query, ranked, c.opts.ContextBudget)
	cr.CitedChunkIDs = rc.UsedChunkIDs
	cr.Truncated = rc.Truncated
	if len(rc.UsedChunkIDs) == 0 {
		cr.Method = MethodKeyword
		cr.Findings = keywordFindings(cat, rc.Text, st.Document.RawText)
		return cr, models.ResultMeta{}, nil
	}

	out, err := c.caller.Call(ctx, Call{
		Stage:         models.StageCompliance,
		TaskID:        st.Task.ID,
		System:        complianceSystem,
		Prompt:        compliancePrompt(cat, rc.Text),
		RouteText:     cat.Query,
		ContextTokens: rc.Tokens,
		Override:      st.Task.TierOverride,
		JSON:          true,
		Temperature:   0.1,
	})
	if err != nil {
		return cr, models.ResultMeta{}, err
	}

	var parsed struct {
		Findings []Finding `json:"findings"`
	}
	if err := decodeJSON(out.Text, &parsed); err != nil {
		logger.Debug("Compliance response not JSON, using keyword scan", "task_id", st.Task.ID, "category", cat.Name)
		cr.Method = MethodKeyword
		cr.Findings = keywordFindings(cat, rc.Text, st.Document.RawText)
		return cr, out.Meta, nil
	}
	cr.Method = MethodLLM
	for _, f := range parsed.Findings {
		cr.Findings = append(cr.Findings, normalizeFinding(cat, f))
	}
	return cr, out.Meta, nil
}

// keywordFindings is the scan used when the model's answer is unusable.
// Risk rules look at the retrieved context; required clauses are looked
// for in the whole document.
func keywordFindings(cat Category, excerpts, fullText string) []Finding {
	findings := []Finding{}
	if cat.Required() {
		lower := strings.ToLower(fullText)
		for _, r := range cat.Rules {
			if !r.matches(lower) {
				findings = append(findings, Finding{
					Category:    cat.Name,
					Rule:        r.Name,
					Severity:    r.Severity,
					Description: fmt.Sprintf("Missing '%s' clause", r.Name),
				})
			}
		}
		return findings
	}

	lower := strings.ToLower(excerpts)
	for _, r := range cat.Rules {
		for _, k := range r.keywords() {
			idx := strings.Index(lower, strings.ToLower(k))
			if idx < 0 {
				continue
			}
			findings = append(findings, Finding{
				Category:    cat.Name,
				Rule:        r.Name,
				Severity:    r.Severity,
				Description: fmt.Sprintf("Document contains '%s' clause", r.Name),
				Excerpt:     excerptAt(lower, idx),
			})
			break
		}
	}
	return findings
}

func normalizeFinding(cat Category, f Finding) Finding {
	f.Category = cat.Name
	f.Severity = strings.ToLower(strings.TrimSpace(f.Severity))
	if _, ok := severityWeights[f.Severity]; !ok {
		f.Severity = "low"
		for _, r := range cat.Rules {
			if strings.EqualFold(r.Name, f.Rule) {
				f.Severity = r.Severity
				break
			}
		}
	}
	f.Excerpt = clip(f.Excerpt, maxExcerptLen)
	return f
}

// RiskScore sums severity weights, capped at 100, and maps the score to a
// level.
func RiskScore(findings []Finding) (int, string) {
	score := 0
	for _, f := range findings {
		w, ok := severityWeights[f.Severity]
		if !ok {
			w = severityWeights["low"]
		}
		score += w
	}
	score = min(score, maxRiskScore)
	switch {
	case score >= 60:
		return score, "high"
	case score >= 30:
		return score, "medium"
	default:
		return score, "low"
	}
}

func (c *Compliance) recommendations(results []CategoryResult) []string {
	byName := make(map[string]Category, len(c.rules.Categories))
	for _, cat := range c.rules.Categories {
		byName[cat.Name] = cat
	}
	var recs []string
	seen := map[string]bool{}
	for _, cr := range results {
		if len(cr.Findings) == 0 {
			continue
		}
		for _, rec := range byName[cr.Name].Recommendations {
			if !seen[rec] {
				seen[rec] = true
				recs = append(recs, rec)
			}
		}
	}
	if len(recs) == 0 {
		recs = []string{defaultRecommendation}
	}
	return recs
}

func excerptAt(text string, idx int) string {
	start := max(0, idx-maxExcerptLen/4)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	return clip(text[start:], maxExcerptLen)
}

// clip shortens s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n])
}
