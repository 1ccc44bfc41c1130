package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"documind/internal/logger"
	"documind/models"
	"documind/utils"

	"golang.org/x/sync/errgroup"
)

const (
	directMaxChunks = 10
	maxReduceDepth  = 4
	partSeparator   = "\n\n---\n\n"
)

// Summary is the summarizer payload.
type Summary struct {
	ExecutiveSummary string   `json:"executive_summary"`
	DetailedSummary  string   `json:"detailed_summary"`
	KeyPoints        []string `json:"key_points"`
	DocumentType     string   `json:"document_type"`
	Strategy         string   `json:"strategy"`
	ReduceDepth      int      `json:"reduce_depth,omitempty"`
	Fallback         bool     `json:"fallback,omitempty"`
}

type SummarizerOptions struct {
	MapTokenBudget    int
	ReduceTokenBudget int
	MapConcurrency    int
}

// Summarizer summarizes the document in one call when it fits the reduce
// budget and map-reduces it otherwise.
type Summarizer struct {
	caller *Caller
	opts   SummarizerOptions
}

func NewSummarizer(caller *Caller, opts SummarizerOptions) *Summarizer {
	if opts.MapConcurrency < 1 {
		opts.MapConcurrency = 1
	}
	return &Summarizer{caller: caller, opts: opts}
}

func (s *Summarizer) Stage() models.Stage { return models.StageSummarize }

// summaryRun accumulates metadata across concurrent calls.
type summaryRun struct {
	mu       sync.Mutex
	meta     models.ResultMeta
	exceeded bool
}

func (r *summaryRun) add(m models.ResultMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.Add(m)
	r.meta.LatencyMS += m.LatencyMS
}

func (s *Summarizer) Execute(ctx context.Context, st *State) (*models.AgentResult, error) {
	res := newResult(models.StageSummarize)
	if err := requireDocument(st); err != nil {
		return res, err
	}
	doc := st.Document
	run := &summaryRun{}

	text := doc.RawText
	strategy := "direct"
	depth := 0
	if utils.EstimateTokens(text) > s.opts.ReduceTokenBudget || len(doc.Chunks) > directMaxChunks {
		strategy = "map_reduce"
		var err error
		text, depth, err = s.mapReduce(ctx, st, run)
		if err != nil {
			res.Meta = run.meta
			return res, err
		}
	}

	summary, err := s.final(ctx, st, run, text)
	res.Meta = run.meta
	if err != nil {
		return res, err
	}
	summary.Strategy = strategy
	summary.ReduceDepth = depth
	res.BudgetExceeded = run.exceeded

	logger.Info("Document summarized",
		"task_id", st.Task.ID,
		"strategy", strategy,
		"reduce_depth", depth,
		"llm_calls", res.Meta.LLMCalls,
		"cache_hits", res.Meta.CacheHits,
	)
	return res, setPayload(res, summary)
}

// mapReduce summarizes budget-sized chunk groups concurrently, then merges
// the partial summaries until they fit the reduce budget.
func (s *Summarizer) mapReduce(ctx context.Context, st *State, run *summaryRun) (string, int, error) {
	texts := make([]string, len(st.Document.Chunks))
	for i, ch := range st.Document.Chunks {
		texts[i] = ch.Text
	}

	partials, err := s.fanOut(ctx, st, run, mapSystem, s.group(texts, s.opts.MapTokenBudget, "\n\n", run))
	if err != nil {
		return "", 0, err
	}

	joined := strings.Join(partials, partSeparator)
	depth := 0
	for utils.EstimateTokens(joined) > s.opts.ReduceTokenBudget {
		if depth == maxReduceDepth {
			joined = utils.TruncateToTokens(joined, s.opts.ReduceTokenBudget)
			run.exceeded = true
			break
		}
		depth++
		run.exceeded = true
		partials, err = s.fanOut(ctx, st, run, reduceSystem, s.group(partials, s.opts.ReduceTokenBudget, partSeparator, run))
		if err != nil {
			return "", depth, err
		}
		joined = strings.Join(partials, partSeparator)
	}
	return joined, depth, nil
}

// group packs texts in order into groups whose joined size fits budget.
// A single text over budget is truncated.
func (s *Summarizer) group(texts []string, budget int, sep string, run *summaryRun) []string {
	var groups []string
	var cur []string
	for _, t := range texts {
		if utils.EstimateTokens(t) > budget {
			t = utils.TruncateToTokens(t, budget)
			run.exceeded = true
		}
		if len(cur) > 0 && utils.EstimateTokens(strings.Join(append(cur, t), sep)) > budget {
			groups = append(groups, strings.Join(cur, sep))
			cur = nil
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		groups = append(groups, strings.Join(cur, sep))
	}
	return groups
}

func (s *Summarizer) fanOut(ctx context.Context, st *State, run *summaryRun, system string, inputs []string) ([]string, error) {
	out := make([]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MapConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			resp, err := s.caller.Call(gctx, Call{
				Stage:       models.StageSummarize,
				TaskID:      st.Task.ID,
				System:      system,
				Prompt:      in,
				RouteText:   in,
				Override:    st.Task.TierOverride,
				Temperature: 0.3,
			})
			if err != nil {
				return fmt.Errorf("summarize part %d: %w", i, err)
			}
			run.add(resp.Meta)
			out[i] = strings.TrimSpace(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) final(ctx context.Context, st *State, run *summaryRun, text string) (*Summary, error) {
	resp, err := s.caller.Call(ctx, Call{
		Stage:         models.StageSummarize,
		TaskID:        st.Task.ID,
		System:        summarySystem,
		Prompt:        text,
		RouteText:     "Summarize the document",
		ContextTokens: utils.EstimateTokens(text),
		Override:      st.Task.TierOverride,
		JSON:          true,
		Temperature:   0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("final summary: %w", err)
	}
	run.add(resp.Meta)

	var summary Summary
	if err := decodeJSON(resp.Text, &summary); err != nil || summary.ExecutiveSummary == "" {
		return fallbackSummary(resp.Text), nil
	}
	if summary.KeyPoints == nil {
		summary.KeyPoints = []string{}
	}
	if summary.DocumentType == "" {
		summary.DocumentType = "unknown"
	}
	return &summary, nil
}

// fallbackSummary keeps a plain-text response usable: the text becomes
// both summaries and bullet lines become key points.
func fallbackSummary(text string) *Summary {
	text = strings.TrimSpace(text)
	points := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, bullet := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, bullet) {
				points = append(points, strings.TrimSpace(strings.TrimPrefix(line, bullet)))
				break
			}
		}
	}
	return &Summary{
		ExecutiveSummary: text,
		DetailedSummary:  text,
		KeyPoints:        points,
		DocumentType:     "unknown",
		Fallback:         true,
	}
}
