package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"documind/internal/ai"
	"documind/internal/cache"
	"documind/internal/logger"
	"documind/internal/router"
	"documind/models"
)

// LLM is the tier-addressed completion API; *ai.Registry implements it.
type LLM interface {
	Generate(ctx context.Context, tier models.Tier, req ai.Request) (*ai.Response, error)
	ModelFor(tier models.Tier) string
}

// Metrics is the subset of telemetry the caller reports to.
type Metrics interface {
	RecordCacheLookup(stage string, hit bool)
	RecordTokensUsed(stage, model string, input, output int)
}

type CallerOptions struct {
	Retry         ai.RetryPolicy
	PromptVersion string
	Usage         ai.UsageLedger
	Metrics       Metrics
}

// Caller is the single path from a stage to a model: route, fingerprint,
// get-or-compute through the cache, retry on transient failures.
type Caller struct {
	llm    LLM
	router *router.Router
	cache  *cache.Cache
	opts   CallerOptions
}

func NewCaller(llm LLM, rt *router.Router, c *cache.Cache, opts CallerOptions) *Caller {
	return &Caller{llm: llm, router: rt, cache: c, opts: opts}
}

// Call describes one completion.
type Call struct {
	Stage  models.Stage
	TaskID string
	System string
	Prompt string
	// RouteText is what the router scores; the prompt when empty.
	RouteText     string
	ContextTokens int
	Override      models.Tier
	JSON          bool
	MaxTokens     int
	Temperature   float32
}

type Output struct {
	Text     string
	Meta     models.ResultMeta
	CacheHit bool
}

func (c *Caller) Call(ctx context.Context, call Call) (*Output, error) {
	start := time.Now()

	routeText := call.RouteText
	if routeText == "" {
		routeText = call.Prompt
	}
	decision := c.router.Explain(router.Task{
		Stage:         call.Stage,
		Text:          routeText,
		ContextTokens: call.ContextTokens,
		Override:      call.Override,
	})
	model := c.llm.ModelFor(decision.Tier)
	logger.Debug("Routed LLM call",
		"task_id", call.TaskID,
		"stage", call.Stage,
		"tier", decision.Tier,
		"score", decision.Score,
		"factors", decision.Factors,
		"overridden", decision.Overridden,
	)

	fp, err := cache.Fingerprint(string(call.Stage), string(decision.Tier), c.opts.PromptVersion+"/"+model, map[string]any{
		"system":      call.System,
		"prompt":      call.Prompt,
		"json":        call.JSON,
		"max_tokens":  call.MaxTokens,
		"temperature": call.Temperature,
	})
	if err != nil {
		return nil, err
	}

	compute := func(ctx context.Context) ([]byte, error) {
		resp, attempts, err := ai.Retry(ctx, c.opts.Retry, func(ctx context.Context) (*ai.Response, error) {
			return c.llm.Generate(ctx, decision.Tier, ai.Request{
				System:      call.System,
				Prompt:      call.Prompt,
				Temperature: call.Temperature,
				MaxTokens:   call.MaxTokens,
				JSON:        call.JSON,
			})
		})
		if err != nil {
			return nil, err
		}
		if attempts > 1 {
			logger.Info("LLM call recovered after retries", "task_id", call.TaskID, "stage", call.Stage, "attempts", attempts)
		}
		return json.Marshal(resp)
	}

	resp, hit, err := c.getOrCompute(ctx, fp, compute)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Text:     resp.Text,
		CacheHit: hit,
		Meta: models.ResultMeta{
			Tier:      decision.Tier,
			Model:     model,
			LatencyMS: time.Since(start).Milliseconds(),
		},
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordCacheLookup(string(call.Stage), hit)
	}
	if hit {
		out.Meta.CacheHits = 1
		return out, nil
	}

	out.Meta.LLMCalls = 1
	out.Meta.InputTokens = resp.InputTokens
	out.Meta.OutputTokens = resp.OutputTokens
	c.record(ctx, call, decision.Tier, model, resp)
	return out, nil
}

// getOrCompute decodes the cached response, invalidating and recomputing
// once when the stored payload is unusable.
func (c *Caller) getOrCompute(ctx context.Context, fp string, compute func(context.Context) ([]byte, error)) (*ai.Response, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		payload, hit, err := c.cache.GetOrCompute(ctx, fp, compute)
		if err != nil {
			return nil, false, err
		}
		var resp ai.Response
		if err := json.Unmarshal(payload, &resp); err == nil && resp.Text != "" {
			return &resp, hit, nil
		}
		logger.Warn("Invalidating undecodable cached response", "fingerprint", fp)
		if err := c.cache.Invalidate(ctx, fp); err != nil {
			return nil, false, fmt.Errorf("invalidate cache entry: %w", err)
		}
	}
	return nil, false, fmt.Errorf("%w: fingerprint %s", models.ErrCacheCorruption, fp)
}

func (c *Caller) record(ctx context.Context, call Call, tier models.Tier, model string, resp *ai.Response) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordTokensUsed(string(call.Stage), model, resp.InputTokens, resp.OutputTokens)
	}
	if c.opts.Usage == nil || call.TaskID == "" {
		return
	}
	err := c.opts.Usage.Record(ctx, ai.UsageRecord{
		TaskID:       call.TaskID,
		Stage:        string(call.Stage),
		Tier:         string(tier),
		Model:        model,
		Calls:        1,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
	if err != nil {
		logger.Warn("Failed to record LLM usage", "task_id", call.TaskID, "stage", call.Stage, "error", err)
	}
}
