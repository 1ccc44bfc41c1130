package ai

import (
	"context"
	"fmt"

	"documind/internal/config"
	"documind/models"
)

// Request is a single prompt/completion call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool // ask the provider for a JSON object response
}

// Response is the provider-neutral completion.
type Response struct {
	Text         string `json:"text"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// LLM is the capability every provider client implements.
type LLM interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

type target struct {
	provider string
	model    string
}

// Registry resolves a model tier to a provider client and model name.
type Registry struct {
	clients map[string]LLM
	tiers   map[models.Tier]target
}

// NewRegistry maps each tier's "provider:model" spec onto the given clients.
func NewRegistry(specs map[models.Tier]string, clients map[string]LLM) (*Registry, error) {
	r := &Registry{clients: clients, tiers: make(map[models.Tier]target, len(specs))}
	for tier, spec := range specs {
		provider, model, err := config.ParseModelSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
		if _, ok := clients[provider]; !ok {
			return nil, fmt.Errorf("tier %s: no client for provider %s", tier, provider)
		}
		r.tiers[tier] = target{provider: provider, model: model}
	}
	for _, tier := range []models.Tier{models.TierFast, models.TierBalanced, models.TierQuality} {
		if _, ok := r.tiers[tier]; !ok {
			return nil, fmt.Errorf("no model configured for tier %s", tier)
		}
	}
	return r, nil
}

// ModelFor returns "provider:model" for a tier. It is part of every cache
// fingerprint, so changing the configured model invalidates cached output.
func (r *Registry) ModelFor(tier models.Tier) string {
	t := r.tiers[tier]
	return t.provider + ":" + t.model
}

// Generate sends req to the client configured for tier.
func (r *Registry) Generate(ctx context.Context, tier models.Tier, req Request) (*Response, error) {
	t, ok := r.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	req.Model = t.model
	resp, err := r.clients[t.provider].Generate(ctx, &req)
	if err != nil {
		return nil, Classify(t.provider, err)
	}
	return resp, nil
}
