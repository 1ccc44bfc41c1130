package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"documind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	mu    sync.Mutex
	reqs  []Request
	err   error
	reply string
}

func (s *stubLLM) Generate(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, *req)
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: s.reply, Model: req.Model}, nil
}

func testSpecs() map[models.Tier]string {
	return map[models.Tier]string{
		models.TierFast:     "gemini:gemini-2.0-flash",
		models.TierBalanced: "openai:gpt-4o",
		models.TierQuality:  "anthropic:claude-3-5-sonnet-latest",
	}
}

func TestRegistryRoutesTierToProvider(t *testing.T) {
	gemini, openaiLLM, claude := &stubLLM{reply: "g"}, &stubLLM{reply: "o"}, &stubLLM{reply: "a"}
	reg, err := NewRegistry(testSpecs(), map[string]LLM{"gemini": gemini, "openai": openaiLLM, "anthropic": claude})
	require.NoError(t, err)

	resp, err := reg.Generate(context.Background(), models.TierQuality, Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Text)
	require.Len(t, claude.reqs, 1)
	assert.Equal(t, "claude-3-5-sonnet-latest", claude.reqs[0].Model)
	assert.Empty(t, gemini.reqs)

	assert.Equal(t, "openai:gpt-4o", reg.ModelFor(models.TierBalanced))
}

func TestRegistryClassifiesProviderErrors(t *testing.T) {
	stub := &stubLLM{err: errors.New("503 service temporarily unavailable")}
	reg, err := NewRegistry(testSpecs(), map[string]LLM{"gemini": stub, "openai": stub, "anthropic": stub})
	require.NoError(t, err)

	_, err = reg.Generate(context.Background(), models.TierFast, Request{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrTransientProvider)
}

func TestRegistryRejectsMissingClient(t *testing.T) {
	_, err := NewRegistry(testSpecs(), map[string]LLM{"gemini": &stubLLM{}})
	assert.Error(t, err)

	specs := testSpecs()
	delete(specs, models.TierQuality)
	_, err = NewRegistry(specs, map[string]LLM{"gemini": &stubLLM{}, "openai": &stubLLM{}})
	assert.Error(t, err)
}

func TestTokenCounterWindows(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tc := NewTokenCounter(RateLimits{RPM: 2, TPM: 100, RPD: 3})
	tc.now = func() time.Time { return now }

	assert.True(t, tc.CanConsume(50, 1))
	tc.RecordUsage(50, 1)
	assert.False(t, tc.CanConsume(60, 1), "tokens per minute")
	tc.RecordUsage(10, 1)
	assert.False(t, tc.CanConsume(1, 1), "requests per minute")

	now = now.Add(time.Minute)
	assert.True(t, tc.CanConsume(1, 1))
	tc.RecordUsage(1, 1)
	assert.False(t, tc.CanConsume(1, 1), "requests per day")

	now = now.Add(24 * time.Hour)
	assert.True(t, tc.CanConsume(1, 1))
}

type breakerEvents struct {
	mu     sync.Mutex
	states []string
}

func (b *breakerEvents) RecordCircuitBreakerState(_, state string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, state)
}

func TestGuardOpensBreakerOnTransientFailures(t *testing.T) {
	events := &breakerEvents{}
	g := newGuard("test", "tier1", events)
	boom := errors.New("503 unavailable")

	for i := 0; i < 3; i++ {
		_, err := g.run(context.Background(), "op", 1, func(ctx context.Context) (any, int, error) {
			return nil, 0, boom
		})
		assert.ErrorIs(t, err, models.ErrTransientProvider)
	}

	called := false
	_, err := g.run(context.Background(), "op", 1, func(ctx context.Context) (any, int, error) {
		called = true
		return "ok", 1, nil
	})
	assert.ErrorIs(t, err, models.ErrTransientProvider)
	assert.False(t, called, "open breaker short-circuits")
	assert.Contains(t, events.states, "open")
}

func TestGuardIgnoresRejectionsForBreaker(t *testing.T) {
	g := newGuard("test", "tier1", nil)
	for i := 0; i < 5; i++ {
		_, err := g.run(context.Background(), "op", 1, func(ctx context.Context) (any, int, error) {
			return nil, 0, errors.New("invalid prompt")
		})
		assert.ErrorIs(t, err, models.ErrProviderRejected)
	}
	out, err := g.run(context.Background(), "op", 1, func(ctx context.Context) (any, int, error) {
		return "ok", 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
