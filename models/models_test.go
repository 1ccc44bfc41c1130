package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStage(t *testing.T) {
	for _, st := range PipelineStages {
		got, ok := ParseStage(string(st))
		assert.True(t, ok)
		assert.Equal(t, st, got)
	}
	_, ok := ParseStage("translate")
	assert.False(t, ok)
	_, ok = ParseStage("")
	assert.False(t, ok)
}

func TestTier(t *testing.T) {
	assert.Less(t, TierFast.Rank(), TierBalanced.Rank())
	assert.Less(t, TierBalanced.Rank(), TierQuality.Rank())
	assert.Equal(t, -1, Tier("").Rank())

	tier, ok := ParseTier("quality")
	assert.True(t, ok)
	assert.Equal(t, TierQuality, tier)
	_, ok = ParseTier("")
	assert.False(t, ok)
}

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskPending, false},
		{TaskRunning, false},
		{TaskPartial, true},
		{TaskComplete, true},
		{TaskFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

func TestResultMetaAdd(t *testing.T) {
	m := ResultMeta{Tier: TierFast, Model: "gemini:flash", LLMCalls: 1, InputTokens: 10, OutputTokens: 2, LatencyMS: 5}
	m.Add(ResultMeta{Tier: TierQuality, Model: "anthropic:sonnet", LLMCalls: 1, InputTokens: 20, OutputTokens: 4, LatencyMS: 7})
	m.Add(ResultMeta{Tier: TierBalanced, Model: "openai:gpt-4o", CacheHits: 1})

	assert.Equal(t, TierQuality, m.Tier)
	assert.Equal(t, "anthropic:sonnet", m.Model)
	assert.Equal(t, 2, m.LLMCalls)
	assert.Equal(t, 1, m.CacheHits)
	assert.Equal(t, 30, m.InputTokens)
	assert.Equal(t, 6, m.OutputTokens)
	// Latency is the stage wall clock, not a sum of calls.
	assert.Equal(t, int64(5), m.LatencyMS)
}

func TestAgentResultSucceeded(t *testing.T) {
	var nilResult *AgentResult
	assert.False(t, nilResult.Succeeded())
	assert.True(t, (&AgentResult{Status: ResultSuccess}).Succeeded())
	assert.False(t, (&AgentResult{Status: ResultFatalError}).Succeeded())
}

func TestResultStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ResultStatus
	}{
		{"nil", nil, ResultSuccess},
		{"transient", fmt.Errorf("embed: %w", ErrTransientProvider), ResultRetryableError},
		{"rejected", fmt.Errorf("call: %w", ErrProviderRejected), ResultFatalError},
		{"fatal input", ErrFatalInput, ResultFatalError},
		{"unknown", errors.New("boom"), ResultFatalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultStatusFor(tt.err))
		})
	}
}

func TestRetrievalContextConfidence(t *testing.T) {
	rc := &RetrievalContext{
		Ranked: []ScoredChunk{
			{Chunk: Chunk{ID: "d:0"}, Score: 0.9},
			{Chunk: Chunk{ID: "d:1"}, Score: 0.5},
			{Chunk: Chunk{ID: "d:2"}, Score: 0.1},
		},
		UsedChunkIDs: []string{"d:0", "d:1"},
	}
	assert.InDelta(t, 0.7, rc.Confidence(), 1e-9)
	assert.Zero(t, (&RetrievalContext{}).Confidence())
}
