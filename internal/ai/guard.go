package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"documind/internal/logger"
	"documind/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// BreakerRecorder receives circuit breaker transitions (telemetry.Metrics).
type BreakerRecorder interface {
	RecordCircuitBreakerState(service, state string)
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
	now             func() time.Time
}

func NewTokenCounter(limits RateLimits) *TokenCounter {
	return &TokenCounter{limits: limits, now: time.Now}
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.resetExpired()

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}
	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.resetExpired()
	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// resetExpired must be called with mu held.
func (tc *TokenCounter) resetExpired() {
	now := tc.now()
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}
}

// guard puts a rate limiter, a local token budget and a circuit breaker in
// front of one provider.
type guard struct {
	name        string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	tokens      *TokenCounter
}

func newGuard(name, rateTier string, rec BreakerRecorder) *guard {
	limits := getRateLimits(rateTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Rejected requests say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if rec != nil {
				rec.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}

	return &guard{
		name:        name,
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst),
		tokens:      NewTokenCounter(limits),
	}
}

// run executes fn behind the limiter and breaker inside a trace span.
// fn reports the tokens it actually used.
func (g *guard) run(ctx context.Context, op string, estimatedTokens int, fn func(ctx context.Context) (any, int, error)) (any, error) {
	tracer := otel.Tracer("documind/ai")
	ctx, span := tracer.Start(ctx, g.name+"."+op)
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", g.name),
		attribute.Int("llm.estimated_tokens", estimatedTokens),
	)

	if !g.tokens.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		return nil, fmt.Errorf("%s: %w: local token budget exhausted", g.name, models.ErrTransientProvider)
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", g.name, models.ErrTransientProvider, err)
	}

	var used int
	result, err := g.breaker.Execute(func() (interface{}, error) {
		out, tokens, err := fn(ctx)
		used = tokens
		return out, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("llm.circuit_breaker_open", true))
		}
		span.SetAttributes(attribute.Bool("llm.error", true), attribute.String("llm.error_message", err.Error()))
		return nil, Classify(g.name, err)
	}

	g.tokens.RecordUsage(used, 1)
	span.SetAttributes(attribute.Int("llm.actual_tokens", used))
	return result, nil
}
