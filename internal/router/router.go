// Package router picks a model tier for an LLM call from the complexity of
// its input. Routing is a pure function of the task.
package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"documind/models"
)

var complexPatterns = []*regexp.Regexp{
	regexp.MustCompile(`compare.*and`),
	regexp.MustCompile(`analy[sz]e.*implications`),
	regexp.MustCompile(`step by step`),
	regexp.MustCompile(`explain.*why`),
	regexp.MustCompile(`what are the.*differences`),
	regexp.MustCompile(`legal.*implications`),
	regexp.MustCompile(`compliance.*with`),
	regexp.MustCompile(`risk.*assessment`),
}

var technicalTerms = regexp.MustCompile(`\b(liability|indemnification|jurisdiction|arbitration|gdpr|hipaa|sox|compliance|regulatory|statutory|fiduciary|covenant|warranty|breach)\b`)

const (
	fastBelow     = 0.3
	balancedBelow = 0.7
	termWeight    = 0.05
	termCap       = 0.2
)

// Task is what the router sees of an LLM call.
type Task struct {
	Stage         models.Stage
	Text          string
	ContextTokens int
	// Override replaces the computed tier when set.
	Override models.Tier
}

// Decision explains a routing result for audit logs.
type Decision struct {
	Tier       models.Tier
	Score      float64
	Factors    []string
	Overridden bool
	Floored    bool
}

type Router struct {
	override models.Tier
}

// New returns a Router. A non-empty override (ROUTER_TIER_OVERRIDE) applies
// to every task without its own override.
func New(override models.Tier) *Router {
	return &Router{override: override}
}

func (r *Router) Route(t Task) models.Tier {
	return r.Explain(t).Tier
}

func (r *Router) Explain(t Task) Decision {
	score, factors := Score(t.Text, t.ContextTokens)
	d := Decision{Tier: TierFor(score), Score: score, Factors: factors}

	override := t.Override
	if override == "" {
		override = r.override
	}
	if override != "" {
		d.Tier = override
		d.Overridden = true
	}
	if t.Stage == models.StageCompliance && d.Tier.Rank() < models.TierBalanced.Rank() {
		d.Tier = models.TierBalanced
		d.Floored = true
	}
	return d
}

// Score rates input complexity; the contributing factors are returned in
// the order they were evaluated.
func Score(text string, contextTokens int) (float64, []string) {
	var score float64
	var factors []string
	add := func(v float64, factor string) {
		score += v
		factors = append(factors, factor)
	}

	switch {
	case len(text) > 500:
		add(0.2, "long_text")
	case len(text) > 200:
		add(0.1, "medium_text")
	}

	switch {
	case contextTokens > 10000:
		add(0.3, "context>10000")
	case contextTokens > 5000:
		add(0.2, "context>5000")
	case contextTokens > 2000:
		add(0.1, "context>2000")
	}

	lower := strings.ToLower(text)
	for _, p := range complexPatterns {
		if p.MatchString(lower) {
			add(0.1, "pattern:"+p.String())
		}
	}

	if strings.Count(text, "?") > 1 {
		add(0.1, "compound_question")
	}

	seen := map[string]bool{}
	for _, term := range technicalTerms.FindAllString(lower, -1) {
		seen[term] = true
	}
	if len(seen) > 0 {
		add(math.Min(float64(len(seen))*termWeight, termCap), fmt.Sprintf("technical_terms:%d", len(seen)))
	}

	// avoid 0.1+0.2 style drift at tier boundaries
	return math.Round(score*1000) / 1000, factors
}

// TierFor maps a complexity score onto a tier.
func TierFor(score float64) models.Tier {
	switch {
	case score < fastBelow:
		return models.TierFast
	case score < balancedBelow:
		return models.TierBalanced
	default:
		return models.TierQuality
	}
}
