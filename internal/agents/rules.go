package agents

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KindRisk     = "risk"
	KindRequired = "required"
)

// Rule is one compliance check. Keywords drive the fallback scan; the
// name is what the model is asked about.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Severity string   `yaml:"severity" json:"severity"`
}

// Category groups rules that are checked with a single retrieval and LLM
// call. Risk categories report rules the text triggers; required
// categories report rules whose clause is absent.
type Category struct {
	Name            string   `yaml:"name" json:"name"`
	Kind            string   `yaml:"kind" json:"kind"`
	Query           string   `yaml:"query" json:"query"`
	Rules           []Rule   `yaml:"rules" json:"rules"`
	Recommendations []string `yaml:"recommendations" json:"recommendations"`
	// AppliesWhen limits the category to documents containing any of
	// these words. Empty means always.
	AppliesWhen []string `yaml:"applies_when,omitempty" json:"applies_when,omitempty"`
}

func (c Category) Required() bool { return c.Kind == KindRequired }

// Applies reports whether the category is relevant to the document text.
func (c Category) Applies(text string) bool {
	if len(c.AppliesWhen) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range c.AppliesWhen {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

type RuleSet struct {
	Categories []Category `yaml:"categories" json:"categories"`
}

// DefaultRules returns the built-in categories.
func DefaultRules() RuleSet {
	return RuleSet{Categories: []Category{
		{
			Name:  "gdpr",
			Kind:  KindRisk,
			Query: "personal data processing, retention, consent and data subject rights",
			Rules: []Rule{
				{Name: "data retention", Severity: "medium"},
				{Name: "personal data", Severity: "medium"},
				{Name: "data processing", Severity: "medium"},
				{Name: "consent", Severity: "medium"},
				{Name: "data subject rights", Severity: "medium"},
				{Name: "data protection officer", Severity: "low"},
				{Name: "privacy policy", Severity: "low"},
			},
			Recommendations: []string{
				"Review data protection clauses with legal counsel",
				"Ensure GDPR compliance documentation is complete",
			},
		},
		{
			Name:  "contract_risks",
			Kind:  KindRisk,
			Query: "liability, renewal, modification, jurisdiction, waiver, non-compete and confidentiality terms",
			Rules: []Rule{
				{Name: "unlimited liability", Severity: "high"},
				{Name: "automatic renewal", Keywords: []string{"automatic renewal", "automatically renew"}, Severity: "medium"},
				{Name: "unilateral modification", Severity: "medium"},
				{Name: "exclusive jurisdiction", Severity: "medium"},
				{Name: "waiver of rights", Severity: "medium"},
				{Name: "non-compete", Keywords: []string{"non-compete", "non compete", "noncompete"}, Severity: "medium"},
				{Name: "confidentiality breach", Severity: "medium"},
			},
			Recommendations: []string{
				"Negotiate high-risk clauses before signing",
				"Consider adding liability caps and limitations",
			},
		},
		{
			Name:  "required_clauses",
			Kind:  KindRequired,
			Query: "termination, dispute resolution, force majeure, indemnification and limitation of liability clauses",
			Rules: []Rule{
				{Name: "termination", Severity: "low"},
				{Name: "dispute resolution", Severity: "low"},
				{Name: "force majeure", Severity: "low"},
				{Name: "indemnification", Keywords: []string{"indemnification", "indemnify"}, Severity: "low"},
				{Name: "limitation of liability", Severity: "low"},
			},
			Recommendations: []string{
				"Add standard protective clauses before finalizing",
			},
			AppliesWhen: []string{"agreement", "contract"},
		},
	}}
}

// LoadRules reads a YAML rule file. An empty path yields the defaults.
func LoadRules(path string) (RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read compliance rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse compliance rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("invalid compliance rules %s: %w", path, err)
	}
	return rs, nil
}

func (rs RuleSet) Validate() error {
	if len(rs.Categories) == 0 {
		return errors.New("no categories")
	}
	seen := map[string]bool{}
	for i, c := range rs.Categories {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Kind != KindRisk && c.Kind != KindRequired {
			return fmt.Errorf("category %q: kind must be %q or %q", c.Name, KindRisk, KindRequired)
		}
		if len(c.Rules) == 0 {
			return fmt.Errorf("category %q has no rules", c.Name)
		}
		for _, r := range c.Rules {
			if r.Name == "" {
				return fmt.Errorf("category %q has a rule without a name", c.Name)
			}
			if _, ok := severityWeights[r.Severity]; !ok {
				return fmt.Errorf("category %q rule %q: unknown severity %q", c.Name, r.Name, r.Severity)
			}
		}
	}
	return nil
}

// keywords falls back to the rule name.
func (r Rule) keywords() []string {
	if len(r.Keywords) > 0 {
		return r.Keywords
	}
	return []string{r.Name}
}

// matches reports whether lower, already lowercased, contains any keyword.
func (r Rule) matches(lower string) bool {
	for _, k := range r.keywords() {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
