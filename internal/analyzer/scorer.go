package analyzer

import (
	"fmt"
	"regexp"
)

// MaxScore is the upper bound of a pain score.
const MaxScore = 10

// Rule is one named pain signal category.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Weight  int
}

// DefaultRules returns the built-in signal categories ordered by weight.
// Patterns are matched case-insensitively.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "buyer", Pattern: regexp.MustCompile(`(?i)\b(willing to pay|budget for?|worth (the |paying)|invest in|purchase)\b`), Weight: 5},
		{Name: "frustrated", Pattern: regexp.MustCompile(`(?i)\b(frustrat\w*|nightmare|terrible|awful|hate|sick of|annoying)\b`), Weight: 4},
		{Name: "stuck", Pattern: regexp.MustCompile(`(?i)\b(stuck|blocked|can't figure|struggling|lost|given up)\b`), Weight: 3},
		{Name: "seeking", Pattern: regexp.MustCompile(`(?i)\b(is there any|looking for|anyone know|recommend|suggest)\b`), Weight: 2},
		{Name: "question", Pattern: regexp.MustCompile(`(?i)^(how|what|why|is there|does anyone|can someone|where)`), Weight: 1},
	}
}

// RuleSpec is the serializable form of a Rule, as found in config files.
type RuleSpec struct {
	Name    string `mapstructure:"name" json:"name"`
	Pattern string `mapstructure:"pattern" json:"pattern"`
	Weight  int    `mapstructure:"weight" json:"weight"`
}

// ParseRules compiles rule specs. Patterns are made case-insensitive.
func ParseRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("rule: empty name")
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("rule %q: duplicate name", s.Name)
		}
		if s.Weight < 0 {
			return nil, fmt.Errorf("rule %q: negative weight %d", s.Name, s.Weight)
		}
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", s.Name, err)
		}
		seen[s.Name] = struct{}{}
		rules = append(rules, Rule{Name: s.Name, Pattern: re, Weight: s.Weight})
	}
	return rules, nil
}

// Scorer maps text to a bounded pain score. It is safe for concurrent use.
type Scorer struct {
	rules []Rule
}

// NewScorer builds a Scorer over rules. With no rules, DefaultRules is used.
// Negative weights are raised to zero so that more matches never lower a
// score.
func NewScorer(rules ...Rule) *Scorer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	own := make([]Rule, len(rules))
	for i, r := range rules {
		r.Weight = max(r.Weight, 0)
		own[i] = r
	}
	return &Scorer{rules: own}
}

// Rules returns the scorer's categories in evaluation order.
func (s *Scorer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Score counts non-overlapping matches per rule, sums count*weight and clamps
// the total to [0, MaxScore]. Signal counts are returned unclamped and include
// rules that did not fire.
func (s *Scorer) Score(text string) (int, map[string]int) {
	signals := make(map[string]int, len(s.rules))
	total := 0
	for _, r := range s.rules {
		n := len(r.Pattern.FindAllStringIndex(text, -1))
		signals[r.Name] = n
		total += n * r.Weight
	}
	return clamp(total), signals
}

func clamp(total int) int {
	if total < 0 {
		return 0
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}
