package matching

import "strings"

// Strategy scores two normalized labels. A zero score means no opinion.
type Strategy interface {
	Name() string
	Score(a, b string) (float64, MatchType)
}

const (
	ExactScore          = 100.0
	StrictScore         = 90.0
	ContainmentWeight   = 80.0
	TokenOverlapWeight  = 60.0
	TokenOverlapMinSize = 2
)

// ExactStrategy scores equal labels at 100.
type ExactStrategy struct{}

func (ExactStrategy) Name() string { return "exact" }

func (ExactStrategy) Score(a, b string) (float64, MatchType) {
	if a != "" && a == b {
		return ExactScore, MatchExact
	}
	return 0, MatchFuzzy
}

// ContainmentStrategy scores a label contained in the other by the length ratio.
type ContainmentStrategy struct {
	Weight float64
}

func (ContainmentStrategy) Name() string { return "containment" }

func (s ContainmentStrategy) Score(a, b string) (float64, MatchType) {
	if a == "" || b == "" || (!strings.Contains(a, b) && !strings.Contains(b, a)) {
		return 0, MatchFuzzy
	}
	la, lb := float64(len([]rune(a))), float64(len([]rune(b)))
	return min(la, lb) * s.weight() / max(la, lb), MatchFuzzy
}

func (s ContainmentStrategy) weight() float64 {
	if s.Weight <= 0 {
		return ContainmentWeight
	}
	return s.Weight
}

// TokenOverlapStrategy scores the share of words longer than MinLen both labels have.
type TokenOverlapStrategy struct {
	Weight float64
	MinLen int
}

func (TokenOverlapStrategy) Name() string { return "token_overlap" }

func (s TokenOverlapStrategy) Score(a, b string) (float64, MatchType) {
	minLen := s.MinLen
	if minLen <= 0 {
		minLen = TokenOverlapMinSize
	}
	weight := s.Weight
	if weight <= 0 {
		weight = TokenOverlapWeight
	}
	ta, tb := tokens(a, minLen), tokens(b, minLen)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, MatchFuzzy
	}
	shared := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			shared++
		}
	}
	return float64(shared) * weight / float64(max(len(ta), len(tb))), MatchFuzzy
}

// DefaultStrategies returns exact, containment and token overlap in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ExactStrategy{},
		ContainmentStrategy{Weight: ContainmentWeight},
		TokenOverlapStrategy{Weight: TokenOverlapWeight, MinLen: TokenOverlapMinSize},
	}
}
