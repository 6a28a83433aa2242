package matching

import "context"

// DefaultThreshold is the minimum score a match needs to be accepted.
const DefaultThreshold = 40.0

const cancelCheckEvery = 256

// LabelKind selects how a label is normalized before scoring.
type LabelKind string

const (
	// LabelFilename labels come from uploaded file names.
	LabelFilename LabelKind = "filename"
	// LabelHeader labels come from pivot column headers.
	LabelHeader LabelKind = "header"
)

// Matcher finds the best unclaimed record for a label.
type Matcher struct {
	strategies []Strategy
	threshold  float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithStrategies replaces the ordered strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(m *Matcher) {
		if len(strategies) > 0 {
			m.strategies = strategies
		}
	}
}

// WithThreshold overrides the acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// NewMatcher builds a matcher with the default strategies and threshold.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{strategies: DefaultStrategies(), threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scores every unclaimed candidate and returns the best one at or above the
// threshold, claiming it in the session. Without an acceptable candidate it returns
// a MatchNew result and claims nothing.
func (m *Matcher) Match(ctx context.Context, label string, kind LabelKind, pool []Candidate, session *Session) (Result, error) {
	variants := m.labelVariants(label, kind)
	if len(variants) == 0 {
		return NewMatch(), nil
	}

	best := Result{Type: MatchNew}
	for i, candidate := range pool {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if candidate.ID == "" || session.IsClaimed(candidate.ID) {
			continue
		}
		scored := m.scoreCandidate(variants, candidate, kind)
		if scored.Confidence > best.Confidence {
			best = scored
		}
		if best.Type == MatchExact {
			break
		}
	}
	if best.CandidateID == "" || best.Confidence < m.threshold {
		return NewMatch(), nil
	}
	if err := session.Claim(best.CandidateID); err != nil {
		return Result{}, err
	}
	return best, nil
}

// Score returns the best score of label against one candidate, ignoring the threshold
// and the session.
func (m *Matcher) Score(label string, kind LabelKind, candidate Candidate) Result {
	return m.scoreCandidate(m.labelVariants(label, kind), candidate, kind)
}

// scoreCandidate runs the strategies on the full normalized names. Header labels may
// also align on their strict forms, which scores StrictScore and never counts as exact,
// so a full-name exact match elsewhere in the pool still wins.
func (m *Matcher) scoreCandidate(variants []string, candidate Candidate, kind LabelKind) Result {
	best := Result{Type: MatchNew}
	for _, name := range candidate.Names() {
		normalized := NormalizeName(name)
		if normalized == "" {
			continue
		}
		for _, variant := range variants {
			for _, strategy := range m.strategies {
				score, matchType := strategy.Score(variant, normalized)
				if score <= best.Confidence {
					continue
				}
				best = Result{
					CandidateID: candidate.ID,
					Type:        matchType,
					Confidence:  score,
					MatchedName: name,
					Strategy:    strategy.Name(),
				}
				if matchType == MatchExact {
					return best
				}
			}
			if kind == LabelHeader && best.Confidence < StrictScore && strictEqual(variant, normalized) {
				best = Result{
					CandidateID: candidate.ID,
					Type:        MatchFuzzy,
					Confidence:  StrictScore,
					MatchedName: name,
					Strategy:    "strict",
				}
			}
		}
	}
	return best
}

func (m *Matcher) labelVariants(label string, kind LabelKind) []string {
	base := NormalizeName(label)
	if base == "" {
		return nil
	}
	variants := []string{base}
	if kind == LabelFilename {
		if stripped := StripPeriod(base); stripped != base {
			variants = append(variants, stripped)
		}
	}
	return variants
}
