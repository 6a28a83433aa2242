package matching

import (
	"errors"
	"sort"
)

// MatchType is how an import candidate relates to existing meter records.
type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchFuzzy     MatchType = "fuzzy"
	MatchManual    MatchType = "manual"
	MatchNew       MatchType = "new"
	MatchDuplicate MatchType = "duplicate"
)

// ParseMatchType maps a request value to a MatchType.
func ParseMatchType(value string) (MatchType, error) {
	switch t := MatchType(value); t {
	case MatchExact, MatchFuzzy, MatchManual, MatchNew, MatchDuplicate:
		return t, nil
	default:
		return "", errors.New("matching: unknown match type " + value)
	}
}

var (
	// ErrAlreadyClaimed is returned when a record is assigned twice in one session.
	ErrAlreadyClaimed = errors.New("matching: candidate already claimed in this session")
	// ErrEmptyCandidate is returned for a manual match without a record id.
	ErrEmptyCandidate = errors.New("matching: empty candidate id")
)

// Result is the match decision for one import candidate.
type Result struct {
	CandidateID string    `json:"candidate_id,omitempty"`
	Type        MatchType `json:"type"`
	Confidence  float64   `json:"confidence"`
	MatchedName string    `json:"matched_name,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	// DuplicateOf is the batch index of the original; meaningful for MatchDuplicate only.
	DuplicateOf int `json:"duplicate_of,omitempty"`
}

// Matched reports whether the result points at an existing record.
func (r Result) Matched() bool {
	return r.CandidateID != "" && (r.Type == MatchExact || r.Type == MatchFuzzy || r.Type == MatchManual)
}

// NewMatch marks a candidate that creates a new record.
func NewMatch() Result {
	return Result{Type: MatchNew}
}

// DuplicateMatch marks a candidate as a copy of the batch entry at original.
func DuplicateMatch(original int, originalLabel string) Result {
	return Result{Type: MatchDuplicate, DuplicateOf: original, MatchedName: originalLabel, Confidence: ExactScore}
}

// ManualMatch assigns a record chosen by the user and claims it in the session.
func ManualMatch(session *Session, candidate Candidate) (Result, error) {
	if candidate.ID == "" {
		return Result{}, ErrEmptyCandidate
	}
	if err := session.Claim(candidate.ID); err != nil {
		return Result{}, err
	}
	return Result{CandidateID: candidate.ID, Type: MatchManual, Confidence: ExactScore, MatchedName: candidate.DisplayName()}, nil
}

// Candidate is an existing meter record offered for matching.
type Candidate struct {
	ID         string `json:"id"`
	SiteName   string `json:"site_name,omitempty"`
	ShopName   string `json:"shop_name,omitempty"`
	ShopNumber string `json:"shop_number,omitempty"`
	Label      string `json:"label,omitempty"`
	FileName   string `json:"file_name,omitempty"`
}

// DisplayName returns the first populated name field.
func (c Candidate) DisplayName() string {
	for _, name := range []string{c.ShopName, c.Label, c.ShopNumber, c.FileName} {
		if name != "" {
			return name
		}
	}
	return c.ID
}

// Names returns the alternate name fields tried against a label.
func (c Candidate) Names() []string {
	names := make([]string, 0, 4)
	for _, name := range []string{c.ShopName, c.Label, c.ShopNumber, c.FileName} {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Session is the set of record ids already claimed within one import batch.
// It is owned by the caller and is not safe for concurrent use.
type Session struct {
	claimed map[string]struct{}
}

// NewSession starts a session with optional pre-claimed ids.
func NewSession(claimed ...string) *Session {
	s := &Session{claimed: make(map[string]struct{}, len(claimed))}
	for _, id := range claimed {
		if id != "" {
			s.claimed[id] = struct{}{}
		}
	}
	return s
}

// IsClaimed reports whether id has been assigned in this session.
func (s *Session) IsClaimed(id string) bool {
	_, ok := s.claimed[id]
	return ok
}

// Claim assigns id, failing if it was already taken.
func (s *Session) Claim(id string) error {
	if s.IsClaimed(id) {
		return ErrAlreadyClaimed
	}
	s.claimed[id] = struct{}{}
	return nil
}

// Release frees id so another candidate may claim it.
func (s *Session) Release(id string) {
	delete(s.claimed, id)
}

// Claimed lists the claimed ids in sorted order.
func (s *Session) Claimed() []string {
	out := make([]string, 0, len(s.claimed))
	for id := range s.claimed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
