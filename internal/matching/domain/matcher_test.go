package matching

import (
	"context"
	"errors"
	"testing"

	ingest "meterprofile/internal/ingest/domain"
)

func pool() []Candidate {
	return []Candidate{
		{ID: "m-1", ShopName: "Woolworths", SiteName: "Mall One"},
		{ID: "m-2", ShopName: "Pick n Pay", Label: "PnP Hyper"},
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"woolworths_jan.csv":     "woolworths jan",
		"  Pick-n-Pay   Hyper  ": "pick n pay hyper",
		"Shop.A.xlsx":            "shop a",
		"SHOP__12":               "shop 12",
		"report":                 "report",
	}
	for in, want := range cases {
		got := NormalizeName(in)
		if got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
		if again := NormalizeName(got); again != got {
			t.Fatalf("NormalizeName not idempotent: %q -> %q", got, again)
		}
	}
}

func TestNormalizeStrict(t *testing.T) {
	cases := map[string]string{
		"Shop 01":    "shop",
		"Shop A (2)": "shop a",
		"Shop A":     "shop a",
		"123":        "123",
	}
	for in, want := range cases {
		if got := NormalizeStrict(in); got != want {
			t.Fatalf("NormalizeStrict(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripPeriod(t *testing.T) {
	cases := map[string]string{
		"woolworths jan":         "woolworths",
		"woolworths jan 2024":    "woolworths",
		"20240131 woolworths":    "woolworths",
		"shop q1 fy24":           "shop",
		"january":                "january",
		"woolworths food market": "woolworths food market",
	}
	for in, want := range cases {
		if got := StripPeriod(in); got != want {
			t.Fatalf("StripPeriod(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatch_FilenameWithPeriodIsExact(t *testing.T) {
	session := NewSession()
	result, err := NewMatcher().Match(context.Background(), "woolworths_jan.csv", LabelFilename, pool(), session)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID != "m-1" || result.Type != MatchExact || result.Confidence != 100 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.MatchedName != "Woolworths" {
		t.Fatalf("expected matched name Woolworths, got %q", result.MatchedName)
	}
	if !session.IsClaimed("m-1") {
		t.Fatalf("expected winner claimed")
	}
}

func TestMatch_NeverReturnsClaimed(t *testing.T) {
	session := NewSession("m-1")
	result, err := NewMatcher().Match(context.Background(), "woolworths.csv", LabelFilename, pool(), session)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID == "m-1" {
		t.Fatalf("claimed candidate returned")
	}
	if result.Type != MatchNew {
		t.Fatalf("expected new match, got %+v", result)
	}

	session = NewSession()
	matcher := NewMatcher()
	first, _ := matcher.Match(context.Background(), "Pick n Pay", LabelFilename, pool(), session)
	second, _ := matcher.Match(context.Background(), "Pick n Pay", LabelFilename, pool(), session)
	if first.CandidateID != "m-2" || second.CandidateID == "m-2" {
		t.Fatalf("record matched twice: %+v %+v", first, second)
	}
}

func TestMatch_ContainmentAndOverlap(t *testing.T) {
	matcher := NewMatcher()
	candidates := []Candidate{
		{ID: "a", ShopName: "Pick n Pay Hyper"},
		{ID: "b", ShopName: "Mall Food Court"},
		{ID: "c", ShopName: "Superspar Express"},
	}
	result, err := matcher.Match(context.Background(), "pick_n_pay.csv", LabelFilename, candidates, NewSession())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID != "a" || result.Type != MatchFuzzy || result.Strategy != "containment" {
		t.Fatalf("expected containment match, got %+v", result)
	}
	if result.Confidence != 10.0/16.0*80 {
		t.Fatalf("unexpected containment score %v", result.Confidence)
	}

	result, _ = matcher.Match(context.Background(), "food court east", LabelFilename, candidates, NewSession())
	if result.CandidateID != "b" || result.Strategy != "token_overlap" || result.Confidence != 40 {
		t.Fatalf("expected token overlap at threshold, got %+v", result)
	}

	result, _ = matcher.Match(context.Background(), "spar", LabelFilename, candidates, NewSession())
	if result.Type != MatchNew {
		t.Fatalf("expected weak match rejected, got %+v", result)
	}
}

func TestMatch_HeaderUsesStrictNames(t *testing.T) {
	candidates := []Candidate{
		{ID: "x", ShopName: "Cafe", ShopNumber: "Shop 7"},
		{ID: "y", Label: "Shop A"},
	}
	result, err := NewMatcher().Match(context.Background(), "Shop A (2)", LabelHeader, candidates, NewSession())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID != "y" || result.Type != MatchFuzzy || result.Strategy != "strict" || result.Confidence != StrictScore {
		t.Fatalf("expected strict header match, got %+v", result)
	}
	result, _ = NewMatcher().Match(context.Background(), "SHOP 07", LabelHeader, candidates, NewSession())
	if result.CandidateID != "x" || result.MatchedName != "Shop 7" || result.Confidence != StrictScore {
		t.Fatalf("expected shop number match, got %+v", result)
	}
}

func TestMatch_HeaderPrefersFullNameOverStrictForm(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", ShopName: "Shop 12"},
		{ID: "b", ShopName: "Shop 13"},
	}
	result, err := NewMatcher().Match(context.Background(), "Shop 13", LabelHeader, candidates, NewSession())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID != "b" || result.Type != MatchExact || result.Confidence != ExactScore {
		t.Fatalf("expected exact match on Shop 13, got %+v", result)
	}

	result, _ = NewMatcher().Match(context.Background(), "Shop 13", LabelHeader, candidates[:1], NewSession())
	if result.Type == MatchExact || result.Confidence >= StrictScore {
		t.Fatalf("Shop 13 must not align with Shop 12 on its strict form, got %+v", result)
	}

	padded := []Candidate{
		{ID: "seven", ShopName: "Shop 7"},
		{ID: "zero-seven", ShopName: "Shop 07"},
	}
	result, _ = NewMatcher().Match(context.Background(), "shop_07", LabelHeader, padded, NewSession())
	if result.CandidateID != "zero-seven" || result.Type != MatchExact {
		t.Fatalf("expected exact match to win over earlier strict match, got %+v", result)
	}
}

func TestMatch_ExactOutranksEarlierFuzzyCandidates(t *testing.T) {
	candidates := []Candidate{
		{ID: "market", ShopName: "Woolworths Food Market"},
		{ID: "overlap", ShopName: "Food Woolworths"},
		{ID: "food", ShopName: "Woolworths Food"},
		{ID: "plain", ShopName: "Woolworths"},
	}
	matcher := NewMatcher()
	if fuzzy := matcher.Score("woolworths_food.csv", LabelFilename, candidates[0]); fuzzy.Confidence < matcher.Threshold() {
		t.Fatalf("leading candidate should be an acceptable fuzzy match, got %+v", fuzzy)
	}
	result, err := matcher.Match(context.Background(), "woolworths_food.csv", LabelFilename, candidates, NewSession())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.CandidateID != "food" || result.Type != MatchExact || result.Confidence != ExactScore {
		t.Fatalf("expected exact candidate to win, got %+v", result)
	}
}

func TestMatch_CustomStrategies(t *testing.T) {
	matcher := NewMatcher(WithStrategies(ExactStrategy{}), WithThreshold(50))
	if matcher.Threshold() != 50 {
		t.Fatalf("threshold option ignored")
	}
	result, _ := matcher.Match(context.Background(), "pick n pay.csv", LabelFilename, []Candidate{{ID: "a", ShopName: "Pick n Pay Hyper"}}, NewSession())
	if result.Type != MatchNew {
		t.Fatalf("exact-only matcher must not fuzzy match, got %+v", result)
	}
}

func TestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMatcher().Match(ctx, "woolworths", LabelFilename, pool(), NewSession()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestManualMatch(t *testing.T) {
	session := NewSession()
	result, err := ManualMatch(session, pool()[1])
	if err != nil {
		t.Fatalf("manual: %v", err)
	}
	if result.Type != MatchManual || !result.Matched() || result.MatchedName != "Pick n Pay" {
		t.Fatalf("unexpected manual result %+v", result)
	}
	if _, err := ManualMatch(session, pool()[1]); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	session.Release("m-2")
	if _, err := ManualMatch(session, pool()[1]); err != nil {
		t.Fatalf("released id should be claimable: %v", err)
	}
	if _, err := ManualMatch(session, Candidate{}); !errors.Is(err, ErrEmptyCandidate) {
		t.Fatalf("expected ErrEmptyCandidate, got %v", err)
	}
}

func TestDetectDuplicates(t *testing.T) {
	var shopA, copyA, near, other ingest.Profile
	for hour := 0; hour < ingest.HoursPerDay; hour++ {
		shopA.Weekday[hour] = float64(hour) + 1
		copyA.Weekday[hour] = float64(hour) + 1
		near.Weekday[hour] = float64(hour) + 1.005
		other.Weekday[hour] = float64(hour) + 1.02
	}
	got := DetectDuplicates([]ingest.Profile{shopA, copyA, other, near}, 0)
	want := []int{NotDuplicate, 0, NotDuplicate, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DetectDuplicates = %v, want %v", got, want)
		}
	}

	if got := DetectDuplicateSeries([][]float64{{1, 2}, {1, 2, 3}}, 0.01); got[1] != NotDuplicate {
		t.Fatalf("different lengths must not match, got %v", got)
	}

	dup := DuplicateMatch(0, "Shop A")
	if dup.Type != MatchDuplicate || dup.DuplicateOf != 0 || dup.Matched() {
		t.Fatalf("unexpected duplicate result %+v", dup)
	}
}
