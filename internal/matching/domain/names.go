package matching

import (
	"regexp"
	"strings"
)

var (
	fileExtension  = regexp.MustCompile(`\.[a-z][a-z0-9]{0,4}$`)
	nameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")
	trailingCopy   = regexp.MustCompile(`(\s*\(?\d+\)?)+$`)
	trailingNumber = regexp.MustCompile(`(\d+)\)?$`)
	yearToken      = regexp.MustCompile(`^(19|20)\d{2}$`)
	dateStamp      = regexp.MustCompile(`^(\d{6}|\d{8})$`)
	periodToken    = regexp.MustCompile(`^(q[1-4]|h[12]|fy\d{2,4})$`)
	monthTokens    = map[string]struct{}{
		"jan": {}, "january": {}, "feb": {}, "february": {}, "mar": {}, "march": {},
		"apr": {}, "april": {}, "may": {}, "jun": {}, "june": {}, "jul": {}, "july": {},
		"aug": {}, "august": {}, "sep": {}, "sept": {}, "september": {}, "oct": {},
		"october": {}, "nov": {}, "november": {}, "dec": {}, "december": {},
	}
)

// NormalizeName lowercases a label, strips one trailing file extension, turns
// underscores, dashes and dots into spaces and collapses whitespace. It is idempotent.
func NormalizeName(label string) string {
	s := strings.TrimSpace(strings.ToLower(label))
	s = fileExtension.ReplaceAllString(s, "")
	s = nameSeparators.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeStrict is NormalizeName without a trailing run of digits or copy markers,
// so "Shop 01" and "Shop A (2)" align with "Shop" and "Shop A". A label made only
// of digits keeps them.
func NormalizeStrict(label string) string {
	s := NormalizeName(label)
	stripped := strings.TrimSpace(trailingCopy.ReplaceAllString(s, ""))
	if stripped == "" {
		return s
	}
	return stripped
}

// strictEqual reports whether two normalized labels share a strict form without
// contradicting trailing numbers: "shop 07" aligns with "shop 7" and "shop a (2)" with
// "shop a", but "shop 13" does not align with "shop 12".
func strictEqual(a, b string) bool {
	if NormalizeStrict(a) != NormalizeStrict(b) {
		return false
	}
	na, okA := numberSuffix(a)
	nb, okB := numberSuffix(b)
	return !okA || !okB || na == nb
}

// numberSuffix returns the trailing digit run of a label without leading zeros.
func numberSuffix(normalized string) (string, bool) {
	match := trailingNumber.FindStringSubmatch(normalized)
	if match == nil {
		return "", false
	}
	digits := strings.TrimLeft(match[1], "0")
	if digits == "" {
		digits = "0"
	}
	return digits, true
}

// StripPeriod removes leading and trailing period qualifiers such as month names,
// years and date stamps from a normalized label: "woolworths jan 2024" becomes
// "woolworths". The label is returned unchanged when nothing else would remain.
func StripPeriod(normalized string) string {
	tokens := strings.Fields(normalized)
	start, end := 0, len(tokens)
	for end > start && isPeriodToken(tokens[end-1]) {
		end--
	}
	for start < end && isPeriodToken(tokens[start]) {
		start++
	}
	if start == end {
		return normalized
	}
	return strings.Join(tokens[start:end], " ")
}

func isPeriodToken(token string) bool {
	if _, ok := monthTokens[token]; ok {
		return true
	}
	return yearToken.MatchString(token) || dateStamp.MatchString(token) || periodToken.MatchString(token)
}

// tokens returns the distinct words longer than minLen.
func tokens(normalized string, minLen int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		if len([]rune(token)) > minLen {
			out[token] = struct{}{}
		}
	}
	return out
}
