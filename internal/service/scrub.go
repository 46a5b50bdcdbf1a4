package service

import (
	"regexp"
	"strings"
)

// piiPattern pairs a PII class with its detection regex. Scrubbing runs in
// slice order: card numbers first, so their digit runs are gone before the
// looser phone pattern sees the text.
type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

var piiPatterns = []piiPattern{
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"phone", regexp.MustCompile(`(?:\+?1[ .-]?)?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`)},
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
}

// ScrubPII replaces detected phone numbers, emails, SSNs and card numbers
// with [REDACTED_<TYPE>] markers and reports how many of each were found.
// Draft messages and stored results only ever see the scrubbed text.
func ScrubPII(text string) (string, map[string]int) {
	counts := make(map[string]int)
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(string) string {
			counts[p.kind]++
			return "[REDACTED_" + strings.ToUpper(p.kind) + "]"
		})
	}
	return text, counts
}
