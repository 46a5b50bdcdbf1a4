package service

import (
	"strings"
	"testing"
)

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantCounts map[string]int
		wantGone   []string
		wantKept   []string
	}{
		{
			name:       "email",
			input:      "reach me at alex.chen@example.com after lunch",
			wantCounts: map[string]int{"email": 1},
			wantGone:   []string{"alex.chen@example.com"},
			wantKept:   []string{"after lunch", "[REDACTED_EMAIL]"},
		},
		{
			name:       "phone variants",
			input:      "call 555-123-4567 or (555) 987-6543",
			wantCounts: map[string]int{"phone": 2},
			wantGone:   []string{"555-123-4567", "987-6543"},
			wantKept:   []string{"[REDACTED_PHONE]"},
		},
		{
			name:       "ssn",
			input:      "my ssn is 123-45-6789 apparently",
			wantCounts: map[string]int{"ssn": 1},
			wantGone:   []string{"123-45-6789"},
			wantKept:   []string{"[REDACTED_SSN]"},
		},
		{
			name:       "card number not double-counted as phone",
			input:      "card 4111-1111-1111-1111 on file",
			wantCounts: map[string]int{"credit_card": 1},
			wantGone:   []string{"4111"},
			wantKept:   []string{"[REDACTED_CREDIT_CARD]"},
		},
		{
			name:       "mixed",
			input:      "email bob@test.io, phone 555-222-3333, ssn 987-65-4321",
			wantCounts: map[string]int{"email": 1, "phone": 1, "ssn": 1},
			wantGone:   []string{"bob@test.io", "555-222-3333", "987-65-4321"},
		},
		{
			name:       "clean text untouched",
			input:      "we talked about climbing in yosemite",
			wantCounts: map[string]int{},
			wantKept:   []string{"we talked about climbing in yosemite"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, counts := ScrubPII(tt.input)

			for kind, want := range tt.wantCounts {
				if counts[kind] != want {
					t.Errorf("expected %d %s, got %d", want, kind, counts[kind])
				}
			}
			for kind, n := range counts {
				if tt.wantCounts[kind] != n {
					t.Errorf("unexpected %s count %d", kind, n)
				}
			}
			for _, s := range tt.wantGone {
				if strings.Contains(got, s) {
					t.Errorf("expected %q scrubbed from %q", s, got)
				}
			}
			for _, s := range tt.wantKept {
				if !strings.Contains(got, s) {
					t.Errorf("expected %q present in %q", s, got)
				}
			}
		})
	}
}
