package service

import (
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// fillerWords is the stop-list stripped from transcript text before it is
// embedded. Matching is case-insensitive on whole words.
var fillerWords = map[string]bool{
	"um":        true,
	"uh":        true,
	"umm":       true,
	"uhh":       true,
	"hmm":       true,
	"mhm":       true,
	"like":      true,
	"actually":  true,
	"basically": true,
	"literally": true,
	"yeah":      true,
	"okay":      true,
}

// interestEntityTypes are the entity types that carry interest signal.
var interestEntityTypes = map[domain.EntityType]bool{
	domain.EntitySkill:        true,
	domain.EntityTopic:        true,
	domain.EntityOrganization: true,
	domain.EntityPerson:       true,
}

// ExtractInterests reduces a transcript to a flat interest string for
// embedding. It never fails: each mode falls back through progressively
// cruder signal until something non-empty is found, or returns "".
//
// Live mode separates the other party's speech from the user's own
// (speaker index 0 is the user) and keeps only the other side. Recap mode
// works from detected entities.
func ExtractInterests(t *domain.Transcript, mode domain.Mode) string {
	if t == nil {
		return ""
	}

	switch mode {
	case domain.ModeLive:
		return extractLive(t)
	case domain.ModeRecap:
		return extractRecap(t)
	default:
		logger.Debug("unknown extraction mode %q, using recap path", mode)
		return extractRecap(t)
	}
}

func extractLive(t *domain.Transcript) string {
	if t.HasSpeakers() {
		var other []string
		for _, u := range t.Utterances {
			if u.Speaker != 0 {
				other = append(other, u.Text)
			}
		}
		if cleaned := stripFillers(strings.Join(other, " ")); cleaned != "" {
			return cleaned
		}
		logger.Debug("other-party bucket empty after diarization, falling back to entities")
	}

	// Diarization quality drops in noisy rooms. Bag-of-words over detected
	// entities still captures what the conversation was about.
	if joined := joinEntities(t.Entities); joined != "" {
		return joined
	}
	return stripFillers(t.Text)
}

func extractRecap(t *domain.Transcript) string {
	if joined := joinEntities(t.Entities); joined != "" {
		return joined
	}
	logger.Debug("no interest-bearing entities detected, falling back to raw text")
	return stripFillers(t.Text)
}

// joinEntities collects values of interest-bearing entity types, deduplicated
// case-insensitively in first-seen order.
func joinEntities(entities []domain.Entity) string {
	seen := make(map[string]bool)
	var values []string
	for _, e := range entities {
		if !interestEntityTypes[e.Type] {
			continue
		}
		v := strings.TrimSpace(e.Value)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, v)
	}
	return strings.Join(values, " ")
}

// stripFillers removes stop-list words (whole-word, case-insensitive, with
// surrounding punctuation ignored) and collapses whitespace.
func stripFillers(text string) string {
	var kept []string
	for _, word := range strings.Fields(text) {
		bare := strings.ToLower(strings.Trim(word, ".,!?;:\"'()"))
		if fillerWords[bare] {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}
