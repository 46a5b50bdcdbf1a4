package service

import (
	"strings"
	"testing"

	"github.com/calebwren/rapport/internal/domain"
)

func TestExtractInterests_RecapEntities(t *testing.T) {
	tr := &domain.Transcript{
		Text: "Um, we talked about React and, like, hiking trips",
		Entities: []domain.Entity{
			{Type: domain.EntitySkill, Value: "React"},
			{Type: domain.EntityTopic, Value: "hiking"},
			{Type: domain.EntityTopic, Value: "React"},
			{Type: "location", Value: "Denver"},
		},
	}

	got := ExtractInterests(tr, domain.ModeRecap)
	if got != "React hiking" {
		t.Errorf("expected entity join with dedupe and type filter, got %q", got)
	}
}

func TestExtractInterests_RecapFallbackStripsFillers(t *testing.T) {
	tr := &domain.Transcript{
		Text: "Um, yeah, we talked about rock climbing, like every weekend. Okay!",
	}

	got := ExtractInterests(tr, domain.ModeRecap)
	if got == "" {
		t.Fatal("fallback should produce non-empty output for non-empty text")
	}
	for _, word := range strings.Fields(got) {
		bare := strings.ToLower(strings.Trim(word, ".,!?;:\"'()"))
		if fillerWords[bare] {
			t.Errorf("filler %q survived stripping in %q", word, got)
		}
	}
	if !strings.Contains(got, "rock climbing") {
		t.Errorf("content words should survive, got %q", got)
	}
}

func TestExtractInterests_LiveOtherSpeaker(t *testing.T) {
	tr := &domain.Transcript{
		Text: "full transcript",
		Utterances: []domain.Utterance{
			{Speaker: 0, Text: "So what do you do for fun?"},
			{Speaker: 1, Text: "Um, mostly bouldering and, like, photography"},
			{Speaker: 0, Text: "Nice"},
		},
		Diarized: true,
	}

	got := ExtractInterests(tr, domain.ModeLive)
	if strings.Contains(got, "for fun") {
		t.Errorf("self speech should be excluded, got %q", got)
	}
	if !strings.Contains(got, "bouldering") || !strings.Contains(got, "photography") {
		t.Errorf("other-party speech should be kept, got %q", got)
	}
	if strings.Contains(strings.ToLower(" "+got+" "), " um, ") {
		t.Errorf("fillers should be stripped, got %q", got)
	}
}

func TestExtractInterests_LiveEmptyOtherBucketFallsBack(t *testing.T) {
	tr := &domain.Transcript{
		Text: "monologue about gardening",
		Utterances: []domain.Utterance{
			{Speaker: 0, Text: "I kept talking about gardening the whole time"},
		},
		Diarized: true,
		Entities: []domain.Entity{
			{Type: domain.EntityTopic, Value: "gardening"},
		},
	}

	got := ExtractInterests(tr, domain.ModeLive)
	if got != "gardening" {
		t.Errorf("expected entity fallback when other bucket is empty, got %q", got)
	}
}

func TestExtractInterests_LiveNoSpeakerMetadata(t *testing.T) {
	tr := &domain.Transcript{
		Text: "we chatted about, um, trail running",
	}

	got := ExtractInterests(tr, domain.ModeLive)
	if got == "" {
		t.Fatal("expected raw-text fallback, got empty")
	}
	if strings.Contains(got, "um") {
		t.Errorf("fallback should strip fillers, got %q", got)
	}
}

func TestExtractInterests_NeverPanicsOnEmpty(t *testing.T) {
	if got := ExtractInterests(nil, domain.ModeRecap); got != "" {
		t.Errorf("nil transcript should yield empty string, got %q", got)
	}
	if got := ExtractInterests(&domain.Transcript{}, domain.ModeLive); got != "" {
		t.Errorf("empty transcript should yield empty string, got %q", got)
	}
}
