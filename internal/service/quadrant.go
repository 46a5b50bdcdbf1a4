package service

import (
	"strings"

	"github.com/calebwren/rapport/internal/domain"
)

// Axis contributions per source tag. Where a person shows up says a lot
// about how they present online: a professional-network hit and a
// short-video hit pull the quadrant in different directions.
var quadrantSourceWeights = map[domain.SourceTag]map[string]float64{
	domain.SourceProfessionalNetwork: {"professional": 2.0},
	domain.SourceDeveloperPlatform:   {"professional": 1.5, "creative": 0.5},
	domain.SourceImageSocial:         {"creative": 1.5, "casual": 1.0},
	domain.SourceShortVideoSocial:    {"creative": 1.0, "realtime": 1.0},
	domain.SourceMicroblog:           {"realtime": 2.0, "casual": 0.5},
	domain.SourceWebSearch:           {"professional": 0.5},
	domain.SourceVideoPlatform:       {"creative": 1.5},
	domain.SourceEmergingSocial:      {"casual": 1.0, "realtime": 0.5},
}

// Interest keywords that nudge an axis when they appear in the extracted
// interest text.
var quadrantKeywords = map[string][]string{
	"professional": {"engineering", "career", "startup", "business", "management"},
	"creative":     {"photography", "art", "music", "design", "writing"},
	"casual":       {"hiking", "food", "travel", "games", "cooking"},
	"realtime":     {"news", "streaming", "live", "esports"},
}

var quadrantAxes = []string{"professional", "creative", "casual", "realtime"}

// ComputeSocialQuadrant classifies a person's online presence style from
// which sources produced profiles and what the conversation was about.
// Scores are normalized by the strongest axis. With no signal at all it
// returns the neutral balanced quadrant rather than claiming a read.
func ComputeSocialQuadrant(found []domain.SourceTag, interests string) domain.SocialQuadrant {
	scores := map[string]float64{}
	for _, tag := range found {
		for axis, w := range quadrantSourceWeights[tag] {
			scores[axis] += w
		}
	}

	lowered := " " + strings.ToLower(interests) + " "
	for axis, words := range quadrantKeywords {
		for _, w := range words {
			if strings.Contains(lowered, " "+w+" ") {
				scores[axis] += 0.5
			}
		}
	}

	var max float64
	for _, axis := range quadrantAxes {
		if scores[axis] > max {
			max = scores[axis]
		}
	}
	if max == 0 {
		return domain.SocialQuadrant{
			Professional: 0.5,
			Creative:     0.5,
			Casual:       0.5,
			Realtime:     0.5,
			ProfileType:  "balanced",
		}
	}

	for _, axis := range quadrantAxes {
		scores[axis] /= max
	}

	// Top two axes in fixed axis order on ties.
	first, second := "", ""
	for _, axis := range quadrantAxes {
		if first == "" || scores[axis] > scores[first] {
			second = first
			first = axis
			continue
		}
		if second == "" || scores[axis] > scores[second] {
			second = axis
		}
	}

	return domain.SocialQuadrant{
		Professional: scores["professional"],
		Creative:     scores["creative"],
		Casual:       scores["casual"],
		Realtime:     scores["realtime"],
		ProfileType:  first + "_" + second,
	}
}
