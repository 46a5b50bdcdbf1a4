package service

import (
	"testing"

	"github.com/calebwren/rapport/internal/domain"
)

func TestComputeSocialQuadrant_NoSignal(t *testing.T) {
	q := ComputeSocialQuadrant(nil, "")

	if q.ProfileType != "balanced" {
		t.Errorf("expected balanced profile, got %q", q.ProfileType)
	}
	for name, v := range map[string]float64{
		"professional": q.Professional,
		"creative":     q.Creative,
		"casual":       q.Casual,
		"realtime":     q.Realtime,
	} {
		if v != 0.5 {
			t.Errorf("expected neutral 0.5 for %s, got %f", name, v)
		}
	}
}

func TestComputeSocialQuadrant_ProfessionalLean(t *testing.T) {
	q := ComputeSocialQuadrant(
		[]domain.SourceTag{domain.SourceProfessionalNetwork, domain.SourceDeveloperPlatform},
		"engineering career hiking",
	)

	if q.Professional != 1.0 {
		t.Errorf("strongest axis should normalize to 1.0, got %f", q.Professional)
	}
	if q.Professional <= q.Creative || q.Professional <= q.Realtime {
		t.Errorf("professional should dominate: %+v", q)
	}
	if len(q.ProfileType) == 0 || q.ProfileType[:12] != "professional" {
		t.Errorf("profile type should lead with professional, got %q", q.ProfileType)
	}
}

func TestComputeSocialQuadrant_CreativeRealtimeMix(t *testing.T) {
	q := ComputeSocialQuadrant(
		[]domain.SourceTag{domain.SourceImageSocial, domain.SourceMicroblog},
		"photography",
	)

	if q.Creative != 1.0 && q.Realtime != 1.0 {
		t.Errorf("expected creative or realtime to lead, got %+v", q)
	}
	if q.Professional >= q.Creative {
		t.Errorf("professional should trail creative here: %+v", q)
	}
	if q.ProfileType == "balanced" {
		t.Error("signal present, should not report balanced")
	}
}

func TestComputeSocialQuadrant_ScoresBounded(t *testing.T) {
	q := ComputeSocialQuadrant(domain.AllSourceTags(), "photography music news hiking engineering")

	for name, v := range map[string]float64{
		"professional": q.Professional,
		"creative":     q.Creative,
		"casual":       q.Casual,
		"realtime":     q.Realtime,
	} {
		if v < 0 || v > 1 {
			t.Errorf("axis %s out of range: %f", name, v)
		}
	}
}
