package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
)

// Transcriber converts stored audio into a structured transcript. The
// workflow engine and tests depend on this interface, not the HTTP client.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, diarize bool) (*domain.Transcript, error)
}

// TranscriptionService calls a speech-to-text API that supports diarization
// and entity detection on the listen endpoint.
type TranscriptionService struct {
	client         *resty.Client
	endpoint       string
	model          string
	detectEntities bool
}

// NewTranscriptionService creates a transcription client from config.
func NewTranscriptionService(cfg *config.TranscriptionConfig) *TranscriptionService {
	client := resty.New()
	client.SetHeader("Authorization", "Token "+cfg.APIKey)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.deepgram.com"
	}

	return &TranscriptionService{
		client:         client,
		endpoint:       baseURL + "/v1/listen",
		model:          cfg.Model,
		detectEntities: cfg.DetectEntities,
	}
}

// Speech API response structures
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Entities   []struct {
					Label string `json:"label"`
					Value string `json:"value"`
				} `json:"entities"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"utterances"`
	} `json:"results"`
	ErrMsg string `json:"err_msg,omitempty"`
}

// Transcribe sends raw audio for transcription. With diarize set the
// response carries speaker-attributed utterances; entity detection is
// controlled by config.
func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte, diarize bool) (*domain.Transcript, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}

	params := map[string]string{
		"model":     s.model,
		"punctuate": "true",
	}
	if diarize {
		params["diarize"] = "true"
		params["utterances"] = "true"
	}
	if s.detectEntities {
		params["detect_entities"] = "true"
	}

	var resp listenResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call transcription API: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.ErrMsg != "" {
			return nil, fmt.Errorf("transcription API error: %s", resp.ErrMsg)
		}
		return nil, fmt.Errorf("transcription API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("transcription API returned no alternatives")
	}
	alt := resp.Results.Channels[0].Alternatives[0]

	t := &domain.Transcript{
		Text:     alt.Transcript,
		Diarized: diarize && len(resp.Results.Utterances) > 0,
	}
	for _, e := range alt.Entities {
		t.Entities = append(t.Entities, domain.Entity{
			Type:  normalizeEntityLabel(e.Label),
			Value: e.Value,
		})
	}
	for _, u := range resp.Results.Utterances {
		t.Utterances = append(t.Utterances, domain.Utterance{
			Speaker:    u.Speaker,
			Text:       u.Transcript,
			Confidence: u.Confidence,
		})
	}
	return t, nil
}

// normalizeEntityLabel maps provider entity labels onto the domain types.
// Unknown labels pass through lowercased; extraction ignores them.
func normalizeEntityLabel(label string) domain.EntityType {
	switch strings.ToLower(label) {
	case "person", "name", "per":
		return domain.EntityPerson
	case "org", "organization":
		return domain.EntityOrganization
	case "skill", "occupation":
		return domain.EntitySkill
	case "topic", "event":
		return domain.EntityTopic
	default:
		return domain.EntityType(strings.ToLower(label))
	}
}

// RetryDelay returns the transcription retry backoff for the given attempt
// (0-based): base doubled per attempt, capped, plus up to a quarter of the
// delay in jitter so simultaneous retries do not land together.
func RetryDelay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	if cap <= 0 {
		cap = 10 * time.Minute
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)+1))
}
