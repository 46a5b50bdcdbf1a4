package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/prompts"
)

// Chat is a text completion dependency. Outreach drafting and LLM candidate
// scoring use it; when disabled, both fall back to non-LLM paths.
type Chat interface {
	Enabled() bool
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatService calls an OpenAI-compatible chat completions API.
type ChatService struct {
	client   *resty.Client
	enabled  bool
	model    string
	endpoint string
}

// NewChatService creates a new chat service.
func NewChatService(cfg *config.ChatConfig) *ChatService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &ChatService{
		client:   client,
		enabled:  cfg.Enabled && cfg.APIKey != "",
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// Enabled reports whether completions can be attempted.
func (s *ChatService) Enabled() bool {
	return s.enabled
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user message pair and returns the reply text.
func (s *ChatService) Complete(ctx context.Context, system, user string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("chat service disabled")
	}

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   512,
		Temperature: 0.7,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call chat API: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Error != nil {
			return "", fmt.Errorf("chat API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("chat API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ScoreCandidate implements CandidateScorer: it asks the model for a bare
// confidence number. Parse failures are errors so the resolver falls back
// to its heuristic.
func (s *ChatService) ScoreCandidate(ctx context.Context, contextText string, candidate domain.Candidate) (float64, error) {
	user := fmt.Sprintf(prompts.CandidateScoreUserPrompt,
		contextText,
		candidate.DisplayName,
		candidate.Source,
		renderProfile(candidate.Profile),
	)

	reply, err := s.Complete(ctx, prompts.CandidateScoreSystemPrompt, user)
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable score %q: %w", reply, err)
	}
	return clampScore(score), nil
}

// renderProfile flattens profile fields into key: value lines, keys sorted
// for a stable prompt.
func renderProfile(profile domain.JSONMap) string {
	if len(profile) == 0 {
		return "(no profile fields)"
	}
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, profile[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
