package microblog

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Microblog"

// Adapter implements the Connector interface for the microblog platform.
// It returns deterministic sample profiles until a real integration lands.
type Adapter struct{}

// NewAdapter creates a new microblog adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceMicroblog
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns sample microblog accounts for the hinted name.
// The platform search typically surfaces an exact-handle match plus a
// near-miss, so two candidates come back.
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "_")
	topics := []string{"technology", "coffee"}
	if kw := contextTopic(hint.Context); kw != "" {
		topics = append(topics, kw)
	}

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://chirper.example.com/" + handle,
			Source:      domain.SourceMicroblog,
			Profile: domain.JSONMap{
				"username":      handle,
				"bio":           "Posting about " + strings.Join(topics, ", "),
				"followers":     300 + len(handle)*20,
				"recent_topics": topics,
				"verified":      false,
			},
		},
		{
			DisplayName: name + " (fan)",
			URL:         "https://chirper.example.com/" + handle + "_real",
			Source:      domain.SourceMicroblog,
			Profile: domain.JSONMap{
				"username":      handle + "_real",
				"bio":           "Parody account",
				"followers":     12,
				"recent_topics": []string{"memes"},
				"verified":      false,
			},
		},
	}, nil
}

// contextTopic picks one topical word out of the conversational context.
func contextTopic(context string) string {
	for _, w := range strings.Fields(strings.ToLower(context)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) >= 6 {
			return w
		}
	}
	return ""
}
