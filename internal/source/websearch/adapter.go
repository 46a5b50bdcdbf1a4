package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Web Search"

// Adapter implements the Connector interface for general web search.
// It returns deterministic sample results until a real integration lands.
type Adapter struct{}

// NewAdapter creates a new web search adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceWebSearch
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns sample search results for the hinted name. Web
// search is the broadest source, so three ranked results come back, each
// carrying the page title and snippet instead of structured profile fields.
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	query := name
	if c := strings.TrimSpace(hint.Context); c != "" {
		query = name + " " + c
	}

	handle := source.Handle(name, "-")
	pages := []struct {
		host    string
		title   string
		snippet string
	}{
		{"about.example.com", name + " | About", "Personal site of " + name + "."},
		{"news.example.com", name + " featured in local spotlight", "An interview with " + name + " about their work and hobbies."},
		{"events.example.com", name + " speaking at community meetup", name + " joins the panel next month."},
	}

	candidates := make([]domain.Candidate, 0, len(pages))
	for i, p := range pages {
		candidates = append(candidates, domain.Candidate{
			DisplayName: name,
			URL:         fmt.Sprintf("https://%s/%s", p.host, handle),
			Source:      domain.SourceWebSearch,
			Profile: domain.JSONMap{
				"title":   p.title,
				"snippet": p.snippet,
				"rank":    i + 1,
				"query":   query,
			},
		})
	}
	return candidates, nil
}
