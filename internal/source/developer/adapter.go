package developer

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Developer Platform"

// Adapter implements the Connector interface for the developer platform.
// It returns deterministic sample profiles until a real integration lands.
type Adapter struct{}

// NewAdapter creates a new developer platform adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceDeveloperPlatform
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample developer profile for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "")
	languages := []string{"Go", "TypeScript", "Python"}

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://codeforge.example.com/" + handle,
			Source:      domain.SourceDeveloperPlatform,
			Profile: domain.JSONMap{
				"username":     handle,
				"bio":          "Building things with " + languages[len(handle)%len(languages)],
				"public_repos": 12 + len(handle)%30,
				"followers":    40 + len(handle)*3,
				"languages":    languages,
				"pinned_repos": []string{handle + "-toolkit", "awesome-" + handle},
			},
		},
	}, nil
}
