package videoplatform

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Video Platform"

// Adapter implements the Connector interface for the long-form video
// platform. It returns deterministic sample channels until a real
// integration lands.
type Adapter struct{}

// NewAdapter creates a new video platform adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceVideoPlatform
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample channel for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "")

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://vidstream.example.com/@" + handle,
			Source:      domain.SourceVideoPlatform,
			Profile: domain.JSONMap{
				"channel":     name,
				"subscribers": 2500 + len(handle)*150,
				"video_count": 45 + len(handle)%50,
				"topics":      []string{"tutorials", "vlogs"},
			},
		},
	}, nil
}
