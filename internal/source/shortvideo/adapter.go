package shortvideo

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Short Video Social"

// Adapter implements the Connector interface for the short-form video
// network. It returns deterministic sample profiles until a real
// integration lands.
type Adapter struct{}

// NewAdapter creates a new short video adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceShortVideoSocial
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample short video profile for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "_")

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://cliploop.example.com/@" + handle,
			Source:      domain.SourceShortVideoSocial,
			Profile: domain.JSONMap{
				"username":    handle,
				"bio":         "New clips every week",
				"followers":   1200 + len(handle)*80,
				"total_likes": 5400 + len(handle)*300,
				"video_count": 30 + len(handle)%40,
			},
		},
	}, nil
}
