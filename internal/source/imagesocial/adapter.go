package imagesocial

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Image Social"

// Adapter implements the Connector interface for the image-first social
// network. It returns deterministic sample profiles until a real
// integration lands.
type Adapter struct{}

// NewAdapter creates a new image social adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceImageSocial
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample image social profile for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, ".")

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://snapfeed.example.com/" + handle,
			Source:      domain.SourceImageSocial,
			Profile: domain.JSONMap{
				"username":   handle,
				"bio":        "Photos, food and weekend trips",
				"followers":  800 + len(handle)*25,
				"following":  350 + len(handle)*4,
				"post_count": 90 + len(handle)%60,
				"is_private": len(handle)%4 == 0,
			},
		},
	}, nil
}
