package emergingsocial

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Emerging Social"

// Adapter implements the Connector interface for federated and emerging
// networks. It returns deterministic sample accounts until a real
// integration lands.
type Adapter struct{}

// NewAdapter creates a new emerging social adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceEmergingSocial
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample federated account for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "")
	instance := "fedi.example.social"

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://" + instance + "/@" + handle,
			Source:      domain.SourceEmergingSocial,
			Profile: domain.JSONMap{
				"handle":    "@" + handle + "@" + instance,
				"instance":  instance,
				"bio":       "Early adopter, open web enthusiast",
				"followers": 60 + len(handle)*5,
			},
		},
	}, nil
}
