package professional

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/source"
)

const SourceName = "Professional Network"

// Adapter implements the Connector interface for the professional network.
// It returns deterministic sample profiles until a real integration lands.
type Adapter struct{}

// NewAdapter creates a new professional network adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Tag returns the source tag for this connector
func (a *Adapter) Tag() domain.SourceTag {
	return domain.SourceProfessionalNetwork
}

// DisplayName returns a human-readable name for this source
func (a *Adapter) DisplayName() string {
	return SourceName
}

// FetchProfiles returns a sample professional profile for the hinted name
func (a *Adapter) FetchProfiles(ctx context.Context, hint source.Hint) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hint.Name)
	if name == "" {
		return nil, nil
	}

	handle := source.Handle(name, "-")
	skills := []string{"communication", "project management"}
	if kw := firstKeyword(hint.Context); kw != "" {
		skills = append([]string{kw}, skills...)
	}

	return []domain.Candidate{
		{
			DisplayName: name,
			URL:         "https://pronet.example.com/in/" + handle,
			Source:      domain.SourceProfessionalNetwork,
			Profile: domain.JSONMap{
				"headline":    name + " | " + titleFor(handle),
				"company":     companyFor(handle),
				"location":    "San Francisco Bay Area",
				"skills":      skills,
				"connections": 140 + len(handle)*7,
			},
		},
	}, nil
}

// firstKeyword picks the first word of at least five letters from the
// conversational context, used to tilt the sample skills toward the topic.
func firstKeyword(context string) string {
	for _, w := range strings.Fields(strings.ToLower(context)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) >= 5 {
			return w
		}
	}
	return ""
}

func titleFor(handle string) string {
	titles := []string{
		"Software Engineer",
		"Product Manager",
		"Engineering Manager",
		"Data Scientist",
	}
	return titles[len(handle)%len(titles)]
}

func companyFor(handle string) string {
	companies := []string{
		"Acme Systems",
		"Northwind Labs",
		"Cascade Analytics",
		"Bluepeak Software",
	}
	return companies[len(handle)%len(companies)]
}
