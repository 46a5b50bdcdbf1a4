package source

import (
	"context"

	"github.com/calebwren/rapport/internal/domain"
)

// Hint carries the lookup input for a profile fetch. Name is the display
// name heard in conversation. Context is free text from the transcript that
// search-style connectors fold into their query.
type Hint struct {
	Name    string
	Context string
}

// Connector fetches public profile candidates from one source platform.
type Connector interface {
	// Tag returns the source tag this connector serves.
	// Parameters: none.
	// Returns:
	//   - domain.SourceTag: stable tag identifying the platform.
	Tag() domain.SourceTag

	// DisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly platform name.
	DisplayName() string

	// FetchProfiles looks up public profiles matching the hint.
	// A nil or empty slice with a nil error means the person was not
	// found on this platform. Ban signals (CAPTCHA interstitial,
	// HTTP 429) are reported as a BlockedError.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - hint: person name and optional conversational context.
	// Returns:
	//   - candidates: matching profile candidates, possibly empty.
	//   - err: non-nil if fetching fails.
	FetchProfiles(ctx context.Context, hint Hint) (candidates []domain.Candidate, err error)
}
