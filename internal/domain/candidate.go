package domain

// Candidate is one externally-sourced identity guess. Candidates exist only
// for the duration of a workflow run; the selected top candidate rides into
// the job result, the rest are discarded.
type Candidate struct {
	DisplayName string    `json:"display_name"`
	URL         string    `json:"url"`
	Source      SourceTag `json:"source"`
	// Profile carries the platform-specific payload (headline, bio,
	// follower counts, repos) untouched by core logic.
	Profile    JSONMap `json:"profile,omitempty"`
	Confidence float64 `json:"confidence"`
}
