package domain

import "time"

// PersonaNode is one weighted facet of a user's identity ("React", "trail
// running", "fintech"). The label embedding lives in the vector index under
// PointID; the row here is the durable source of truth for label and weight.
type PersonaNode struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	UserID    string    `gorm:"type:text;not null;index" json:"user_id"`
	Label     string    `gorm:"type:text;not null" json:"label"`
	Weight    float64   `gorm:"default:1.0" json:"weight"`
	PointID   string    `gorm:"type:text" json:"point_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PersonaNode.
func (PersonaNode) TableName() string {
	return "persona_nodes"
}

// SynapseMatch is one overlap between a conversational interest vector and a
// persona node, above the similarity threshold.
type SynapseMatch struct {
	Label         string  `json:"label"`
	Similarity    float64 `json:"similarity"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

// SocialQuadrant classifies a person's online presence along four axes.
// Scores are normalized to [0,1]; ProfileType names the top two axes.
type SocialQuadrant struct {
	Professional float64 `json:"professional"`
	Creative     float64 `json:"creative"`
	Casual       float64 `json:"casual"`
	Realtime     float64 `json:"realtime"`
	ProfileType  string  `json:"profile_type"`
}
