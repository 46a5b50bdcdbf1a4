package domain

import "time"

// InteractionMetric records aggregate outcomes of one completed workflow for
// later analysis. Written best-effort at the end of synthesis; a failed
// write never fails the job.
type InteractionMetric struct {
	ID                   string    `gorm:"type:text;primaryKey" json:"id"`
	JobID                string    `gorm:"type:text;not null;index" json:"job_id"`
	UserID               string    `gorm:"type:text;not null;index" json:"user_id"`
	SynapseCount         int       `gorm:"default:0" json:"synapse_count"`
	TopSynapseSimilarity float64   `gorm:"default:0" json:"top_synapse_similarity"`
	AvgSynapseSimilarity float64   `gorm:"default:0" json:"avg_synapse_similarity"`
	SourcesFound         int       `gorm:"default:0" json:"sources_found"`
	SourcesFailed        int       `gorm:"default:0" json:"sources_failed"`
	CandidateCount       int       `gorm:"default:0" json:"candidate_count"`
	PIIDetected          int       `gorm:"default:0" json:"pii_detected"`
	Degraded             bool      `gorm:"default:false" json:"degraded"`
	ProcessingTimeMs     int64     `gorm:"default:0" json:"processing_time_ms"`
	CreatedAt            time.Time `json:"created_at"`
}

// TableName returns the database table name for InteractionMetric.
func (InteractionMetric) TableName() string {
	return "interaction_metrics"
}
