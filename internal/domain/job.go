package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Stage represents the workflow stage of an enrichment job. Stages advance
// in a fixed order; ERROR and CANCELLED are side exits reachable from any
// non-terminal stage.
type Stage string

const (
	StagePending       Stage = "PENDING"
	StageTranscription Stage = "TRANSCRIPTION"
	StageEnrichment    Stage = "ENRICHMENT"
	StageSynthesis     Stage = "SYNTHESIS"
	StageSuccess       Stage = "SUCCESS"
	StageError         Stage = "ERROR"
	StageCancelled     Stage = "CANCELLED"
)

// Variant selects the pipeline shape for a job.
type Variant string

const (
	// VariantBasic runs transcription and synthesis only.
	VariantBasic Variant = "basic"
	// VariantMultiSource adds the source-dispatch enrichment stage.
	VariantMultiSource Variant = "multi_source"
)

// Mode selects how the transcript is interpreted.
type Mode string

const (
	// ModeLive is a diarized two-party recording; speaker 0 is the user.
	ModeLive Mode = "live"
	// ModeRecap is a single-speaker summary recorded after the fact.
	ModeRecap Mode = "recap"
)

// stageOrder gives each pipeline stage a rank for monotonicity checks.
var stageOrder = map[Stage]int{
	StagePending:       0,
	StageTranscription: 1,
	StageEnrichment:    2,
	StageSynthesis:     3,
	StageSuccess:       4,
}

// IsTerminal reports whether no further mutation of the job is permitted.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageSuccess, StageError, StageCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal stage
// transition: forward-only along the pipeline, with ERROR and CANCELLED
// reachable from any non-terminal stage.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageError || next == StageCancelled {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// ParseStage validates a stored stage string.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	switch stage {
	case StagePending, StageTranscription, StageEnrichment, StageSynthesis,
		StageSuccess, StageError, StageCancelled:
		return stage, nil
	}
	return "", errors.New("unknown stage: " + s)
}

// JSONMap is a custom type for storing JSON objects in the database.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Job represents one asynchronous enrichment workflow and its progress
// metadata. InputData holds the submission parameters, StageData the
// accumulating record passed from stage to stage, and Result the final
// payload written only when the job reaches SUCCESS.
type Job struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	UserID       string     `gorm:"type:text;not null;index" json:"user_id"`
	Variant      Variant    `gorm:"type:text;default:multi_source" json:"variant"`
	Stage        Stage      `gorm:"type:text;not null;index;default:PENDING" json:"stage"`
	Progress     int        `gorm:"default:0" json:"progress"`
	InputData    JSONMap    `gorm:"type:text" json:"input_data,omitempty"`
	StageData    JSONMap    `gorm:"type:text" json:"-"`
	Result       JSONMap    `gorm:"type:text" json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}
