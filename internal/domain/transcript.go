package domain

// EntityType classifies a named entity found in a transcript. Only the
// interest-bearing types below feed interest extraction; anything else the
// provider returns is carried but ignored.
type EntityType string

const (
	EntitySkill        EntityType = "skill"
	EntityTopic        EntityType = "topic"
	EntityOrganization EntityType = "organization"
	EntityPerson       EntityType = "person"
)

// Entity is one named-entity annotation from the transcription provider.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

// Utterance is one speaker-attributed segment of a diarized transcript.
// Speaker 0 is the recording user; any other index is the other party.
type Utterance struct {
	Speaker    int     `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcript is the structured output of transcription. It is carried in
// job stage data, not persisted as its own row.
type Transcript struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances,omitempty"`
	Entities   []Entity    `json:"entities,omitempty"`
	Diarized   bool        `json:"diarized"`
}

// HasSpeakers reports whether the transcript carries usable diarization
// metadata (at least one utterance with a speaker index).
func (t *Transcript) HasSpeakers() bool {
	return t != nil && len(t.Utterances) > 0
}
