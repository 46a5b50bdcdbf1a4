package domain

import "time"

// Conversation is the persisted record of one processed recording: the
// transcript text, the extracted interest string, and where the raw audio
// lives in object storage.
type Conversation struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	UserID     string    `gorm:"type:text;not null;index" json:"user_id"`
	JobID      string    `gorm:"type:text;index" json:"job_id"`
	Mode       Mode      `gorm:"type:text" json:"mode"`
	Transcript string    `json:"transcript"`
	Interests  string    `json:"interests"`
	AudioKey   string    `gorm:"type:text" json:"audio_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}
