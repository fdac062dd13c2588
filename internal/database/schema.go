package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

type ChatSession struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title  string
	UserID sql.NullString

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`

	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null"`

	Role    string `gorm:"size:20;not null"`
	Content string

	// VisualContext holds what the model has "seen": an image payload on a
	// user message, or the model's textual description on an assistant
	// message. The most recent non-null value in a session is the ground
	// truth for subsequent calls.
	VisualContext sql.NullString

	CreatedAt time.Time `gorm:"index"`
}

const (
	VideoPending string = "pending"
	VideoActive  string = "active"
	VideoEnded   string = "ended"
	VideoError   string = "error"
)

type VideoSession struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ConversationID   string `gorm:"uniqueIndex;not null"`
	ConversationName sql.NullString
	ConversationURL  string

	// Status is a local cache; the authoritative value lives with the
	// remote avatar service and is refreshed by polling.
	Status string `gorm:"size:20;not null"`

	CallbackURL sql.NullString
	UserID      sql.NullString

	SessionID uuid.NullUUID  `gorm:"type:uuid"`
	Raw       datatypes.JSON `gorm:"type:jsonb"` // raw create_conversation response

	CreatedAt time.Time
	UpdatedAt time.Time
}
