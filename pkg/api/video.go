package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateVideoSessionRequest struct {
	ConversationName      string        `json:"conversation_name"`
	ConversationalContext string        `json:"conversational_context"`
	PersonaID             string        `json:"persona_id"`
	SessionID             uuid.NullUUID `json:"session_id,omitempty"`
}

type VideoSessionResponse struct {
	ID              uuid.UUID `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	ConversationURL string    `json:"conversation_url"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type VideoStatusResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}
