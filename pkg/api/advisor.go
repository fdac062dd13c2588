package api

import (
	"time"

	"github.com/google/uuid"
)

type SessionMetadata struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type CreateSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type HistoryItem struct {
	ID            uuid.UUID `json:"id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	VisualContext string    `json:"visual_context,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListSessionsQuery struct {
	Limit int `schema:"limit"`
}

type SendMessageRequest struct {
	Text        string  `json:"text"`
	Image       string  `json:"image,omitempty"`
	Temperature float64 `json:"temperature"`
}
