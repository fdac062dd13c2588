package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"stylist-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

// Store is the single source of truth for sessions and their turns.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]database.ChatSession, error) {
	var sessions []database.ChatSession
	err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&sessions).Error
	return sessions, err
}

// CreateSession creates a session with the given title, generating a default
// title when none is provided.
func (s *Store) CreateSession(ctx context.Context, title string) (uuid.UUID, error) {
	if title == "" {
		title = "Conversation " + time.Now().Format("Jan 2, 2006")
	}

	session := database.ChatSession{
		ID:    uuid.New(),
		Title: title,
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return uuid.Nil, fmt.Errorf("error creating session: %w", err)
	}
	return session.ID, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (database.ChatSession, error) {
	var session database.ChatSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	return session, err
}

func (s *Store) RenameSession(ctx context.Context, sessionID uuid.UUID, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return s.db.WithContext(ctx).Model(&database.ChatSession{ID: sessionID}).Update("title", title).Error
}

// ListTurns returns the session's turns ordered oldest to newest. Callers
// always get a usable slice; no rows is not an error.
func (s *Store) ListTurns(ctx context.Context, sessionID uuid.UUID) ([]database.ChatMessage, error) {
	var turns []database.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&turns).Error
	return turns, err
}

// AppendTurn persists one turn and bumps the session's updated_at in the same
// transaction, so list order tracks activity.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content, visualContext string) (uuid.UUID, error) {
	turn := database.ChatMessage{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Role:          role,
		Content:       content,
		VisualContext: sql.NullString{String: visualContext, Valid: visualContext != ""},
		CreatedAt:     time.Now().UTC(),
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()
	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&turn).Error; err != nil {
			return err
		}
		return txn.Model(&database.ChatSession{ID: sessionID}).
			Update("updated_at", turn.CreatedAt).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("error appending turn: %w", err)
	}
	return turn.ID, nil
}

// DeleteSession removes the session and its turns. Best-effort from the
// caller's perspective; if the deleted session was the active one the caller
// is responsible for clearing its current-session pointer.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	if err := s.db.WithContext(ctx).Delete(&database.ChatMessage{}, "session_id = ?", sessionID).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&database.ChatSession{}, "id = ?", sessionID).Error
}

// LatestVisualContext scans the session's turns oldest to newest and returns
// the last non-null visual context, the session's ground truth about what the
// model has seen. Empty string when the session has none.
func (s *Store) LatestVisualContext(ctx context.Context, sessionID uuid.UUID) (string, error) {
	turns, err := s.ListTurns(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return LatestVisualContext(turns), nil
}

// LatestVisualContext is the pure scan over an already loaded history,
// last-write-wins.
func LatestVisualContext(turns []database.ChatMessage) string {
	latest := ""
	for _, turn := range turns {
		if turn.VisualContext.Valid && turn.VisualContext.String != "" {
			latest = turn.VisualContext.String
		}
	}
	return latest
}
