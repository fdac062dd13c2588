package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stylist-backend/internal/database"
	"stylist-backend/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// cleanupGrace gives the service time to release its concurrent-session
	// slot after teardown. A heuristic, not a guarantee.
	cleanupGrace = 500 * time.Millisecond

	endAllWorkers = 4
)

// FriendlyConcurrencyMessage is shown instead of a generic failure when the
// remote cap is hit.
const FriendlyConcurrencyMessage = "Please wait a moment while previous video sessions are cleaned up, then try again."

// Notifier surfaces transient user-visible messages.
type Notifier interface {
	Notify(message string)
}

// Manager owns the lifecycle of external avatar conversations: at most a
// bounded number may be live remotely, so every create is preceded by a
// teardown of everything the manager believes is still active. The active set
// is an explicit field, never ambient state, and the manager is the only
// writer of session status.
type Manager struct {
	db       *gorm.DB
	client   Client
	notifier Notifier
	grace    time.Duration

	mu      sync.Mutex
	active  map[string]struct{}
	current string
}

type Option func(*Manager)

// WithGrace overrides the cleanup-before-create grace period, used by tests.
func WithGrace(grace time.Duration) Option {
	return func(m *Manager) { m.grace = grace }
}

func NewManager(db *gorm.DB, client Client, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		client:   client,
		notifier: notifier,
		grace:    cleanupGrace,
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActiveConversations returns a snapshot of the conversation ids believed
// live remotely.
func (m *Manager) ActiveConversations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Current returns the conversation id the UI is currently showing, if any.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CreateSession tears down any tracked sessions, waits out the grace period,
// then asks the service for a new conversation. The persisted record is
// best-effort: the remote session already exists, so a failed insert is
// logged rather than surfaced as a failed create.
func (m *Manager) CreateSession(ctx context.Context, name, conversationalContext, personaID string, sessionID uuid.NullUUID) (database.VideoSession, error) {
	m.EndAllActive(ctx)
	time.Sleep(m.grace)

	info, raw, err := m.client.CreateConversation(ctx, CreateConversationRequest{
		ConversationName:      name,
		ConversationalContext: conversationalContext,
		PersonaID:             personaID,
	})
	if err != nil {
		var limitErr *ConcurrencyLimitError
		if errors.As(err, &limitErr) {
			slog.Warn("video create hit remote concurrency cap", "detail", limitErr.Detail)
			m.notify(FriendlyConcurrencyMessage)
		} else {
			m.notify("Could not start the video session. Please try again.")
		}
		return database.VideoSession{}, fmt.Errorf("error creating video conversation: %w", err)
	}

	m.mu.Lock()
	m.active[info.ConversationID] = struct{}{}
	m.current = info.ConversationID
	m.mu.Unlock()

	status := info.Status
	if status == "" {
		status = database.VideoPending
	}

	record := database.VideoSession{
		ID:               uuid.New(),
		ConversationID:   info.ConversationID,
		ConversationName: sql.NullString{String: name, Valid: name != ""},
		ConversationURL:  info.ConversationURL,
		Status:           status,
		SessionID:        sessionID,
		Raw:              []byte(raw),
	}
	if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error persisting video session record", "conversation_id", info.ConversationID, "error", err)
	}

	return record, nil
}

// EndSession ends the conversation remotely and always drops it from local
// tracking, whether or not the remote call succeeded; local tracking must not
// leak ids. With notify=false (cleanup paths) remote failures are logged and
// swallowed; the user-initiated path propagates them.
func (m *Manager) EndSession(ctx context.Context, conversationID string, notify bool) error {
	err := m.client.EndConversation(ctx, conversationID)

	m.mu.Lock()
	delete(m.active, conversationID)
	if m.current == conversationID {
		m.current = ""
	}
	m.mu.Unlock()

	if dbErr := database.UpdateVideoSessionStatus(ctx, m.db, conversationID, database.VideoEnded); dbErr != nil {
		slog.Error("error marking video session ended", "conversation_id", conversationID, "error", dbErr)
	}

	if err != nil {
		if !notify {
			slog.Warn("best-effort video teardown failed", "conversation_id", conversationID, "error", err)
			return nil
		}
		m.notify("Could not end the video session.")
		return fmt.Errorf("error ending video conversation %s: %w", conversationID, err)
	}
	return nil
}

// EndAllActive snapshots the active set and ends every id concurrently,
// waiting for the whole batch regardless of individual failures, then clears
// the set unconditionally.
func (m *Manager) EndAllActive(ctx context.Context) {
	ids := m.ActiveConversations()
	if len(ids) > 0 {
		queue := make(chan string, len(ids))
		for _, id := range ids {
			queue <- id
		}
		close(queue)

		completed := make(chan utils.CompletedTask[string], len(ids))
		utils.RunInPool(func(id string) (string, error) {
			return id, m.EndSession(ctx, id, false)
		}, queue, completed, endAllWorkers)

		for range completed {
		}
	}

	m.mu.Lock()
	m.active = make(map[string]struct{})
	m.current = ""
	m.mu.Unlock()
}

// GetStatus polls the remote status and mirrors it into the persisted record.
// Failures propagate without touching local state.
func (m *Manager) GetStatus(ctx context.Context, conversationID string) (string, error) {
	info, err := m.client.GetConversationStatus(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("error polling video conversation %s: %w", conversationID, err)
	}

	if dbErr := database.UpdateVideoSessionStatus(ctx, m.db, conversationID, info.Status); dbErr != nil {
		slog.Error("error mirroring video session status", "conversation_id", conversationID, "error", dbErr)
	}

	return info.Status, nil
}

// ListSessions returns the persisted video session records, newest first.
func (m *Manager) ListSessions(ctx context.Context) ([]database.VideoSession, error) {
	var sessions []database.VideoSession
	err := m.db.WithContext(ctx).Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

func (m *Manager) notify(message string) {
	if m.notifier != nil {
		m.notifier.Notify(message)
	}
}
