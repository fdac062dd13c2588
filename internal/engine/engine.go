package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"stylist-backend/internal/database"
	"stylist-backend/internal/utils"

	"github.com/google/uuid"
)

// Fixed, non-technical fallback strings for the two canonical failure modes.
// Technical detail (status codes, raw bodies) is logged, never shown.
const (
	FallbackAnalysis = "Sorry, I couldn't analyze your look just now. Please try again."
	FallbackReply    = "Sorry, I encountered an error. Please try again."
)

// Store is the engine's view of conversation persistence, implemented by
// conversation.Store.
type Store interface {
	CreateSession(ctx context.Context, title string) (uuid.UUID, error)
	ListTurns(ctx context.Context, sessionID uuid.UUID) ([]database.ChatMessage, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, role, content, visualContext string) (uuid.UUID, error)
}

// Capturer produces an opportunistic snapshot of the user's camera feed, or
// "" when none is available.
type Capturer interface {
	Capture() string
}

// Notifier surfaces transient user-visible messages.
type Notifier interface {
	Notify(message string)
}

// Turn is one entry in the engine's optimistic in-memory transcript. Its ID
// is locally generated, distinct from any persisted id, so the mirror can be
// updated before persistence confirms.
type Turn struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	VisualContext string    `json:"visual_context,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type UpdateKind string

const (
	// UpdateUserTurn: the user turn was accepted and is visible.
	UpdateUserTurn UpdateKind = "user_turn"
	// UpdateAssistantTurn: the assistant placeholder is visible, before any
	// content has streamed.
	UpdateAssistantTurn UpdateKind = "assistant_turn"
	// UpdateAssistantDelta: the placeholder's cumulative content changed.
	UpdateAssistantDelta UpdateKind = "assistant_delta"
	// UpdateAssistantDone: the assistant turn is complete and (if non-empty)
	// persisted.
	UpdateAssistantDone UpdateKind = "assistant_done"
	// UpdateErrorTurn: a fixed fallback turn replaced or followed a failed
	// exchange.
	UpdateErrorTurn UpdateKind = "error_turn"
)

type TurnUpdate struct {
	Kind UpdateKind `json:"kind"`
	Turn Turn       `json:"turn"`
}

type TurnRequest struct {
	// SessionID may be uuid.Nil, in which case a session is created lazily.
	SessionID   uuid.UUID
	Text        string
	Image       string
	Temperature float64
}

// Stream lazily drives one send-turn operation: the algorithm runs as the
// sequence is consumed, one state transition per yielded update.
type Stream func(yield func(TurnUpdate, error) bool)

// Engine orchestrates a chat turn: opportunistic capture, optimistic insert,
// persistence, the remote model call, and incremental reconciliation of the
// streamed reply.
type Engine struct {
	store    Store
	client   AdvisorClient
	capturer Capturer
	notifier Notifier
	model    string

	inFlight *utils.FlightMap

	mu      sync.Mutex
	mirrors map[uuid.UUID][]Turn
}

func NewEngine(store Store, client AdvisorClient, capturer Capturer, notifier Notifier, model string) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		capturer: capturer,
		notifier: notifier,
		model:    model,
		inFlight: utils.NewFlightMap(),
		mirrors:  make(map[uuid.UUID][]Turn),
	}
}

// Snapshot returns a copy of the session's optimistic transcript.
func (e *Engine) Snapshot(sessionID uuid.UUID) []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Turn{}, e.mirrors[sessionID]...)
}

// SendTurn sends one user turn and streams back the reconciliation of the
// assistant's reply. Sends are single-flight per session: an overlapping call
// for the same session yields ErrBusy instead of interleaving.
func (e *Engine) SendTurn(ctx context.Context, req TurnRequest) Stream {
	return func(yield func(TurnUpdate, error) bool) {
		text := strings.TrimSpace(req.Text)
		if text == "" {
			yield(TurnUpdate{}, ErrEmptyInput)
			return
		}

		// A capture miss is not an error; the turn proceeds text-only.
		image := req.Image
		if image == "" && e.capturer != nil {
			image = e.capturer.Capture()
		}

		sessionID := req.SessionID
		if sessionID == uuid.Nil {
			created, err := e.store.CreateSession(ctx, "")
			if err != nil {
				slog.Error("error creating session for turn", "error", err)
				e.notify(FallbackReply)
				yield(TurnUpdate{}, &SessionCreationError{Err: err})
				return
			}
			sessionID = created
		}

		if !e.inFlight.TryAcquire(sessionID.String()) {
			yield(TurnUpdate{}, ErrBusy)
			return
		}
		defer e.inFlight.Release(sessionID.String())

		// Optimistic insert before any network I/O.
		userTurn := Turn{
			ID:            uuid.New(),
			SessionID:     sessionID,
			Role:          database.RoleUser,
			Content:       text,
			VisualContext: image,
			CreatedAt:     time.Now().UTC(),
		}
		e.appendMirror(userTurn)
		if !yield(TurnUpdate{Kind: UpdateUserTurn, Turn: userTurn}, nil) {
			return
		}

		// Phase two of the write. On failure the optimistic entry stays
		// visible, but we do not call the model with unpersisted history.
		if _, err := e.store.AppendTurn(ctx, sessionID, database.RoleUser, text, image); err != nil {
			e.fail(yield, sessionID, uuid.Nil, false, &PersistenceError{Op: "append user turn", Err: err})
			return
		}

		// Re-read the authoritative history rather than trusting the mirror,
		// in case the write path diverged from what we hold in memory.
		history, err := e.store.ListTurns(ctx, sessionID)
		if err != nil {
			e.fail(yield, sessionID, uuid.Nil, false, &PersistenceError{Op: "load history", Err: err})
			return
		}

		wireReq := buildRequest(history, req.Temperature, e.model, image)

		if !hasAssistantTurn(history) {
			e.analyzeTurn(ctx, yield, sessionID, wireReq)
		} else {
			e.streamTurn(ctx, yield, sessionID, wireReq)
		}
	}
}

// analyzeTurn handles the first exchange of a session: a single JSON response
// carrying the reply and the model's visual observations, persisted together.
func (e *Engine) analyzeTurn(ctx context.Context, yield func(TurnUpdate, error) bool, sessionID uuid.UUID, wireReq ChatRequest) {
	placeholder := e.insertPlaceholder(sessionID)
	if !yield(TurnUpdate{Kind: UpdateAssistantTurn, Turn: placeholder}, nil) {
		e.removeMirrorTurn(sessionID, placeholder.ID)
		return
	}

	resp, err := e.client.Analyze(ctx, wireReq)
	if err != nil {
		e.fail(yield, sessionID, placeholder.ID, true, err)
		return
	}
	if resp.Error != "" {
		e.fail(yield, sessionID, placeholder.ID, true, &StreamError{Message: resp.Error})
		return
	}
	if resp.Response == "" {
		// Nothing to show or persist; drop the placeholder so it is not left
		// visibly blank.
		e.removeMirrorTurn(sessionID, placeholder.ID)
		yield(TurnUpdate{Kind: UpdateAssistantDone, Turn: Turn{ID: placeholder.ID, SessionID: sessionID, Role: database.RoleAssistant}}, nil)
		return
	}

	if _, err := e.store.AppendTurn(ctx, sessionID, database.RoleAssistant, resp.Response, resp.VisualContext); err != nil {
		e.fail(yield, sessionID, placeholder.ID, true, &PersistenceError{Op: "append assistant turn", Err: err})
		return
	}

	final := e.setMirrorContent(sessionID, placeholder.ID, resp.Response)
	yield(TurnUpdate{Kind: UpdateAssistantDone, Turn: final}, nil)
}

// streamTurn handles follow-up exchanges: the reply arrives as data: chunks
// which are applied to the placeholder strictly in receipt order.
func (e *Engine) streamTurn(ctx context.Context, yield func(TurnUpdate, error) bool, sessionID uuid.UUID, wireReq ChatRequest) {
	placeholder := e.insertPlaceholder(sessionID)
	if !yield(TurnUpdate{Kind: UpdateAssistantTurn, Turn: placeholder}, nil) {
		e.removeMirrorTurn(sessionID, placeholder.ID)
		return
	}

	body, err := e.client.Stream(ctx, wireReq)
	if err != nil {
		e.fail(yield, sessionID, placeholder.ID, false, err)
		return
	}
	defer body.Close()

	var buf strings.Builder
	fragments := NewFragmentScanner(body)
	for fragments.Scan() {
		fragment := fragments.Fragment()
		if fragment.Error != "" {
			e.fail(yield, sessionID, placeholder.ID, false, &StreamError{Message: fragment.Error})
			return
		}
		if fragment.Content == "" {
			continue
		}

		buf.WriteString(fragment.Content)
		// Locate the placeholder by id, never by position; the mirror may
		// have grown since it was inserted.
		updated := e.setMirrorContent(sessionID, placeholder.ID, buf.String())
		if !yield(TurnUpdate{Kind: UpdateAssistantDelta, Turn: updated}, nil) {
			return
		}
	}
	if err := fragments.Err(); err != nil {
		e.fail(yield, sessionID, placeholder.ID, false, &StreamError{Message: err.Error()})
		return
	}

	content := buf.String()
	if content == "" {
		// An empty reply at stream end is not an error, but blank assistant
		// turns are neither persisted nor left in the transcript.
		e.removeMirrorTurn(sessionID, placeholder.ID)
		yield(TurnUpdate{Kind: UpdateAssistantDone, Turn: Turn{ID: placeholder.ID, SessionID: sessionID, Role: database.RoleAssistant}}, nil)
		return
	}

	if _, err := e.store.AppendTurn(ctx, sessionID, database.RoleAssistant, content, ""); err != nil {
		e.fail(yield, sessionID, placeholder.ID, false, &PersistenceError{Op: "append assistant turn", Err: err})
		return
	}

	final := e.setMirrorContent(sessionID, placeholder.ID, content)
	yield(TurnUpdate{Kind: UpdateAssistantDone, Turn: final}, nil)
}

// fail resolves the failing exchange to exactly one user-visible fallback
// turn plus one notification. A still-empty placeholder is replaced in place;
// otherwise a fresh error turn is appended.
func (e *Engine) fail(yield func(TurnUpdate, error) bool, sessionID, placeholderID uuid.UUID, firstTurn bool, cause error) {
	fallback := FallbackReply
	if firstTurn {
		fallback = FallbackAnalysis
	}

	slog.Error("turn failed", "session_id", sessionID, "error", cause)
	e.notify(fallback)

	var errorTurn Turn
	if placeholderID != uuid.Nil {
		errorTurn = e.setMirrorContent(sessionID, placeholderID, fallback)
	}
	if errorTurn.ID == uuid.Nil {
		errorTurn = Turn{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      database.RoleAssistant,
			Content:   fallback,
			CreatedAt: time.Now().UTC(),
		}
		e.appendMirror(errorTurn)
	}

	if !yield(TurnUpdate{Kind: UpdateErrorTurn, Turn: errorTurn}, nil) {
		return
	}
	yield(TurnUpdate{}, cause)
}

func (e *Engine) insertPlaceholder(sessionID uuid.UUID) Turn {
	placeholder := Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      database.RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
	e.appendMirror(placeholder)
	return placeholder
}

func (e *Engine) appendMirror(turn Turn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mirrors[turn.SessionID] = append(e.mirrors[turn.SessionID], turn)
}

func (e *Engine) setMirrorContent(sessionID, turnID uuid.UUID, content string) Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	turns := e.mirrors[sessionID]
	for i := range turns {
		if turns[i].ID == turnID {
			turns[i].Content = content
			return turns[i]
		}
	}
	return Turn{}
}

func (e *Engine) removeMirrorTurn(sessionID, turnID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	turns := e.mirrors[sessionID]
	for i := range turns {
		if turns[i].ID == turnID {
			e.mirrors[sessionID] = append(turns[:i], turns[i+1:]...)
			return
		}
	}
}

func (e *Engine) notify(message string) {
	if e.notifier != nil {
		e.notifier.Notify(message)
	}
}

func hasAssistantTurn(history []database.ChatMessage) bool {
	for _, turn := range history {
		if turn.Role == database.RoleAssistant {
			return true
		}
	}
	return false
}

// buildRequest assembles the wire request from the reloaded history: the full
// message list, the last non-null visual context (oldest to newest,
// last-write-wins), and every prior visual observation.
func buildRequest(history []database.ChatMessage, temperature float64, model, image string) ChatRequest {
	messages := make([]WireTurn, 0, len(history))
	var visualHistory []VisualTurn
	visualContext := ""

	for _, turn := range history {
		messages = append(messages, WireTurn{Role: turn.Role, Content: turn.Content})
		if turn.VisualContext.Valid && turn.VisualContext.String != "" {
			visualContext = turn.VisualContext.String
			visualHistory = append(visualHistory, VisualTurn{Role: turn.Role, VisualContext: turn.VisualContext.String})
		}
	}

	return ChatRequest{
		Messages:      messages,
		Temperature:   temperature,
		Model:         model,
		Image:         image,
		VisualContext: visualContext,
		VisualHistory: visualHistory,
	}
}
