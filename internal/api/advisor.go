package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"stylist-backend/internal/conversation"
	"stylist-backend/internal/engine"
	"stylist-backend/pkg/api"
)

// AdvisorService exposes the conversation store and the chat engine over
// REST. Message sends stream their reconciliation back as JSON lines.
type AdvisorService struct {
	store  *conversation.Store
	engine *engine.Engine
}

func NewAdvisorService(store *conversation.Store, eng *engine.Engine) *AdvisorService {
	return &AdvisorService{store: store, engine: eng}
}

func (s *AdvisorService) AddRoutes(r chi.Router) {
	r.Route("/advisor", func(r chi.Router) {
		r.Get("/sessions", RestHandler(s.ListSessions))
		r.Post("/sessions", RestHandler(s.CreateSession))
		r.Post("/sessions/{session_id}/rename", RestHandler(s.RenameSession))
		r.Delete("/sessions/{session_id}", RestHandler(s.DeleteSession))
		r.Get("/sessions/{session_id}/history", RestHandler(s.GetHistory))
		r.Post("/sessions/{session_id}/messages", RestStreamHandler(s.SendMessage))
		r.Post("/messages", RestStreamHandler(s.SendMessageNewSession))
	})
}

func (s *AdvisorService) ListSessions(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[api.ListSessionsQuery](r)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing sessions")
	}

	if query.Limit > 0 && len(sessions) > query.Limit {
		sessions = sessions[:query.Limit]
	}

	resp := make([]api.SessionMetadata, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, api.SessionMetadata{
			ID:        session.ID,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}
	return resp, nil
}

func (s *AdvisorService) CreateSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateSessionRequest](r)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.store.CreateSession(r.Context(), req.Title)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating session")
	}

	return api.CreateSessionResponse{SessionID: sessionID}, nil
}

func (s *AdvisorService) RenameSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}

	if err := s.store.RenameSession(r.Context(), sessionID, req.Title); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error renaming session")
	}
	return nil, nil
}

func (s *AdvisorService) DeleteSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteSession(r.Context(), sessionID); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting session")
	}
	return nil, nil
}

func (s *AdvisorService) GetHistory(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "session not found")
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session")
	}

	turns, err := s.store.ListTurns(r.Context(), sessionID)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving session history")
	}

	resp := make([]api.HistoryItem, 0, len(turns))
	for _, turn := range turns {
		item := api.HistoryItem{
			ID:        turn.ID,
			Role:      turn.Role,
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		}
		if turn.VisualContext.Valid {
			item.VisualContext = turn.VisualContext.String
		}
		resp = append(resp, item)
	}
	return resp, nil
}

func (s *AdvisorService) SendMessage(r *http.Request) (StreamResponse, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	return s.sendMessage(r, sessionID)
}

// SendMessageNewSession sends a turn with no session yet; the engine creates
// one lazily.
func (s *AdvisorService) SendMessageNewSession(r *http.Request) (StreamResponse, error) {
	return s.sendMessage(r, uuid.Nil)
}

func (s *AdvisorService) sendMessage(r *http.Request, sessionID uuid.UUID) (StreamResponse, error) {
	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}

	stream := s.engine.SendTurn(r.Context(), engine.TurnRequest{
		SessionID:   sessionID,
		Text:        req.Text,
		Image:       req.Image,
		Temperature: req.Temperature,
	})

	return func(yield func(any, error) bool) {
		stream(func(update engine.TurnUpdate, err error) bool {
			if err != nil {
				return yield(nil, mapEngineError(err))
			}
			return yield(update, nil)
		})
	}, nil
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyInput):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, engine.ErrBusy):
		return CodedError(http.StatusConflict, err)
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}
