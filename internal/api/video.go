package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stylist-backend/internal/video"
	"stylist-backend/pkg/api"
)

type VideoService struct {
	manager *video.Manager
}

func NewVideoService(manager *video.Manager) *VideoService {
	return &VideoService{manager: manager}
}

func (s *VideoService) AddRoutes(r chi.Router) {
	r.Route("/video", func(r chi.Router) {
		r.Get("/sessions", RestHandler(s.ListSessions))
		r.Post("/sessions", RestHandler(s.CreateSession))
		r.Get("/sessions/{conversation_id}/status", RestHandler(s.GetStatus))
		r.Post("/sessions/{conversation_id}/end", RestHandler(s.EndSession))
	})
}

func (s *VideoService) ListSessions(r *http.Request) (any, error) {
	sessions, err := s.manager.ListSessions(r.Context())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing video sessions")
	}

	resp := make([]api.VideoSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, api.VideoSessionResponse{
			ID:              session.ID,
			ConversationID:  session.ConversationID,
			ConversationURL: session.ConversationURL,
			Status:          session.Status,
			CreatedAt:       session.CreatedAt,
		})
	}
	return resp, nil
}

func (s *VideoService) CreateSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateVideoSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.PersonaID == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "persona_id is required")
	}

	record, err := s.manager.CreateSession(r.Context(), req.ConversationName, req.ConversationalContext, req.PersonaID, req.SessionID)
	if err != nil {
		return nil, mapVideoError(err)
	}

	return api.VideoSessionResponse{
		ID:              record.ID,
		ConversationID:  record.ConversationID,
		ConversationURL: record.ConversationURL,
		Status:          record.Status,
		CreatedAt:       record.CreatedAt,
	}, nil
}

func (s *VideoService) GetStatus(r *http.Request) (any, error) {
	conversationID := chi.URLParam(r, "conversation_id")
	if conversationID == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {conversation_id} url parameter")
	}

	status, err := s.manager.GetStatus(r.Context(), conversationID)
	if err != nil {
		return nil, mapVideoError(err)
	}

	return api.VideoStatusResponse{ConversationID: conversationID, Status: status}, nil
}

func (s *VideoService) EndSession(r *http.Request) (any, error) {
	conversationID := chi.URLParam(r, "conversation_id")
	if conversationID == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {conversation_id} url parameter")
	}

	if err := s.manager.EndSession(r.Context(), conversationID, true); err != nil {
		return nil, mapVideoError(err)
	}
	return nil, nil
}

func mapVideoError(err error) error {
	var limitErr *video.ConcurrencyLimitError
	var timeoutErr *video.TimeoutError
	var malformedErr *video.MalformedResponseError

	switch {
	case errors.As(err, &limitErr):
		return CodedErrorf(http.StatusTooManyRequests, "%s", video.FriendlyConcurrencyMessage)
	case errors.As(err, &timeoutErr):
		return CodedErrorf(http.StatusGatewayTimeout, "video service timed out")
	case errors.As(err, &malformedErr):
		return CodedErrorf(http.StatusBadGateway, "video service returned an unusable response")
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}
