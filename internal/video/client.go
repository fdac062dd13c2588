package video

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 60 * time.Second

// Client is the manager's view of the remote avatar service.
type Client interface {
	CreateConversation(ctx context.Context, req CreateConversationRequest) (ConversationInfo, json.RawMessage, error)
	GetConversationStatus(ctx context.Context, conversationID string) (ConversationInfo, error)
	EndConversation(ctx context.Context, conversationID string) error
}

type CreateConversationRequest struct {
	ConversationName      string `json:"conversation_name"`
	ConversationalContext string `json:"conversational_context"`
	PersonaID             string `json:"persona_id"`
	CallbackURL           string `json:"callback_url,omitempty"`
}

type ConversationInfo struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

// actionRequest is the generic dispatch envelope the service accepts on its
// single endpoint.
type actionRequest struct {
	Action                string `json:"action"`
	ConversationID        string `json:"conversation_id,omitempty"`
	ConversationName      string `json:"conversation_name,omitempty"`
	ConversationalContext string `json:"conversational_context,omitempty"`
	PersonaID             string `json:"persona_id,omitempty"`
	CallbackURL           string `json:"callback_url,omitempty"`
}

// RestyClient dispatches create/status/end actions to the avatar service with
// a 60 second deadline per call.
type RestyClient struct {
	http *resty.Client
}

func NewRestyClient(baseURL, apiKey string) *RestyClient {
	c := resty.New().SetBaseURL(baseURL).SetTimeout(requestTimeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &RestyClient{http: c}
}

func (c *RestyClient) dispatch(ctx context.Context, op string, req actionRequest, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(out).
		Post("/")
	if err != nil {
		if isTimeout(err) {
			return &TimeoutError{Op: op}
		}
		return err
	}

	if !res.IsSuccess() {
		body := res.String()
		if isConcurrencyLimit(body) {
			return &ConcurrencyLimitError{Detail: body}
		}
		return &RemoteError{Status: res.StatusCode(), Body: body}
	}

	return nil
}

func (c *RestyClient) CreateConversation(ctx context.Context, req CreateConversationRequest) (ConversationInfo, json.RawMessage, error) {
	var raw json.RawMessage
	err := c.dispatch(ctx, "create_conversation", actionRequest{
		Action:                "create_conversation",
		ConversationName:      req.ConversationName,
		ConversationalContext: req.ConversationalContext,
		PersonaID:             req.PersonaID,
		CallbackURL:           req.CallbackURL,
	}, &raw)
	if err != nil {
		return ConversationInfo{}, nil, err
	}

	var info ConversationInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ConversationInfo{}, nil, &MalformedResponseError{Missing: "valid conversation payload"}
	}

	// A success status with no id or no joinable URL is still unusable.
	if info.ConversationID == "" {
		return ConversationInfo{}, nil, &MalformedResponseError{Missing: "conversation_id"}
	}
	if info.ConversationURL == "" {
		return ConversationInfo{}, nil, &MalformedResponseError{Missing: "conversation_url"}
	}

	return info, raw, nil
}

func (c *RestyClient) GetConversationStatus(ctx context.Context, conversationID string) (ConversationInfo, error) {
	var info ConversationInfo
	err := c.dispatch(ctx, "get_conversation_status", actionRequest{
		Action:         "get_conversation_status",
		ConversationID: conversationID,
	}, &info)
	if err != nil {
		return ConversationInfo{}, err
	}
	if info.Status == "" {
		return ConversationInfo{}, &MalformedResponseError{Missing: "status"}
	}
	return info, nil
}

func (c *RestyClient) EndConversation(ctx context.Context, conversationID string) error {
	var discard json.RawMessage
	return c.dispatch(ctx, "end_conversation", actionRequest{
		Action:         "end_conversation",
		ConversationID: conversationID,
	}, &discard)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// isConcurrencyLimit recognizes the service's concurrent-session cap message
// so it can be reported with a friendlier hint than a generic failure.
func isConcurrencyLimit(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "concurrent") || strings.Contains(lower, "maximum number of active")
}
