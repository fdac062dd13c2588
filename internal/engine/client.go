package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

const analyzeTimeout = 60 * time.Second

// WireTurn is one message as sent to the advisor model endpoint.
type WireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// VisualTurn carries a prior visual observation so the model keeps its memory
// of the user's appearance across turns.
type VisualTurn struct {
	Role          string `json:"role"`
	VisualContext string `json:"visualContext"`
}

type ChatRequest struct {
	Messages      []WireTurn   `json:"messages"`
	Temperature   float64      `json:"temperature"`
	Model         string       `json:"model"`
	Image         string       `json:"image,omitempty"`
	VisualContext string       `json:"visualContext,omitempty"`
	VisualHistory []VisualTurn `json:"visualHistory,omitempty"`
}

// AnalyzeResponse is the non-streaming first-turn reply: the model's styling
// response plus its textual description of what it saw.
type AnalyzeResponse struct {
	Response      string `json:"response"`
	VisualContext string `json:"visualContext,omitempty"`
	Error         string `json:"error,omitempty"`
}

// AdvisorClient is the engine's view of the remote model service.
type AdvisorClient interface {
	Analyze(ctx context.Context, req ChatRequest) (AnalyzeResponse, error)
	// Stream issues the follow-up call and returns the raw chunked body for
	// the caller to decode. The caller owns closing the reader.
	Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// RestyAdvisorClient talks to the hosted advisor model over HTTP. The analyze
// path is bounded by a 60 second request timeout; the streaming path is
// bounded only by the caller's context, since a healthy stream can outlive
// any fixed read deadline.
type RestyAdvisorClient struct {
	analyze *resty.Client
	stream  *resty.Client
}

func NewRestyAdvisorClient(baseURL, apiKey string) *RestyAdvisorClient {
	newClient := func() *resty.Client {
		c := resty.New().SetBaseURL(baseURL)
		if apiKey != "" {
			c.SetAuthToken(apiKey)
		}
		return c
	}

	return &RestyAdvisorClient{
		analyze: newClient().SetTimeout(analyzeTimeout),
		stream:  newClient(),
	}
}

func (c *RestyAdvisorClient) Analyze(ctx context.Context, req ChatRequest) (AnalyzeResponse, error) {
	var out AnalyzeResponse
	res, err := c.analyze.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post("/analyze")
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("advisor analyze call failed: %w", err)
	}
	if !res.IsSuccess() {
		return AnalyzeResponse{}, &RemoteCallError{Status: res.StatusCode(), Body: res.String()}
	}
	return out, nil
}

func (c *RestyAdvisorClient) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	res, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post("/chat")
	if err != nil {
		return nil, fmt.Errorf("advisor chat call failed: %w", err)
	}

	if !res.IsSuccess() {
		body, readErr := io.ReadAll(res.RawBody())
		res.RawBody().Close()
		if readErr != nil {
			body = nil
		}
		return nil, &RemoteCallError{Status: res.StatusCode(), Body: string(body)}
	}

	return res.RawBody(), nil
}
