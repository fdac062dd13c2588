package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stylist-backend/internal/api"
	"stylist-backend/internal/conversation"
	"stylist-backend/internal/database"
	"stylist-backend/internal/engine"
	"stylist-backend/internal/video"
	restapi "stylist-backend/pkg/api"
)

// fakeAdvisorBackend stands in for the hosted model: /analyze answers the
// first-turn JSON, /chat streams data: lines.
func fakeAdvisorBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(engine.AnalyzeResponse{
				Response:      "Great color on you.",
				VisualContext: "red sweater",
			})
		case "/chat":
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"content\": \"Try \"}\n")
			fmt.Fprint(w, "data: {\"content\": \"loafers.\"}\n")
		default:
			http.NotFound(w, r)
		}
	}))
}

type testEnv struct {
	server *httptest.Server
	store  *conversation.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	backend := fakeAdvisorBackend(t)
	t.Cleanup(backend.Close)

	store := conversation.NewStore(db)
	eng := engine.NewEngine(store, engine.NewRestyAdvisorClient(backend.URL, ""), nil, nil, "style-advisor-2")

	router := chi.NewRouter()
	api.NewAdvisorService(store, eng).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

// streamLine is one JSON line of a streamed send-message response.
type streamLine struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  int             `json:"code"`
}

func readStream(t *testing.T, res *http.Response) []streamLine {
	t.Helper()
	defer res.Body.Close()
	var lines []streamLine
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line streamLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func updatesOf(t *testing.T, lines []streamLine) []engine.TurnUpdate {
	t.Helper()
	var updates []engine.TurnUpdate
	for _, line := range lines {
		require.Empty(t, line.Error)
		var update engine.TurnUpdate
		require.NoError(t, json.Unmarshal(line.Data, &update))
		updates = append(updates, update)
	}
	return updates
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	res := doJSON(t, http.MethodPost, env.server.URL+"/advisor/sessions", restapi.CreateSessionRequest{Title: "Monday outfit"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	created := decodeBody[restapi.CreateSessionResponse](t, res)
	require.NotEqual(t, uuid.Nil, created.SessionID)

	res = doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	sessions := decodeBody[[]restapi.SessionMetadata](t, res)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Monday outfit", sessions[0].Title)

	res = doJSON(t, http.MethodPost, env.server.URL+"/advisor/sessions/"+created.SessionID.String()+"/rename", restapi.RenameSessionRequest{Title: "Tuesday outfit"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions", nil)
	sessions = decodeBody[[]restapi.SessionMetadata](t, res)
	assert.Equal(t, "Tuesday outfit", sessions[0].Title)

	res = doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions/"+created.SessionID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	history := decodeBody[[]restapi.HistoryItem](t, res)
	assert.Empty(t, history)

	res = doJSON(t, http.MethodDelete, env.server.URL+"/advisor/sessions/"+created.SessionID.String(), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions/"+created.SessionID.String()+"/history", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestListSessionsHonorsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.store.CreateSession(ctx, "")
		require.NoError(t, err)
	}

	res := doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions?limit=2", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	sessions := decodeBody[[]restapi.SessionMetadata](t, res)
	assert.Len(t, sessions, 2)
}

func TestSendMessageFullExchange(t *testing.T) {
	env := newTestEnv(t)

	// First turn on a brand new session exercises the lazy-create path and
	// the non-streaming analyze reply.
	res := doJSON(t, http.MethodPost, env.server.URL+"/advisor/messages", restapi.SendMessageRequest{Text: "rate my sweater"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	updates := updatesOf(t, readStream(t, res))
	require.NotEmpty(t, updates)
	assert.Equal(t, engine.UpdateUserTurn, updates[0].Kind)
	assert.Equal(t, engine.UpdateAssistantDone, updates[len(updates)-1].Kind)
	assert.Equal(t, "Great color on you.", updates[len(updates)-1].Turn.Content)

	sessionID := updates[0].Turn.SessionID
	require.NotEqual(t, uuid.Nil, sessionID)

	// The follow-up goes down the streaming path with deltas in between.
	res = doJSON(t, http.MethodPost, env.server.URL+"/advisor/sessions/"+sessionID.String()+"/messages", restapi.SendMessageRequest{Text: "and shoes?"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	updates = updatesOf(t, readStream(t, res))

	var deltas int
	for _, update := range updates {
		if update.Kind == engine.UpdateAssistantDelta {
			deltas++
		}
	}
	assert.Equal(t, 2, deltas)
	assert.Equal(t, "Try loafers.", updates[len(updates)-1].Turn.Content)

	res = doJSON(t, http.MethodGet, env.server.URL+"/advisor/sessions/"+sessionID.String()+"/history", nil)
	history := decodeBody[[]restapi.HistoryItem](t, res)
	require.Len(t, history, 4)
	assert.Equal(t, database.RoleUser, history[0].Role)
	assert.Equal(t, "red sweater", history[1].VisualContext)
	assert.Equal(t, "Try loafers.", history[3].Content)
}

func TestSendMessageEmptyTextRejected(t *testing.T) {
	env := newTestEnv(t)

	res := doJSON(t, http.MethodPost, env.server.URL+"/advisor/messages", restapi.SendMessageRequest{Text: "   "})
	require.Equal(t, http.StatusOK, res.StatusCode)
	lines := readStream(t, res)
	require.Len(t, lines, 1)
	assert.Equal(t, http.StatusBadRequest, lines[0].Code)
	assert.NotEmpty(t, lines[0].Error)

	// Nothing was written.
	sessions, err := env.store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

type scriptedVideoClient struct {
	createErr error
}

func (c *scriptedVideoClient) CreateConversation(ctx context.Context, req video.CreateConversationRequest) (video.ConversationInfo, json.RawMessage, error) {
	if c.createErr != nil {
		return video.ConversationInfo{}, nil, c.createErr
	}
	info := video.ConversationInfo{
		ConversationID:  "conv-1",
		ConversationURL: "https://avatar.example/conv-1",
		Status:          "active",
	}
	raw, _ := json.Marshal(info)
	return info, raw, nil
}

func (c *scriptedVideoClient) GetConversationStatus(ctx context.Context, conversationID string) (video.ConversationInfo, error) {
	return video.ConversationInfo{ConversationID: conversationID, Status: "active"}, nil
}

func (c *scriptedVideoClient) EndConversation(ctx context.Context, conversationID string) error {
	return nil
}

func newVideoServer(t *testing.T, client video.Client) *httptest.Server {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	router := chi.NewRouter()
	api.NewVideoService(video.NewManager(db, client, nil, video.WithGrace(0))).AddRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestVideoSessionEndpoints(t *testing.T) {
	server := newVideoServer(t, &scriptedVideoClient{})

	res := doJSON(t, http.MethodPost, server.URL+"/video/sessions", restapi.CreateVideoSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, http.MethodPost, server.URL+"/video/sessions", restapi.CreateVideoSessionRequest{PersonaID: "persona-1"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	created := decodeBody[restapi.VideoSessionResponse](t, res)
	assert.Equal(t, "conv-1", created.ConversationID)
	assert.Equal(t, "https://avatar.example/conv-1", created.ConversationURL)

	res = doJSON(t, http.MethodGet, server.URL+"/video/sessions/conv-1/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	status := decodeBody[restapi.VideoStatusResponse](t, res)
	assert.Equal(t, "active", status.Status)

	res = doJSON(t, http.MethodPost, server.URL+"/video/sessions/conv-1/end", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, http.MethodGet, server.URL+"/video/sessions", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	sessions := decodeBody[[]restapi.VideoSessionResponse](t, res)
	require.Len(t, sessions, 1)
	assert.Equal(t, database.VideoEnded, sessions[0].Status)
}

func TestVideoCreateConcurrencyLimitMapsTo429(t *testing.T) {
	server := newVideoServer(t, &scriptedVideoClient{
		createErr: &video.ConcurrencyLimitError{Detail: "maximum number of active conversations"},
	})

	res := doJSON(t, http.MethodPost, server.URL+"/video/sessions", restapi.CreateVideoSessionRequest{PersonaID: "persona-1"})
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), video.FriendlyConcurrencyMessage)
}
