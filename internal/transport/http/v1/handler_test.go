package v1

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/sqlengine"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/ingestion"
	"github.com/xiaot623/gogo/ragrouter/internal/safety"
	"github.com/xiaot623/gogo/ragrouter/internal/service"
	"github.com/xiaot623/gogo/ragrouter/tests/helpers"
)

func newTestServer(t *testing.T, client llm.LLMClient, cfg *config.Config) *echo.Echo {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	st := helpers.NewTestSQLiteStore(t)
	emb := embedding.NewMockEmbedder(16)
	idx := vectorindex.NewMemoryIndex(16)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	validator, err := safety.NewValidator(context.Background(), nil)
	require.NoError(t, err)
	docs, err := ingestion.NewService(st, emb, idx, ingestion.Options{MaxUploadBytes: cfg.MaxUploadBytes})
	require.NoError(t, err)
	t.Cleanup(docs.Release)

	svc := service.New(service.Deps{
		Store:     st,
		LLM:       client,
		Embedder:  emb,
		Index:     idx,
		SQLEngine: sqlengine.New(db, sqlengine.DialectSQLite),
		Validator: validator,
		Documents: docs,
		Config:    cfg,
	})

	e := echo.New()
	e.Validator = RequestValidator{}
	h := NewHandler(svc)
	h.RegisterRoutes(e.Group("/v1"))
	e.GET("/health", h.Health)
	return e
}

func do(e *echo.Echo, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postChat(e *echo.Echo, body string) *httptest.ResponseRecorder {
	return do(e, http.MethodPost, "/v1/chat", echo.MIMEApplicationJSON, []byte(body))
}

func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	return events
}

func TestChat_Streaming(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)

	rec := postChat(e, `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get(echo.HeaderContentType))
	_, err := uuid.Parse(rec.Header().Get(HeaderSessionID))
	assert.NoError(t, err)

	events := readEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "metadata", events[0]["type"])
	assert.Equal(t, "conversation", events[0]["metadata"].(map[string]any)["route"])
	assert.Equal(t, map[string]any{"type": "done", "content": ""}, events[len(events)-1])

	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, "token", ev["type"])
		text.WriteString(ev["content"].(string))
	}
	assert.Contains(t, text.String(), `"hello"`)
}

func TestChat_StreamingReusesSession(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)

	first := postChat(e, `{"message":"hello"}`)
	sessionID := first.Header().Get(HeaderSessionID)
	second := postChat(e, `{"message":"hello again","session_id":"`+sessionID+`"}`)
	assert.Equal(t, sessionID, second.Header().Get(HeaderSessionID))

	rec := do(e, http.MethodGet, "/v1/sessions/"+sessionID+"/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.MessageListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[3].Role)

	rec = do(e, http.MethodGet, "/v1/sessions/"+sessionID+"/messages?limit=1", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[0].Role)
}

func TestChat_NonStreaming(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)

	rec := postChat(e, `{"message":"hello","stream":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, domain.RoleAssistant, msg.Role)
	assert.Equal(t, domain.DestinationConversation, msg.RouteDecision)
	assert.Contains(t, msg.Content, "[MOCK]")
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, msg.SessionID, rec.Header().Get(HeaderSessionID))
}

func TestChat_NonStreamingFailedTurn(t *testing.T) {
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		if req.Operation == "classify" {
			return `{"destination":"conversation","reasoning":"chat"}`, nil
		}
		return "", errors.New("model overloaded")
	}}
	e := newTestServer(t, client, nil)

	rec := postChat(e, `{"message":"hello","stream":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, domain.TurnStatusFailed, msg.Metadata.Status)
	assert.Contains(t, msg.Metadata.Error, "model overloaded")
}

func TestChat_Validation(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{}`},
		{"bad mode", `{"message":"hi","mode":"sql_only"}`},
		{"too long", `{"message":"` + strings.Repeat("a", domain.MaxMessageLength+1) + `"}`},
		{"malformed", `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(e, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(domain.ErrorValidation), resp.Error)
		})
	}
}

func TestGetSessionMessages_NotFound(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)
	rec := do(e, http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/messages", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunEvents_NotFound(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)
	rec := do(e, http.MethodGet, "/v1/runs/run_missing/events", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func uploadBody(t *testing.T, field, filename string, content []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf.Bytes()
}

func TestDocuments_Lifecycle(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)

	ct, body := uploadBody(t, "file", "handbook.md", []byte("# Handbook\n\nOffice hours are 9 to 5."))
	rec := do(e, http.MethodPost, "/v1/documents/upload", ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up domain.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, domain.DocumentStatusReady, up.Status)
	assert.Equal(t, "Document processed: 1 chunks created", up.Message)

	rec = do(e, http.MethodGet, "/v1/documents", "", nil)
	var list domain.DocumentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "handbook.md", list.Documents[0].Filename)

	rec = do(e, http.MethodGet, "/v1/documents/"+up.DocumentID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodDelete, "/v1/documents/"+up.DocumentID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/v1/documents/"+up.DocumentID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodDelete, "/v1/documents/"+up.DocumentID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadDocument_Rejections(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxUploadBytes = 16
	e := newTestServer(t, llm.NewMockClient(), cfg)

	ct, body := uploadBody(t, "other", "notes.txt", []byte("hi"))
	rec := do(e, http.MethodPost, "/v1/documents/upload", ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ct, body = uploadBody(t, "file", "photo.png", []byte("png"))
	rec = do(e, http.MethodPost, "/v1/documents/upload", ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ct, body = uploadBody(t, "file", "notes.txt", []byte(strings.Repeat("x", 64)))
	rec = do(e, http.MethodPost, "/v1/documents/upload", ct, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, llm.NewMockClient(), nil)
	rec := do(e, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.0.0","service":"ragrouter"}`, rec.Body.String())
}
