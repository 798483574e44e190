package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/llm"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/sqlengine"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	store "github.com/xiaot623/gogo/ragrouter/internal/repository"
	"github.com/xiaot623/gogo/ragrouter/internal/safety"
	"github.com/xiaot623/gogo/ragrouter/tests/helpers"
)

const londonSQL = "SELECT COUNT(*) FROM customers WHERE city = 'London'"

type recorder struct {
	events []domain.StreamEvent
	failAt int
}

func (r *recorder) emit(e domain.StreamEvent) error {
	if r.failAt > 0 && len(r.events)+1 >= r.failAt {
		return errors.New("client disconnected")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) tokens() string {
	var b strings.Builder
	for _, e := range r.events {
		if e.Type == domain.StreamEventToken {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

// assertClosed checks that exactly one terminal event was delivered, last.
func (r *recorder) assertClosed(t *testing.T, want domain.StreamEventType) {
	t.Helper()
	require.NotEmpty(t, r.events)
	terminals := 0
	for _, e := range r.events {
		if e.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, want, r.events[len(r.events)-1].Type)
}

// scriptedLLM answers by operation so each pipeline step can be steered.
func scriptedLLM(route string, answers map[string]string, errs map[string]error) *llm.MockClient {
	return &llm.MockClient{ChunkSize: 5, Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		if err := errs[req.Operation]; err != nil {
			return "", err
		}
		if req.Operation == "classify" {
			b, _ := json.Marshal(map[string]string{"destination": route, "reasoning": "because " + route})
			return string(b), nil
		}
		return answers[req.Operation], nil
	}}
}

type fixture struct {
	svc   *Service
	store *store.SQLiteStore
}

func newFixture(t *testing.T, client llm.LLMClient, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE customers (customer_id TEXT PRIMARY KEY, company_name TEXT, city TEXT)`,
		`INSERT INTO customers VALUES ('AROUT', 'Around the Horn', 'London'), ('BSBEV', 'B''s Beverages', 'London'), ('ALFKI', 'Alfreds Futterkiste', 'Berlin')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	validator, err := safety.NewValidator(context.Background(), nil)
	require.NoError(t, err)

	var backing store.Store = st
	if wrap != nil {
		backing = wrap(st)
	}
	svc := New(Deps{
		Store:     backing,
		LLM:       client,
		Embedder:  embedding.NewMockEmbedder(16),
		Index:     vectorindex.NewMemoryIndex(16),
		SQLEngine: sqlengine.New(db, sqlengine.DialectSQLite),
		Validator: validator,
		Config:    config.Defaults(),
	})
	return &fixture{svc: svc, store: st}
}

type faultyStore struct {
	store.Store
	failRole    domain.Role
	failHistory bool
}

func (f *faultyStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if f.failHistory {
		return nil, errors.New("database is locked")
	}
	return f.Store.GetMessages(ctx, sessionID, limit)
}

func (f *faultyStore) CreateMessage(ctx context.Context, m *domain.Message) error {
	if m.Role == f.failRole {
		return errors.New("disk full")
	}
	return f.Store.CreateMessage(ctx, m)
}

func TestProcessMessage_StructuredQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scriptedLLM("structured_query", map[string]string{"generate_sql": "```sql\n" + londonSQL + "\n```"}, nil), nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "How many customers in London?"}, rec.emit)
	require.NoError(t, err)
	require.NotNil(t, msg)

	rec.assertClosed(t, domain.StreamEventDone)
	require.Len(t, rec.events, 3)
	assert.Equal(t, domain.StreamEventMetadata, rec.events[0].Type)
	assert.Equal(t, domain.DestinationStructuredQuery, rec.events[0].Metadata.Route)
	want := "Executed Query: " + londonSQL + "\n\nResult:\n[(2,)]"
	assert.Equal(t, want, rec.events[1].Content)

	assert.Equal(t, want, msg.Content)
	assert.Equal(t, domain.DestinationStructuredQuery, msg.RouteDecision)
	assert.Equal(t, domain.StructuredMetadata(londonSQL), *msg.Metadata)

	stored, err := f.store.GetMessages(ctx, msg.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, "How many customers in London?", stored[0].Content)
	assert.Equal(t, msg.MessageID, stored[1].MessageID)
	assert.Equal(t, msg.CreatedAt.Unix(), stored[1].CreatedAt.Unix())
}

func TestProcessMessage_Conversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scriptedLLM("conversation", map[string]string{"converse": "Hello! How can I help you today?"}, nil), nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, rec.emit)
	require.NoError(t, err)

	rec.assertClosed(t, domain.StreamEventDone)
	assert.Equal(t, domain.StreamEventMetadata, rec.events[0].Type)
	for _, e := range rec.events[1 : len(rec.events)-1] {
		assert.Equal(t, domain.StreamEventToken, e.Type)
	}
	assert.Greater(t, len(rec.events), 3)
	assert.Equal(t, "Hello! How can I help you today?", rec.tokens())
	assert.Equal(t, rec.tokens(), msg.Content)
	assert.Equal(t, domain.ConversationMetadata(), *msg.Metadata)
	assert.Equal(t, domain.DestinationConversation, msg.RouteDecision)
}

func TestProcessMessage_ForcedModeSkipsMetadata(t *testing.T) {
	client := scriptedLLM("conversation", map[string]string{"answer_documents": "I could not find that."}, nil)
	f := newFixture(t, client, nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(context.Background(), domain.ChatRequest{Message: "what is our refund policy?", Mode: domain.ModeDocumentQA}, rec.emit)
	require.NoError(t, err)

	rec.assertClosed(t, domain.StreamEventDone)
	for _, e := range rec.events {
		assert.NotEqual(t, domain.StreamEventMetadata, e.Type)
	}
	assert.Equal(t, domain.DestinationDocumentQA, msg.RouteDecision)
	assert.Equal(t, domain.RetrievalMetadata(), *msg.Metadata)
	assert.Equal(t, "I could not find that.", msg.Content)
}

func TestProcessMessage_SessionResolution(t *testing.T) {
	ctx := context.Background()
	var lastHistory []llm.ChatMessage
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		if req.Operation == "classify" {
			return `{"destination":"conversation","reasoning":"chat"}`, nil
		}
		lastHistory = req.Messages[1 : len(req.Messages)-1]
		return "ok", nil
	}}
	f := newFixture(t, client, nil)

	unknown := uuid.NewString()
	for _, id := range []string{"", "not-a-uuid", unknown} {
		msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{SessionID: id, Message: "hi"}, (&recorder{}).emit)
		require.NoError(t, err, id)
		assert.NotEqual(t, id, msg.SessionID)
		_, parseErr := uuid.Parse(msg.SessionID)
		assert.NoError(t, parseErr)
		assert.Empty(t, lastHistory)
	}

	first, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "my name is Ada"}, (&recorder{}).emit)
	require.NoError(t, err)
	second, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{SessionID: first.SessionID, Message: "what is my name?"}, (&recorder{}).emit)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, lastHistory, 2)
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleUser, Content: "my name is Ada"}, lastHistory[0])
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleAssistant, Content: "ok"}, lastHistory[1])

	history, err := f.svc.GetMessages(ctx, first.SessionID, 0)
	require.NoError(t, err)
	require.Equal(t, 4, history.Total)
	for i, m := range history.Messages {
		wantRole := domain.RoleUser
		if i%2 == 1 {
			wantRole = domain.RoleAssistant
		}
		assert.Equal(t, wantRole, m.Role)
	}
}

func TestProcessMessage_HistoryWindow(t *testing.T) {
	ctx := context.Background()
	var lastHistory []llm.ChatMessage
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		lastHistory = req.Messages[1 : len(req.Messages)-1]
		return "ok", nil
	}}
	f := newFixture(t, client, nil)
	f.svc.config.HistoryWindow = 3

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "m0", Mode: domain.ModeDocumentQA}, (&recorder{}).emit)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{SessionID: msg.SessionID, Message: "m" + string(rune('0'+i)), Mode: domain.ModeDocumentQA}, (&recorder{}).emit)
		require.NoError(t, err)
	}

	require.Len(t, lastHistory, 3)
	assert.Equal(t, "ok", lastHistory[0].Content)
	assert.Equal(t, "m2", lastHistory[1].Content)
	assert.Equal(t, "ok", lastHistory[2].Content)
}

func TestProcessMessage_RouterFailureFallsBack(t *testing.T) {
	client := scriptedLLM("", map[string]string{"converse": "Hi."}, map[string]error{"classify": errors.New("rate limited")})
	f := newFixture(t, client, nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(context.Background(), domain.ChatRequest{Message: "hello"}, rec.emit)
	require.NoError(t, err)

	rec.assertClosed(t, domain.StreamEventDone)
	require.Equal(t, domain.StreamEventMetadata, rec.events[0].Type)
	assert.Equal(t, domain.DestinationConversation, rec.events[0].Metadata.Route)
	assert.True(t, strings.HasPrefix(rec.events[0].Metadata.Reasoning, "Router error: "))
	assert.Equal(t, domain.DestinationConversation, msg.RouteDecision)
	assert.Equal(t, "Hi.", msg.Content)
}

func TestProcessMessage_SafetyRejection(t *testing.T) {
	f := newFixture(t, scriptedLLM("structured_query", map[string]string{"generate_sql": "DELETE FROM customers"}, nil), nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(context.Background(), domain.ChatRequest{Message: "remove all customers"}, rec.emit)
	require.NoError(t, err)

	rec.assertClosed(t, domain.StreamEventDone)
	assert.Contains(t, msg.Content, safety.RejectionMessage)
	assert.False(t, msg.Metadata.IsFailed())
	assert.Equal(t, "DELETE FROM customers", msg.Metadata.Query)
}

func TestProcessMessage_GenerationFailurePersistsFailedTurn(t *testing.T) {
	ctx := context.Background()
	client := scriptedLLM("conversation", nil, map[string]error{"converse": errors.New("upstream 503")})
	f := newFixture(t, client, nil)
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, rec.emit)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorUpstream, domain.CodeOf(err))
	require.NotNil(t, msg)

	rec.assertClosed(t, domain.StreamEventError)
	assert.Equal(t, err.Error(), rec.events[len(rec.events)-1].Content)
	assert.True(t, msg.Metadata.IsFailed())
	assert.Contains(t, msg.Metadata.Error, "upstream 503")

	stored, err := f.store.GetMessages(ctx, msg.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.TurnStatusFailed, stored[1].Metadata.Status)

	run, err := f.svc.GetRun(ctx, msg.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.NotNil(t, run.EndedAt)
}

func TestProcessMessage_UserPersistFailure(t *testing.T) {
	ctx := context.Background()
	client := scriptedLLM("conversation", map[string]string{"converse": "never"}, nil)
	f := newFixture(t, client, func(s store.Store) store.Store {
		return &faultyStore{Store: s, failRole: domain.RoleUser}
	})
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, rec.emit)
	require.Error(t, err)
	assert.Nil(t, msg)
	require.Len(t, rec.events, 1)
	rec.assertClosed(t, domain.StreamEventError)
	assert.Contains(t, rec.events[0].Content, "disk full")
}

func TestProcessMessage_AssistantPersistFailure(t *testing.T) {
	client := scriptedLLM("conversation", map[string]string{"converse": "hi"}, nil)
	f := newFixture(t, client, func(s store.Store) store.Store {
		return &faultyStore{Store: s, failRole: domain.RoleAssistant}
	})
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(context.Background(), domain.ChatRequest{Message: "hello"}, rec.emit)
	require.Error(t, err)
	assert.Nil(t, msg)
	rec.assertClosed(t, domain.StreamEventError)
}

func TestProcessMessage_HistoryReadFailureIsTraced(t *testing.T) {
	ctx := context.Background()
	client := scriptedLLM("conversation", map[string]string{"converse": "hi there"}, nil)
	f := newFixture(t, client, func(s store.Store) store.Store {
		return &faultyStore{Store: s, failHistory: true}
	})
	rec := &recorder{}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, rec.emit)
	require.NoError(t, err)
	require.NotNil(t, msg)
	rec.assertClosed(t, domain.StreamEventDone)

	events, err := f.svc.GetRunEvents(ctx, msg.RunID, 0, 0)
	require.NoError(t, err)
	var degraded []domain.HistoryDegradedPayload
	for _, e := range events {
		if e.Type == domain.EventTypeHistoryDegraded {
			var p domain.HistoryDegradedPayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			degraded = append(degraded, p)
		}
	}
	require.Len(t, degraded, 1)
	assert.Equal(t, msg.SessionID, degraded[0].SessionID)
	assert.Contains(t, degraded[0].Error, "database is locked")
}

func TestProcessMessage_EmitFailurePersistsPartialAnswer(t *testing.T) {
	ctx := context.Background()
	client := scriptedLLM("conversation", map[string]string{"converse": "Hello there, friend"}, nil)
	f := newFixture(t, client, nil)
	rec := &recorder{failAt: 3}

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, rec.emit)
	require.Error(t, err)
	require.NotNil(t, msg)

	// metadata and the first token reached the caller; nothing after.
	require.Len(t, rec.events, 2)
	assert.Equal(t, "Hello", rec.events[1].Content)

	assert.True(t, strings.HasPrefix(msg.Content, "Hello"))
	assert.NotEqual(t, "Hello there, friend", msg.Content)
	assert.True(t, msg.Metadata.IsFailed())

	stored, err := f.store.GetMessages(ctx, msg.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, msg.Content, stored[1].Content)
}

func TestProcessMessage_MetadataEmitFailureSkipsPipeline(t *testing.T) {
	calls := 0
	client := &llm.MockClient{Respond: func(req *llm.ChatCompletionRequest) (string, error) {
		calls++
		return `{"destination":"conversation","reasoning":"chat"}`, nil
	}}
	f := newFixture(t, client, nil)
	rec := &recorder{failAt: 1}

	msg, err := f.svc.ProcessMessage(context.Background(), domain.ChatRequest{Message: "hello"}, rec.emit)
	require.Error(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 1, calls)
	assert.Empty(t, msg.Content)
	assert.Equal(t, domain.ConversationMetadata().Failed(err), *msg.Metadata)
	assert.Empty(t, rec.events)
}

func TestProcessMessage_RecordsRunTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scriptedLLM("conversation", map[string]string{"converse": "hey"}, nil), nil)

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "hello"}, (&recorder{}).emit)
	require.NoError(t, err)
	require.NotEmpty(t, msg.RunID)

	run, err := f.svc.GetRun(ctx, msg.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)
	assert.Equal(t, domain.DestinationConversation, run.Destination)

	events, err := f.svc.GetRunEvents(ctx, msg.RunID, 0, 0)
	require.NoError(t, err)
	var types []domain.EventType
	var operations []string
	for _, e := range events {
		types = append(types, e.Type)
		if e.Type == domain.EventTypeLLMCallDone {
			var p domain.LLMCallDonePayload
			require.NoError(t, json.Unmarshal(e.Payload, &p))
			operations = append(operations, p.Operation)
		}
	}
	assert.Equal(t, domain.EventTypeRunStarted, types[0])
	assert.Contains(t, types, domain.EventTypeUserInput)
	assert.Contains(t, types, domain.EventTypeRouteDecided)
	assert.Contains(t, types, domain.EventTypePipelineDone)
	assert.Equal(t, domain.EventTypeRunDone, types[len(types)-1])
	assert.ElementsMatch(t, []string{"classify", "converse"}, operations)
}

func TestGetMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scriptedLLM("conversation", map[string]string{"converse": "ok"}, nil), nil)

	_, err := f.svc.GetMessages(ctx, uuid.NewString(), 10)
	assert.True(t, domain.IsNotFound(err))

	msg, err := f.svc.ProcessMessage(ctx, domain.ChatRequest{Message: "one"}, (&recorder{}).emit)
	require.NoError(t, err)
	_, err = f.svc.ProcessMessage(ctx, domain.ChatRequest{SessionID: msg.SessionID, Message: "two"}, (&recorder{}).emit)
	require.NoError(t, err)

	resp, err := f.svc.GetMessages(ctx, msg.SessionID, 3)
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "ok", resp.Messages[0].Content)
	assert.Equal(t, "two", resp.Messages[1].Content)

	resp, err = f.svc.GetMessages(ctx, msg.SessionID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Total)
}

func TestGetRun_NotFound(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(), nil)
	_, err := f.svc.GetRun(context.Background(), "run_missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.GetRunEvents(context.Background(), "run_missing", 0, 10)
	assert.True(t, domain.IsNotFound(err))
}

func TestDocumentsWithoutIngestion(t *testing.T) {
	f := newFixture(t, llm.NewMockClient(), nil)
	_, err := f.svc.ListDocuments(context.Background())
	assert.ErrorIs(t, err, errNoIngestion)
}
