package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/models"
)

func msg(role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

// sized returns a message whose messageSize is exactly n units.
func sized(role string, n int) models.Message {
	overhead := len(role) + 2 + 1
	return msg(role, strings.Repeat("x", n-overhead))
}

func TestBuildPackKeepsEverythingWithinBudget(t *testing.T) {
	messages := []models.Message{
		sized("user", 100),
		sized("assistant", 100),
	}
	pack := BuildPack(messages, 500)

	assert.Len(t, pack.Messages, 2)
	assert.False(t, pack.WasTruncated)
	assert.Equal(t, 200, pack.OriginalSize)
	assert.Equal(t, 200, pack.FinalSize)
}

func TestBuildPackDropsOldestFirst(t *testing.T) {
	messages := []models.Message{
		sized("user", 100),
		sized("assistant", 100),
		sized("user", 100),
	}
	pack := BuildPack(messages, 250)

	require.Len(t, pack.Messages, 2)
	assert.Equal(t, messages[1].Content, pack.Messages[0].Content)
	assert.Equal(t, messages[2].Content, pack.Messages[1].Content)
	assert.True(t, pack.WasTruncated)
	assert.Equal(t, 300, pack.OriginalSize)
	assert.Equal(t, 200, pack.FinalSize)
}

func TestBuildPackAlwaysIncludesNewestMessage(t *testing.T) {
	messages := []models.Message{sized("user", 400)}
	pack := BuildPack(messages, 100)

	require.Len(t, pack.Messages, 1)
	assert.False(t, pack.WasTruncated, "nothing was dropped")
	assert.Equal(t, 400, pack.FinalSize)
}

func TestBuildPackEmptyHistory(t *testing.T) {
	pack := BuildPack(nil, 100)
	assert.Empty(t, pack.Messages)
	assert.False(t, pack.WasTruncated)
	assert.Zero(t, pack.OriginalSize)
}

func TestBuildPackPreservesChronologicalOrder(t *testing.T) {
	var messages []models.Message
	for i := 0; i < 5; i++ {
		messages = append(messages, msg("user", fmt.Sprintf("message %d", i)))
	}
	pack := BuildPack(messages, 10000)

	for i, m := range pack.Messages {
		assert.Equal(t, fmt.Sprintf("message %d", i), m.Content)
	}
}

// ----------------------------------------------------------------------------
// Service
// ----------------------------------------------------------------------------

type fakeChatStore struct {
	chat      models.Chat
	messages  []models.Message
	bases     []models.KnowledgeBase
	points    map[string][]models.Point
	appendErr error
	searchErr error
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chat: models.Chat{
			ID:          surrealmodels.RecordID{Table: "chat", ID: "chat-1"},
			WorkspaceID: "ws-1",
			Title:       "Support",
		},
		bases: []models.KnowledgeBase{
			{
				ID:          surrealmodels.RecordID{Table: "knowledge_base", ID: "base-1"},
				WorkspaceID: "ws-1",
				Collection:  "kb_docs",
			},
		},
		points: map[string][]models.Point{},
	}
}

func (s *fakeChatStore) GetChat(_ context.Context, id string) (*models.Chat, error) {
	c := s.chat
	return &c, nil
}

func (s *fakeChatStore) AppendMessage(_ context.Context, chatID, role, content string) (*models.Message, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	m := models.Message{
		ID:        surrealmodels.RecordID{Table: "message", ID: fmt.Sprintf("msg-%d", len(s.messages)+1)},
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *fakeChatStore) ListMessages(_ context.Context, chatID string, limit int) ([]models.Message, error) {
	return append([]models.Message(nil), s.messages...), nil
}

func (s *fakeChatStore) ListKnowledgeBases(_ context.Context, workspaceID string) ([]models.KnowledgeBase, error) {
	return s.bases, nil
}

func (s *fakeChatStore) SearchPoints(_ context.Context, collection string, _ []float32, limit int) ([]models.Point, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	pts := s.points[collection]
	if len(pts) > limit {
		pts = pts[:limit]
	}
	return pts, nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 2, 3}, nil
}

type fakeReplier struct {
	reply       string
	err         error
	gotHistory  []string
	gotPassages []string
	gotQuestion string
	invocations int
}

func (r *fakeReplier) Reply(_ context.Context, history, passages []string, question string) (string, error) {
	r.invocations++
	r.gotHistory = history
	r.gotPassages = passages
	r.gotQuestion = question
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func collectActions(ch <-chan events.Event) []models.BotAction {
	var out []models.BotAction
	for {
		select {
		case ev := <-ch:
			if ce, ok := ev.Payload.(models.ChatEvent); ok && ce.Type == models.ChatEventBotAction {
				out = append(out, *ce.Action)
			}
		default:
			return out
		}
	}
}

func TestSendMessageGeneratesReplyWithRetrieval(t *testing.T) {
	store := newFakeChatStore()
	store.points["kb_docs"] = []models.Point{
		{Content: "Widgets ship in 3 days."},
		{Content: "Returns accepted within 30 days."},
	}
	replier := &fakeReplier{reply: "Widgets ship in 3 days."}
	bus := events.NewBus(nil, nil)
	defer bus.Close()

	svc := NewService(store, &fakeEmbedder{}, replier, bus, nil, 10000)

	ch, unsub := bus.Subscribe(events.ChatChannel("chat-1"))
	defer unsub()

	ex, err := svc.SendMessage(context.Background(), "chat-1", "How fast do widgets ship?")
	require.NoError(t, err)

	assert.Equal(t, "user", ex.UserMessage.Role)
	assert.Equal(t, "assistant", ex.AssistantMessage.Role)
	assert.Equal(t, "Widgets ship in 3 days.", ex.AssistantMessage.Content)

	assert.Equal(t, "How fast do widgets ship?", replier.gotQuestion)
	assert.Len(t, replier.gotPassages, 2)
	assert.Empty(t, replier.gotHistory, "first turn has no prior history")

	actions := collectActions(ch)
	require.Len(t, actions, 2)
	assert.Equal(t, models.BotActionProcessing, actions[0].Status)
	assert.Equal(t, models.BotActionDone, actions[1].Status)
	assert.Equal(t, actions[0].ActionID, actions[1].ActionID)
}

func TestSendMessagePassesHistoryWithoutQuestion(t *testing.T) {
	store := newFakeChatStore()
	store.messages = []models.Message{
		msg("user", "Hello"),
		msg("assistant", "Hi, how can I help?"),
	}
	replier := &fakeReplier{reply: "ok"}
	svc := NewService(store, &fakeEmbedder{}, replier, nil, nil, 10000)

	_, err := svc.SendMessage(context.Background(), "chat-1", "Tell me more")
	require.NoError(t, err)

	require.Len(t, replier.gotHistory, 2)
	assert.Equal(t, "user: Hello", replier.gotHistory[0])
	assert.NotContains(t, replier.gotHistory, "user: Tell me more")
}

func TestSendMessageModelFailureEmitsErrorAction(t *testing.T) {
	store := newFakeChatStore()
	replier := &fakeReplier{err: errors.New("model overloaded")}
	bus := events.NewBus(nil, nil)
	defer bus.Close()
	svc := NewService(store, &fakeEmbedder{}, replier, bus, nil, 10000)

	ch, unsub := bus.Subscribe(events.ChatChannel("chat-1"))
	defer unsub()

	_, err := svc.SendMessage(context.Background(), "chat-1", "question")
	require.Error(t, err)

	actions := collectActions(ch)
	require.Len(t, actions, 2)
	assert.Equal(t, models.BotActionProcessing, actions[0].Status)
	assert.Equal(t, models.BotActionError, actions[1].Status)

	// The failed turn keeps the user message but no assistant reply
	require.Len(t, store.messages, 1)
	assert.Equal(t, "user", store.messages[0].Role)
}

func TestSendMessageRetrievalFailureDegrades(t *testing.T) {
	store := newFakeChatStore()
	store.searchErr = errors.New("search index offline")
	replier := &fakeReplier{reply: "best effort answer"}
	svc := NewService(store, &fakeEmbedder{}, replier, nil, nil, 10000)

	ex, err := svc.SendMessage(context.Background(), "chat-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "best effort answer", ex.AssistantMessage.Content)
	assert.Empty(t, replier.gotPassages)
}

func TestSendMessageEmbedFailureDegrades(t *testing.T) {
	store := newFakeChatStore()
	store.points["kb_docs"] = []models.Point{{Content: "never retrieved"}}
	replier := &fakeReplier{reply: "answer"}
	svc := NewService(store, &fakeEmbedder{err: errors.New("provider down")}, replier, nil, nil, 10000)

	_, err := svc.SendMessage(context.Background(), "chat-1", "question")
	require.NoError(t, err)
	assert.Empty(t, replier.gotPassages)
	assert.Equal(t, 1, replier.invocations)
}

func TestContextUsesDefaultBudget(t *testing.T) {
	store := newFakeChatStore()
	store.messages = []models.Message{
		sized("user", 100),
		sized("assistant", 100),
		sized("user", 100),
	}
	svc := NewService(store, nil, nil, nil, nil, 250)

	pack, err := svc.Context(context.Background(), "chat-1", 0)
	require.NoError(t, err)
	assert.Len(t, pack.Messages, 2)
	assert.True(t, pack.WasTruncated)

	// Explicit budget overrides the default
	pack, err = svc.Context(context.Background(), "chat-1", 1000)
	require.NoError(t, err)
	assert.Len(t, pack.Messages, 3)
	assert.False(t, pack.WasTruncated)
}
