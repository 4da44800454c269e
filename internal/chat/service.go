package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/models"
)

// Store persists chats and serves vector retrieval.
type Store interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	AppendMessage(ctx context.Context, chatID, role, content string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	ListKnowledgeBases(ctx context.Context, workspaceID string) ([]models.KnowledgeBase, error)
	SearchPoints(ctx context.Context, collection string, embedding []float32, limit int) ([]models.Point, error)
}

// Embedder vectorizes the question for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Replier generates the assistant reply.
type Replier interface {
	Reply(ctx context.Context, history []string, passages []string, question string) (string, error)
}

const (
	perBaseSearchLimit = 4
	maxPassages        = 8
)

// Service ties chat persistence, retrieval and the reply model together.
type Service struct {
	store    Store
	embedder Embedder
	replier  Replier
	bus      *events.Bus
	logger   *slog.Logger
	budget   int
}

// NewService wires a chat service. budget is the default context pack budget
// in characters.
func NewService(store Store, embedder Embedder, replier Replier, bus *events.Bus, logger *slog.Logger, budget int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if budget <= 0 {
		budget = 12000
	}
	return &Service{
		store:    store,
		embedder: embedder,
		replier:  replier,
		bus:      bus,
		logger:   logger,
		budget:   budget,
	}
}

// Context builds the context pack for a chat. A budget of 0 uses the service
// default.
func (s *Service) Context(ctx context.Context, chatID string, budget int) (Pack, error) {
	if budget <= 0 {
		budget = s.budget
	}
	messages, err := s.store.ListMessages(ctx, chatID, 0)
	if err != nil {
		return Pack{}, err
	}
	return BuildPack(messages, budget), nil
}

// Exchange is the result of one user turn: the stored user message, the
// context pack the reply was generated from, and the stored assistant reply.
type Exchange struct {
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
	Pack             Pack            `json:"pack"`
}

// SendMessage appends the user message, generates an assistant reply from the
// context pack plus retrieved passages, and emits chat events on the chat
// channel. The reply generation is bracketed by a processing bot action and
// exactly one terminal done/error action.
func (s *Service) SendMessage(ctx context.Context, chatID, content string) (*Exchange, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(ctx, chatID, "user", content)
	if err != nil {
		return nil, err
	}
	s.publishMessage(ctx, chatID, userMsg)

	messages, err := s.store.ListMessages(ctx, chatID, 0)
	if err != nil {
		return nil, err
	}
	pack := BuildPack(messages, s.budget)

	actionID := uuid.NewString()
	s.publishAction(ctx, chat, actionID, models.BotActionProcessing, "Thinking")

	reply, err := s.generate(ctx, chat, pack, content)
	if err != nil {
		s.publishAction(ctx, chat, actionID, models.BotActionError, "Reply failed: "+err.Error())
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	assistantMsg, err := s.store.AppendMessage(ctx, chatID, "assistant", reply)
	if err != nil {
		s.publishAction(ctx, chat, actionID, models.BotActionError, "Reply failed: "+err.Error())
		return nil, err
	}
	s.publishMessage(ctx, chatID, assistantMsg)
	s.publishAction(ctx, chat, actionID, models.BotActionDone, "")

	return &Exchange{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Pack:             pack,
	}, nil
}

// generate produces the assistant reply. Retrieval failures degrade to a
// reply without passages; only model failures propagate.
func (s *Service) generate(ctx context.Context, chat *models.Chat, pack Pack, question string) (string, error) {
	passages := s.retrieve(ctx, chat.WorkspaceID, question)

	history := pack.PromptHistory()
	if len(history) > 0 {
		// The question itself is the newest pack entry
		history = history[:len(history)-1]
	}
	return s.replier.Reply(ctx, history, passages, question)
}

// retrieve embeds the question and searches every knowledge base of the
// workspace, best effort.
func (s *Service) retrieve(ctx context.Context, workspaceID, question string) []string {
	if s.embedder == nil {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("question embedding failed, replying without passages",
			"workspace", workspaceID, "error", err)
		return nil
	}

	bases, err := s.store.ListKnowledgeBases(ctx, workspaceID)
	if err != nil {
		s.logger.Warn("listing knowledge bases failed", "workspace", workspaceID, "error", err)
		return nil
	}

	var passages []string
	for _, base := range bases {
		points, err := s.store.SearchPoints(ctx, base.Collection, emb, perBaseSearchLimit)
		if err != nil {
			s.logger.Warn("vector search failed",
				"collection", base.Collection, "error", err)
			continue
		}
		for _, p := range points {
			passages = append(passages, p.Content)
			if len(passages) >= maxPassages {
				return passages
			}
		}
	}
	return passages
}

func (s *Service) publishMessage(ctx context.Context, chatID string, msg *models.Message) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Channel: events.ChatChannel(chatID),
		Kind:    events.KindChatEvent,
		Payload: models.ChatEvent{
			Type:    models.ChatEventMessage,
			Message: msg,
		},
	})
}

func (s *Service) publishAction(ctx context.Context, chat *models.Chat, actionID string, status models.BotActionStatus, text string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Channel: events.ChatChannel(models.MustRecordIDString(chat.ID)),
		Kind:    events.KindChatEvent,
		Payload: models.ChatEvent{
			Type: models.ChatEventBotAction,
			Action: &models.BotAction{
				WorkspaceID: chat.WorkspaceID,
				ChatID:      models.MustRecordIDString(chat.ID),
				ActionID:    actionID,
				ActionType:  "reply",
				Status:      status,
				DisplayText: text,
			},
		},
	})
}
