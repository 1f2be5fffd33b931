// Package app holds the direct chat use cases. It composes the chat store,
// the user directory and the text codec and returns domain results or errors.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/observability"
)

var tracer = otel.Tracer("directchat/app")

var (
	chatsCreatedTotal  metric.Int64Counter
	messagesSentTotal  metric.Int64Counter
	chatFailuresTotal  metric.Int64Counter
	decryptParallelism = max(2, runtime.GOMAXPROCS(0))
)

func init() {
	m := otel.Meter("directchat/app")

	chatsCreatedTotal, _ = m.Int64Counter("directchat_chats_created_total",
		metric.WithDescription("Total direct chats created"))
	messagesSentTotal, _ = m.Int64Counter("directchat_messages_sent_total",
		metric.WithDescription("Total direct messages persisted, including initial messages"))
	chatFailuresTotal, _ = m.Int64Counter("directchat_failures_total",
		metric.WithDescription("Total rejected direct chat operations"))
}

// ChatServiceConfig holds the dependencies for ChatService.
type ChatServiceConfig struct {
	Store  ChatStore
	Users  UserDirectory
	Codec  TextCodec
	Clock  domain.Clock
	Logger *slog.Logger
}

// ChatService implements the direct chat use cases. It is safe for
// concurrent use; it keeps no state of its own.
type ChatService struct {
	store  ChatStore
	users  UserDirectory
	codec  TextCodec
	clock  domain.Clock
	logger *slog.Logger
}

// NewChatService creates a ChatService with the given dependencies.
func NewChatService(cfg ChatServiceConfig) *ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:  cfg.Store,
		users:  cfg.Users,
		codec:  cfg.Codec,
		clock:  cfg.Clock,
		logger: logger,
	}
}

// CreateChat opens a direct chat between sender and receiver with text as
// its first message. The returned chat carries the decrypted message.
func (s *ChatService) CreateChat(ctx context.Context, senderID, receiverID domain.UserID, text string) (*DirectChat, error) {
	ctx, span := tracer.Start(ctx, "directchat.create_chat", trace.WithAttributes(
		attribute.String("sender_id", senderID.String()),
		attribute.String("receiver_id", receiverID.String()),
	))
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	if senderID == receiverID {
		return nil, s.reject(ctx, span, "self_chat", domain.ErrSelfChat)
	}

	// 1. Both members must exist (one batched lookup).
	existing, err := s.users.ExistingUserIDs(ctx, []domain.UserID{senderID, receiverID})
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("lookup chat members: %w", err))
	}
	if !lo.Every(existing, []domain.UserID{senderID, receiverID}) {
		return nil, s.reject(ctx, span, "member_missing", domain.ErrChatMemberMissing)
	}

	// 2. At most one chat per unordered pair.
	_, err = s.store.FindChatByParticipants(ctx, senderID, receiverID)
	switch {
	case err == nil:
		return nil, s.reject(ctx, span, "chat_exists", domain.ErrDirectChatExists)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, s.fail(span, fmt.Errorf("find chat by participants: %w", err))
	}

	// 3. Persist chat, links and initial message in one transaction.
	ciphertext, err := s.codec.Encrypt(text)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("encrypt message: %w", err))
	}

	chat, err := s.store.CreateChat(ctx, CreateChatParams{
		ChatID:     domain.GenerateChatID(),
		PairKey:    domain.PairKey(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		MessageID:  domain.GenerateMessageID(),
		Ciphertext: ciphertext,
		DateTime:   s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost the race against a concurrent CreateChat for the same pair;
			// the unique pair key rejected the second insert.
			logger.WarnContext(ctx, "directchat.create_chat_race", "pair_key", domain.PairKey(senderID, receiverID))
			return nil, s.reject(ctx, span, "chat_exists", domain.ErrDirectChatExists)
		}
		logger.ErrorContext(ctx, "directchat.create_chat_failed", "error", err)
		return nil, s.reject(ctx, span, "persist_failed", fmt.Errorf("%w: %w", domain.ErrChatNotCreated, err))
	}
	if chat == nil || len(chat.Messages) == 0 || len(chat.Users) != domain.DirectChatParticipants {
		return nil, s.reject(ctx, span, "persist_failed", domain.ErrChatNotCreated)
	}

	// 4. Decrypt for the response payload.
	if err := s.decryptMessages(chat.Messages); err != nil {
		return nil, s.fail(span, err)
	}

	chatsCreatedTotal.Add(ctx, 1)
	messagesSentTotal.Add(ctx, 1)
	logger.InfoContext(ctx, "directchat.chat_created",
		"chat_id", chat.ID.String(),
		"sender_id", senderID.String(),
		"receiver_id", receiverID.String(),
	)

	return chat, nil
}

// SendMessage appends text to an existing chat the sender belongs to.
func (s *ChatService) SendMessage(ctx context.Context, senderID domain.UserID, chatID domain.ChatID, text string) (*SentMessage, error) {
	ctx, span := tracer.Start(ctx, "directchat.send_message", trace.WithAttributes(
		attribute.String("sender_id", senderID.String()),
		attribute.String("chat_id", chatID.String()),
	))
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	chat, err := s.store.FindChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, s.reject(ctx, span, "chat_missing", domain.ErrDirectChatMissing)
		}
		return nil, s.fail(span, fmt.Errorf("find chat: %w", err))
	}
	if !chat.HasParticipant(senderID) {
		return nil, s.reject(ctx, span, "not_member", domain.ErrChatNotMember)
	}

	ciphertext, err := s.codec.Encrypt(text)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("encrypt message: %w", err))
	}

	msg, err := s.store.CreateMessage(ctx, CreateMessageParams{
		MessageID:  domain.GenerateMessageID(),
		ChatID:     chatID,
		SenderID:   senderID,
		Ciphertext: ciphertext,
		DateTime:   s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The chat was deleted between the lookup and the insert.
			return nil, s.reject(ctx, span, "chat_missing", domain.ErrDirectChatMissing)
		}
		logger.ErrorContext(ctx, "directchat.send_message_failed", "chat_id", chatID.String(), "error", err)
		return nil, s.reject(ctx, span, "persist_failed", fmt.Errorf("%w: %w", domain.ErrMessageNotCreated, err))
	}
	if msg == nil {
		return nil, s.reject(ctx, span, "persist_failed", domain.ErrMessageNotCreated)
	}

	plain, err := s.codec.Decrypt(msg.MessageText)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("decrypt message %s: %w", msg.ID, err))
	}
	msg.MessageText = plain

	messagesSentTotal.Add(ctx, 1)

	return &SentMessage{Message: *msg, Participants: chat.Users}, nil
}

// GetUserLastChats returns one page of the user's chats, each with its
// latest message decrypted, most recently active first.
func (s *ChatService) GetUserLastChats(ctx context.Context, userID domain.UserID, page domain.Page) ([]DirectChat, error) {
	ctx, span := tracer.Start(ctx, "directchat.get_user_last_chats", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.Int("page", page.Number),
		attribute.Int("take", page.Size),
	))
	defer span.End()

	chats, err := s.store.ListUserChats(ctx, userID, page.Skip(), page.Size)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("list user chats: %w", err))
	}

	msgs := make([]*Message, 0, len(chats))
	for i := range chats {
		for j := range chats[i].Messages {
			msgs = append(msgs, &chats[i].Messages[j])
		}
	}
	if err := s.decryptAll(msgs); err != nil {
		return nil, s.fail(span, err)
	}

	return chats, nil
}

// GetChatMessages returns one page of a chat's history, newest first, to a
// participant of that chat.
func (s *ChatService) GetChatMessages(ctx context.Context, userID domain.UserID, chatID domain.ChatID, page domain.Page) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "directchat.get_chat_messages", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("chat_id", chatID.String()),
		attribute.Int("page", page.Number),
		attribute.Int("take", page.Size),
	))
	defer span.End()

	chat, err := s.store.FindChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, s.reject(ctx, span, "chat_missing", domain.ErrDirectChatMissing)
		}
		return nil, s.fail(span, fmt.Errorf("find chat: %w", err))
	}
	if !chat.HasParticipant(userID) {
		return nil, s.reject(ctx, span, "not_member", domain.ErrChatNotMember)
	}

	messages, err := s.store.ListChatMessages(ctx, chatID, page.Skip(), page.Size)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("list chat messages: %w", err))
	}
	if err := s.decryptMessages(messages); err != nil {
		return nil, s.fail(span, err)
	}

	return messages, nil
}

func (s *ChatService) decryptMessages(messages []Message) error {
	ptrs := make([]*Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	return s.decryptAll(ptrs)
}

// decryptAll decrypts in place on a bounded number of goroutines.
func (s *ChatService) decryptAll(messages []*Message) error {
	var g errgroup.Group
	g.SetLimit(decryptParallelism)

	for _, m := range messages {
		g.Go(func() error {
			plain, err := s.codec.Decrypt(m.MessageText)
			if err != nil {
				return fmt.Errorf("decrypt message %s: %w", m.ID, err)
			}
			m.MessageText = plain
			return nil
		})
	}
	return g.Wait()
}

// reject records an expected business-rule failure and returns err.
func (s *ChatService) reject(ctx context.Context, span trace.Span, reason string, err error) error {
	chatFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.SetStatus(codes.Error, reason)
	return err
}

// fail records an unexpected infrastructure failure and returns err.
func (s *ChatService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
