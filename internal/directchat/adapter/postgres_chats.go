package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/postgres"
)

// Compile-time check: ChatStore satisfies app.ChatStore.
var _ app.ChatStore = (*ChatStore)(nil)

// ChatStore implements app.ChatStore on Postgres.
type ChatStore struct {
	db      postgres.DB
	timeout time.Duration
}

// NewChatStore creates a ChatStore. timeout bounds every call; zero
// disables the bound.
func NewChatStore(db postgres.DB, timeout time.Duration) *ChatStore {
	return &ChatStore{db: db, timeout: timeout}
}

const (
	insertChatSQL = `
INSERT INTO direct_chats (id, pair_key, created_at, updated_at)
VALUES ($1, $2, $3, $3)`

	insertParticipantsSQL = `
INSERT INTO direct_chat_participants (direct_chat_id, user_id)
VALUES ($1, $2), ($1, $3)`

	insertMessageSQL = `
INSERT INTO direct_chat_messages (id, direct_chat_id, sender_id, message_text, date_time, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5, $5)`

	// insertMessageReturningSQL inserts a message, bumps the chat's
	// updated_at and reads the stored row back joined on its chat.
	insertMessageReturningSQL = `
WITH inserted AS (
    INSERT INTO direct_chat_messages (id, direct_chat_id, sender_id, message_text, date_time, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $5, $5)
    RETURNING id, direct_chat_id, sender_id, message_text, date_time, created_at, updated_at
), touched AS (
    UPDATE direct_chats SET updated_at = $5 WHERE id = $2
    RETURNING id
)
SELECT m.id::text, m.direct_chat_id::text, m.sender_id::text, m.message_text, m.date_time, m.created_at, m.updated_at
FROM inserted m
JOIN touched c ON c.id = m.direct_chat_id`

	selectChatByIDSQL = `
SELECT id::text, created_at, updated_at
FROM direct_chats
WHERE id = $1`

	selectChatByParticipantsSQL = `
SELECT c.id::text, c.created_at, c.updated_at
FROM direct_chats c
WHERE EXISTS (
        SELECT 1 FROM direct_chat_participants p
        WHERE p.direct_chat_id = c.id AND p.user_id = $1)
  AND EXISTS (
        SELECT 1 FROM direct_chat_participants p
        WHERE p.direct_chat_id = c.id AND p.user_id = $2)
LIMIT 1`

	selectParticipantsSQL = `
SELECT direct_chat_id::text, user_id::text
FROM direct_chat_participants
WHERE direct_chat_id = ANY($1::uuid[])
ORDER BY direct_chat_id, user_id`

	selectChatMessagesSQL = `
SELECT id::text, direct_chat_id::text, sender_id::text, message_text, date_time, created_at, updated_at
FROM direct_chat_messages
WHERE direct_chat_id = $1
ORDER BY date_time DESC, id DESC
OFFSET $2 LIMIT $3`

	// selectUserChatsSQL pairs every chat of the user with its single latest
	// message and orders chats by that message.
	selectUserChatsSQL = `
SELECT c.id::text, c.created_at, c.updated_at,
       m.id::text, m.sender_id::text, m.message_text, m.date_time, m.created_at, m.updated_at
FROM direct_chat_participants p
JOIN direct_chats c ON c.id = p.direct_chat_id
JOIN LATERAL (
    SELECT id, sender_id, message_text, date_time, created_at, updated_at
    FROM direct_chat_messages
    WHERE direct_chat_id = c.id
    ORDER BY date_time DESC, id DESC
    LIMIT 1
) m ON true
WHERE p.user_id = $1
ORDER BY m.date_time DESC, c.id
OFFSET $2 LIMIT $3`
)

// CreateChat inserts the chat, both participant rows and the initial message
// in one transaction, then reads the chat back inside the same transaction.
func (s *ChatStore) CreateChat(ctx context.Context, params app.CreateChatParams) (*app.DirectChat, error) {
	ctx, span := s.startSpan(ctx, "postgres.chats.create", "INSERT")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var chat *app.DirectChat
	err := postgres.InTx(ctx, s.db, func(tx postgres.Tx) error {
		chatID := params.ChatID.String()

		if _, err := tx.Exec(ctx, insertChatSQL, chatID, params.PairKey, params.DateTime); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		if _, err := tx.Exec(ctx, insertParticipantsSQL, chatID, params.SenderID.String(), params.ReceiverID.String()); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		if _, err := tx.Exec(ctx, insertMessageSQL,
			params.MessageID.String(), chatID, params.SenderID.String(), params.Ciphertext, params.DateTime,
		); err != nil {
			return fmt.Errorf("insert initial message: %w", err)
		}

		c, err := findChatByID(ctx, tx, params.ChatID)
		if err != nil {
			return fmt.Errorf("re-read chat: %w", err)
		}
		msgs, err := listChatMessages(ctx, tx, params.ChatID, 0, 1)
		if err != nil {
			return fmt.Errorf("re-read initial message: %w", err)
		}
		c.Messages = msgs
		chat = c
		return nil
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			err = fmt.Errorf("create chat %s: %w", params.PairKey, domain.ErrAlreadyExists)
		}
		return nil, recordError(span, err)
	}

	return chat, nil
}

// FindChatByParticipants returns the chat shared by a and b.
func (s *ChatStore) FindChatByParticipants(ctx context.Context, a, b domain.UserID) (*app.DirectChat, error) {
	ctx, span := s.startSpan(ctx, "postgres.chats.find_by_participants", "SELECT")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chat, err := scanChat(s.db.QueryRow(ctx, selectChatByParticipantsSQL, a.String(), b.String()))
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, fmt.Errorf("chat between %s and %s: %w", a, b, domain.ErrNotFound)
		}
		return nil, recordError(span, fmt.Errorf("find chat by participants: %w", err))
	}

	if err := attachParticipants(ctx, s.db, []*app.DirectChat{chat}); err != nil {
		return nil, recordError(span, err)
	}
	return chat, nil
}

// FindChatByID returns the chat with its participants and no messages.
func (s *ChatStore) FindChatByID(ctx context.Context, chatID domain.ChatID) (*app.DirectChat, error) {
	ctx, span := s.startSpan(ctx, "postgres.chats.find_by_id", "SELECT")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chat, err := findChatByID(ctx, s.db, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, recordError(span, err)
	}
	return chat, nil
}

// CreateMessage inserts one message and returns the stored row.
func (s *ChatStore) CreateMessage(ctx context.Context, params app.CreateMessageParams) (*app.Message, error) {
	ctx, span := s.startSpan(ctx, "postgres.messages.create", "INSERT")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msg, err := scanMessage(s.db.QueryRow(ctx, insertMessageReturningSQL,
		params.MessageID.String(), params.ChatID.String(), params.SenderID.String(), params.Ciphertext, params.DateTime,
	))
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) || postgres.IsForeignKeyViolation(err) {
			err = fmt.Errorf("chat %s: %w", params.ChatID, domain.ErrNotFound)
		}
		return nil, recordError(span, fmt.Errorf("insert message: %w", err))
	}
	return msg, nil
}

// ListUserChats returns one page of userID's chats with their latest message.
func (s *ChatStore) ListUserChats(ctx context.Context, userID domain.UserID, skip, take int) ([]app.DirectChat, error) {
	ctx, span := s.startSpan(ctx, "postgres.chats.list_by_user", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.Int("db.skip", skip), attribute.Int("db.take", take))
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, selectUserChatsSQL, userID.String(), skip, take)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("list user chats: %w", err))
	}
	defer rows.Close()

	var chats []*app.DirectChat
	for rows.Next() {
		var (
			chat          app.DirectChat
			chatID, msgID string
			senderID      string
			msg           app.Message
		)
		if err := rows.Scan(
			&chatID, &chat.CreatedAt, &chat.UpdatedAt,
			&msgID, &senderID, &msg.MessageText, &msg.DateTime, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, recordError(span, fmt.Errorf("scan user chat: %w", err))
		}
		if chat.ID, err = domain.NewChatID(chatID); err != nil {
			return nil, recordError(span, err)
		}
		if msg.ID, err = domain.NewMessageID(msgID); err != nil {
			return nil, recordError(span, err)
		}
		if msg.SenderID, err = domain.NewUserID(senderID); err != nil {
			return nil, recordError(span, err)
		}
		msg.DirectChatID = chat.ID
		chat.Messages = []app.Message{msg}
		chats = append(chats, &chat)
	}
	if err := rows.Err(); err != nil {
		return nil, recordError(span, fmt.Errorf("iterate user chats: %w", err))
	}

	if err := attachParticipants(ctx, s.db, chats); err != nil {
		return nil, recordError(span, err)
	}

	return lo.Map(chats, func(c *app.DirectChat, _ int) app.DirectChat { return *c }), nil
}

// ListChatMessages returns one page of a chat's messages, newest first.
func (s *ChatStore) ListChatMessages(ctx context.Context, chatID domain.ChatID, skip, take int) ([]app.Message, error) {
	ctx, span := s.startSpan(ctx, "postgres.messages.list_by_chat", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.Int("db.skip", skip), attribute.Int("db.take", take))
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msgs, err := listChatMessages(ctx, s.db, chatID, skip, take)
	if err != nil {
		return nil, recordError(span, err)
	}
	return msgs, nil
}

func findChatByID(ctx context.Context, q postgres.Querier, chatID domain.ChatID) (*app.DirectChat, error) {
	chat, err := scanChat(q.QueryRow(ctx, selectChatByIDSQL, chatID.String()))
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find chat %s: %w", chatID, err)
	}
	if err := attachParticipants(ctx, q, []*app.DirectChat{chat}); err != nil {
		return nil, err
	}
	return chat, nil
}

func listChatMessages(ctx context.Context, q postgres.Querier, chatID domain.ChatID, skip, take int) ([]app.Message, error) {
	rows, err := q.Query(ctx, selectChatMessagesSQL, chatID.String(), skip, take)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]app.Message, 0, take)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return msgs, nil
}

// attachParticipants loads the members of every chat with one query.
func attachParticipants(ctx context.Context, q postgres.Querier, chats []*app.DirectChat) error {
	if len(chats) == 0 {
		return nil
	}

	ids := lo.Map(chats, func(c *app.DirectChat, _ int) string { return c.ID.String() })
	rows, err := q.Query(ctx, selectParticipantsSQL, ids)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]domain.UserID, len(chats))
	for rows.Next() {
		var chatID, userID string
		if err := rows.Scan(&chatID, &userID); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		uid, err := domain.NewUserID(userID)
		if err != nil {
			return err
		}
		members[chatID] = append(members[chatID], uid)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}

	for _, c := range chats {
		c.Users = members[c.ID.String()]
	}
	return nil
}

func scanChat(row postgres.Row) (*app.DirectChat, error) {
	var (
		chat app.DirectChat
		id   string
	)
	if err := row.Scan(&id, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, err
	}
	chatID, err := domain.NewChatID(id)
	if err != nil {
		return nil, err
	}
	chat.ID = chatID
	return &chat, nil
}

func scanMessage(row postgres.Row) (*app.Message, error) {
	var (
		msg                  app.Message
		id, chatID, senderID string
	)
	if err := row.Scan(&id, &chatID, &senderID, &msg.MessageText, &msg.DateTime, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if msg.ID, err = domain.NewMessageID(id); err != nil {
		return nil, err
	}
	if msg.DirectChatID, err = domain.NewChatID(chatID); err != nil {
		return nil, err
	}
	if msg.SenderID, err = domain.NewUserID(senderID); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *ChatStore) startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
	)
	return ctx, span
}

func (s *ChatStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
