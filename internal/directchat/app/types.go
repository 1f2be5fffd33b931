package app

import (
	"context"
	"time"

	"github.com/aelexs/directchat/internal/domain"
)

// DirectChat is a conversation between exactly two users.
type DirectChat struct {
	ID        domain.ChatID
	Users     []domain.UserID
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasParticipant reports whether userID is one of the chat's members.
func (c *DirectChat) HasParticipant(userID domain.UserID) bool {
	for _, u := range c.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Message is a direct chat message. MessageText holds ciphertext while the
// message travels through the store and plaintext once the service returns it.
type Message struct {
	ID           domain.MessageID
	DirectChatID domain.ChatID
	SenderID     domain.UserID
	MessageText  string
	DateTime     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SentMessage is the result of SendMessage: the decrypted message and the
// participants it must be fanned out to.
type SentMessage struct {
	Message      Message
	Participants []domain.UserID
}

// CreateChatParams holds the inputs for the transactional chat creation.
type CreateChatParams struct {
	ChatID     domain.ChatID
	PairKey    string
	SenderID   domain.UserID
	ReceiverID domain.UserID
	MessageID  domain.MessageID
	Ciphertext string
	DateTime   time.Time
}

// CreateMessageParams holds the inputs for a single message insert.
type CreateMessageParams struct {
	MessageID  domain.MessageID
	ChatID     domain.ChatID
	SenderID   domain.UserID
	Ciphertext string
	DateTime   time.Time
}

// ChatStore persists direct chats and their messages.
// Lookups that find nothing return an error wrapping domain.ErrNotFound.
type ChatStore interface {
	// CreateChat inserts the chat, both participant links and the initial
	// message in one transaction and returns the chat as re-read from storage.
	// A second chat for the same pair fails with domain.ErrAlreadyExists.
	CreateChat(ctx context.Context, params CreateChatParams) (*DirectChat, error)
	FindChatByParticipants(ctx context.Context, a, b domain.UserID) (*DirectChat, error)
	FindChatByID(ctx context.Context, chatID domain.ChatID) (*DirectChat, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error)
	// ListUserChats returns chats the user participates in, each carrying only
	// its latest message, ordered by that message newest-first.
	ListUserChats(ctx context.Context, userID domain.UserID, skip, take int) ([]DirectChat, error)
	// ListChatMessages returns the chat's messages newest-first.
	ListChatMessages(ctx context.Context, chatID domain.ChatID, skip, take int) ([]Message, error)
}

// UserDirectory answers which of the given users exist.
type UserDirectory interface {
	ExistingUserIDs(ctx context.Context, ids []domain.UserID) ([]domain.UserID, error)
}

// TextCodec encrypts message text at rest.
type TextCodec interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}
