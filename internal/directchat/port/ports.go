// Package port exposes the direct chat use cases to clients: the WebSocket
// event protocol and the REST read paths.
package port

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/internal/registry"
	"github.com/aelexs/directchat/pkg/protocol"
)

var tracer = otel.Tracer("directchat/port")

// ChatService is the subset of app.ChatService the handlers call.
type ChatService interface {
	CreateChat(ctx context.Context, senderID, receiverID domain.UserID, text string) (*app.DirectChat, error)
	SendMessage(ctx context.Context, senderID domain.UserID, chatID domain.ChatID, text string) (*app.SentMessage, error)
	GetUserLastChats(ctx context.Context, userID domain.UserID, page domain.Page) ([]app.DirectChat, error)
	GetChatMessages(ctx context.Context, userID domain.UserID, chatID domain.ChatID, page domain.Page) ([]app.Message, error)
}

// Authenticator resolves an Authorization header to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (domain.UserID, error)
}

// RateLimiter admits or denies one client event for a user.
type RateLimiter interface {
	Allow(ctx context.Context, userID domain.UserID) (bool, error)
}

// ConnectionRegistry tracks live connections and fans frames out to them.
type ConnectionRegistry interface {
	Register(userID domain.UserID, conn registry.Conn) bool
	Unregister(userID domain.UserID, conn registry.Conn) bool
	Broadcast(ctx context.Context, userIDs []domain.UserID, event protocol.ServerEvent, payload any) (int, error)
}

var (
	_ ChatService        = (*app.ChatService)(nil)
	_ ConnectionRegistry = (*registry.Registry)(nil)
)
