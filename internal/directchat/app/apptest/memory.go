// Package apptest provides in-memory implementations of the app ports for
// service and socket tests.
package apptest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/domain"
)

// MemoryStore is an app.ChatStore backed by maps. It enforces one chat per
// pair key, like the Postgres schema does.
type MemoryStore struct {
	mu       sync.Mutex
	chats    map[domain.ChatID]*app.DirectChat
	pairs    map[string]domain.ChatID
	messages map[domain.ChatID][]app.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[domain.ChatID]*app.DirectChat),
		pairs:    make(map[string]domain.ChatID),
		messages: make(map[domain.ChatID][]app.Message),
	}
}

func (s *MemoryStore) CreateChat(_ context.Context, p app.CreateChatParams) (*app.DirectChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[p.PairKey]; ok {
		return nil, fmt.Errorf("pair %s: %w", p.PairKey, domain.ErrAlreadyExists)
	}
	chat := &app.DirectChat{
		ID:        p.ChatID,
		Users:     []domain.UserID{p.SenderID, p.ReceiverID},
		CreatedAt: p.DateTime,
		UpdatedAt: p.DateTime,
	}
	s.chats[p.ChatID] = chat
	s.pairs[p.PairKey] = p.ChatID
	s.messages[p.ChatID] = []app.Message{newMessage(p.MessageID, p.ChatID, p.SenderID, p.Ciphertext, p.DateTime)}

	out := s.copyChat(chat)
	out.Messages = slices.Clone(s.messages[p.ChatID])
	return out, nil
}

func (s *MemoryStore) FindChatByParticipants(_ context.Context, a, b domain.UserID) (*app.DirectChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pairs[domain.PairKey(a, b)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.copyChat(s.chats[id]), nil
}

func (s *MemoryStore) FindChatByID(_ context.Context, chatID domain.ChatID) (*app.DirectChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return s.copyChat(chat), nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, p app.CreateMessageParams) (*app.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[p.ChatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", p.ChatID, domain.ErrNotFound)
	}
	msg := newMessage(p.MessageID, p.ChatID, p.SenderID, p.Ciphertext, p.DateTime)
	s.messages[p.ChatID] = append(s.messages[p.ChatID], msg)
	chat.UpdatedAt = p.DateTime
	return &msg, nil
}

func (s *MemoryStore) ListUserChats(_ context.Context, userID domain.UserID, skip, take int) ([]app.DirectChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := make([]app.DirectChat, 0)
	for _, c := range s.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		out := s.copyChat(c)
		if msgs := s.messages[c.ID]; len(msgs) > 0 {
			out.Messages = []app.Message{msgs[len(msgs)-1]}
		}
		chats = append(chats, *out)
	}
	slices.SortFunc(chats, func(a, b app.DirectChat) int {
		return latest(b).Compare(latest(a))
	})
	return page(chats, skip, take), nil
}

func (s *MemoryStore) ListChatMessages(_ context.Context, chatID domain.ChatID, skip, take int) ([]app.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := slices.Clone(s.messages[chatID])
	slices.Reverse(msgs)
	return page(msgs, skip, take), nil
}

func (s *MemoryStore) copyChat(c *app.DirectChat) *app.DirectChat {
	out := *c
	out.Users = slices.Clone(c.Users)
	out.Messages = nil
	return &out
}

func newMessage(id domain.MessageID, chatID domain.ChatID, senderID domain.UserID, text string, at time.Time) app.Message {
	return app.Message{
		ID:           id,
		DirectChatID: chatID,
		SenderID:     senderID,
		MessageText:  text,
		DateTime:     at,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func latest(c app.DirectChat) time.Time {
	if len(c.Messages) == 0 {
		return c.CreatedAt
	}
	return c.Messages[0].DateTime
}

func page[T any](items []T, skip, take int) []T {
	skip = max(skip, 0)
	if skip >= len(items) {
		return []T{}
	}
	return items[skip:min(skip+take, len(items))]
}

// MemoryUsers is an app.UserDirectory over a fixed set of users.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[domain.UserID]struct{}
}

// NewMemoryUsers creates a directory containing ids.
func NewMemoryUsers(ids ...domain.UserID) *MemoryUsers {
	return &MemoryUsers{users: lo.SliceToMap(ids, func(id domain.UserID) (domain.UserID, struct{}) {
		return id, struct{}{}
	})}
}

// Add registers more users.
func (d *MemoryUsers) Add(ids ...domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.users[id] = struct{}{}
	}
}

func (d *MemoryUsers) ExistingUserIDs(_ context.Context, ids []domain.UserID) ([]domain.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Filter(lo.Uniq(ids), func(id domain.UserID, _ int) bool {
		_, ok := d.users[id]
		return ok
	}), nil
}

// PrefixCodec is a reversible app.TextCodec that marks ciphertext with a
// prefix, so tests can tell stored text from returned text without paying
// for key derivation.
type PrefixCodec struct{}

const codecPrefix = "enc:"

// ErrNotEncrypted is returned by PrefixCodec.Decrypt for unmarked input.
var ErrNotEncrypted = errors.New("apptest: text was not encrypted")

func (PrefixCodec) Encrypt(plain string) (string, error) { return codecPrefix + plain, nil }

func (PrefixCodec) Decrypt(encoded string) (string, error) {
	plain, ok := strings.CutPrefix(encoded, codecPrefix)
	if !ok {
		return "", ErrNotEncrypted
	}
	return plain, nil
}

var (
	_ app.ChatStore     = (*MemoryStore)(nil)
	_ app.UserDirectory = (*MemoryUsers)(nil)
	_ app.TextCodec     = PrefixCodec{}
)
