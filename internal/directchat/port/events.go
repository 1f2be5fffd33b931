package port

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/pkg/protocol"
)

// eventHandler handles the payload of one client event for userID.
type eventHandler func(ctx context.Context, userID domain.UserID, payload json.RawMessage) error

// buildEventTable returns handlers keyed by event. It panics if any event in
// protocol.ClientEvents has no handler.
func buildEventTable(handlers map[protocol.ClientEvent]eventHandler) map[protocol.ClientEvent]eventHandler {
	table := make(map[protocol.ClientEvent]eventHandler, len(handlers))
	for _, event := range protocol.ClientEvents() {
		h, ok := handlers[event]
		if !ok || h == nil {
			panic(fmt.Sprintf("port: no handler for client event %s", event))
		}
		table[event] = h
	}
	return table
}

func (h *SocketHandler) handleCreateChat(ctx context.Context, senderID domain.UserID, payload json.RawMessage) error {
	var req protocol.CreateChat
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	in := createChatInput{
		ReceiverID:  req.ReceiverID,
		MessageText: strings.TrimSpace(req.MessageText),
	}
	if err := validateInput(in); err != nil {
		return err
	}
	receiverID, err := domain.NewUserID(in.ReceiverID)
	if err != nil {
		return err
	}

	chat, err := h.cfg.Service.CreateChat(ctx, senderID, receiverID, in.MessageText)
	if err != nil {
		return err
	}

	h.broadcast(ctx, []domain.UserID{senderID, receiverID}, protocol.EventOnCreateChat,
		protocol.NewSuccess(toProtocolChat(*chat)))
	return nil
}

func (h *SocketHandler) handleSendMessage(ctx context.Context, senderID domain.UserID, payload json.RawMessage) error {
	var req protocol.SendMessage
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	in := sendMessageInput{
		DirectChatID: req.DirectChatID,
		MessageText:  strings.TrimSpace(req.MessageText),
	}
	if err := validateInput(in); err != nil {
		return err
	}
	chatID, err := domain.NewChatID(in.DirectChatID)
	if err != nil {
		return err
	}

	sent, err := h.cfg.Service.SendMessage(ctx, senderID, chatID, in.MessageText)
	if err != nil {
		return err
	}

	h.broadcast(ctx, sent.Participants, protocol.EventOnReceiveMessage,
		protocol.NewSuccess(toProtocolMessage(sent.Message)))
	return nil
}

func (h *SocketHandler) broadcast(ctx context.Context, userIDs []domain.UserID, event protocol.ServerEvent, payload any) {
	if _, err := h.cfg.Registry.Broadcast(ctx, userIDs, event, payload); err != nil {
		h.logger.ErrorContext(ctx, "socket.broadcast_failed", "event", string(event), "error", err)
	}
}

// decodePayload unmarshals a client payload. A missing payload decodes to
// the zero value and is left to validation.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewError(domain.ErrBadRequest, "malformed payload")
	}
	return nil
}
