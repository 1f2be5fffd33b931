package port

import (
	"github.com/samber/lo"

	"github.com/aelexs/directchat/internal/directchat/app"
	"github.com/aelexs/directchat/internal/domain"
	"github.com/aelexs/directchat/pkg/protocol"
)

func toProtocolMessage(m app.Message) protocol.Message {
	return protocol.Message{
		ID:           m.ID.String(),
		DirectChatID: m.DirectChatID.String(),
		SenderID:     m.SenderID.String(),
		MessageText:  m.MessageText,
		DateTime:     m.DateTime,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toProtocolMessages(ms []app.Message) []protocol.Message {
	return lo.Map(ms, func(m app.Message, _ int) protocol.Message { return toProtocolMessage(m) })
}

func toProtocolChat(c app.DirectChat) protocol.DirectChat {
	return protocol.DirectChat{
		ID: c.ID.String(),
		Users: lo.Map(c.Users, func(u domain.UserID, _ int) protocol.Participant {
			return protocol.Participant{ID: u.String()}
		}),
		Messages:  toProtocolMessages(c.Messages),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toProtocolChats(cs []app.DirectChat) []protocol.DirectChat {
	return lo.Map(cs, func(c app.DirectChat, _ int) protocol.DirectChat { return toProtocolChat(c) })
}
