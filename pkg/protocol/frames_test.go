package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/directchat/pkg/protocol"
)

func TestNewFrame_NilPayload(t *testing.T) {
	frame, err := protocol.NewFrame(string(protocol.EventOnError), nil)

	require.NoError(t, err)
	assert.Equal(t, "ON_ERROR", frame.Event)
	assert.Nil(t, frame.Payload)
}

func TestParsePayload_ClientEvents(t *testing.T) {
	t.Run("CREATE_CHAT", func(t *testing.T) {
		raw := `{"event":"CREATE_CHAT","payload":{"receiverId":"r-1","messageText":"hi"}}`

		var frame protocol.Frame
		require.NoError(t, json.Unmarshal([]byte(raw), &frame))
		var got protocol.CreateChat
		require.NoError(t, frame.ParsePayload(&got))

		assert.Equal(t, string(protocol.EventCreateChat), frame.Event)
		assert.Equal(t, protocol.CreateChat{ReceiverID: "r-1", MessageText: "hi"}, got)
	})

	t.Run("SEND_MESSAGE", func(t *testing.T) {
		raw := `{"event":"SEND_MESSAGE","payload":{"directChatId":"c-1","messageText":"yo"}}`

		var frame protocol.Frame
		require.NoError(t, json.Unmarshal([]byte(raw), &frame))
		var got protocol.SendMessage
		require.NoError(t, frame.ParsePayload(&got))

		assert.Equal(t, protocol.SendMessage{DirectChatID: "c-1", MessageText: "yo"}, got)
	})

	t.Run("missing payload leaves target untouched", func(t *testing.T) {
		frame := protocol.Frame{Event: "SEND_MESSAGE"}
		var got protocol.SendMessage
		require.NoError(t, frame.ParsePayload(&got))
		assert.Empty(t, got.DirectChatID)
	})
}

func TestErrorFrameShape(t *testing.T) {
	payload := protocol.NewError("Bad Request",
		protocol.FieldError{Message: "receiverId must be a UUID", Field: "receiverId"},
		protocol.FieldError{Message: "messageText should not be empty", Field: "messageText"},
	)
	frame, err := protocol.NewFrame(string(protocol.EventOnError), payload)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame.Payload, &decoded))

	assert.Equal(t, "ERROR", decoded["status"])
	assert.Equal(t, "Bad Request", decoded["title"])
	assert.EqualValues(t, 2, decoded["errorsLength"])
	assert.Len(t, decoded["errors"], 2)
}

func TestNewError_NoFieldErrors(t *testing.T) {
	payload := protocol.NewError("Internal Server Error")

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ERROR","title":"Internal Server Error","errors":[],"errorsLength":0}`, string(b))
}

func TestSuccessFrameShape(t *testing.T) {
	payload := protocol.NewSuccess(protocol.Participant{ID: "u-1"})

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SUCCESS","data":{"id":"u-1"}}`, string(b))
}

func TestClientEvents(t *testing.T) {
	assert.ElementsMatch(t,
		[]protocol.ClientEvent{protocol.EventCreateChat, protocol.EventSendMessage},
		protocol.ClientEvents())
}
