// Package protocol defines the direct-chat WebSocket protocol types.
// Every frame is a JSON object {"event": ..., "payload": ...}.
package protocol

import (
	"encoding/json"
	"time"
)

// ClientEvent names an event a client may emit.
type ClientEvent string

const (
	EventCreateChat  ClientEvent = "CREATE_CHAT"
	EventSendMessage ClientEvent = "SEND_MESSAGE"
)

// ClientEvents lists every client event. Handler tables are checked against
// this list, so adding an event here without a handler fails at startup.
func ClientEvents() []ClientEvent {
	return []ClientEvent{EventCreateChat, EventSendMessage}
}

// ServerEvent names an event the server pushes to clients.
type ServerEvent string

const (
	EventOnCreateChat     ServerEvent = "ON_CREATE_CHAT"
	EventOnReceiveMessage ServerEvent = "ON_RECEIVE_MESSAGE"
	EventOnError          ServerEvent = "ON_ERROR"
)

// Status discriminates success and error payloads.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Frame is the envelope for all WebSocket frames in both directions.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CreateChat is the CREATE_CHAT payload.
type CreateChat struct {
	ReceiverID  string `json:"receiverId"`
	MessageText string `json:"messageText"`
}

// SendMessage is the SEND_MESSAGE payload.
type SendMessage struct {
	DirectChatID string `json:"directChatId"`
	MessageText  string `json:"messageText"`
}

// Success wraps data returned on success.
type Success struct {
	Status Status `json:"status"`
	Data   any    `json:"data"`
}

// FieldError describes one violated constraint. Field is empty for errors
// that are not tied to an input field.
type FieldError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error is the ON_ERROR payload and the REST error body.
type Error struct {
	Status       Status       `json:"status"`
	Title        string       `json:"title"`
	Errors       []FieldError `json:"errors"`
	ErrorsLength int          `json:"errorsLength"`
}

// NewError builds an Error with ErrorsLength kept in sync.
func NewError(title string, errs ...FieldError) Error {
	if errs == nil {
		errs = []FieldError{}
	}
	return Error{
		Status:       StatusError,
		Title:        title,
		Errors:       errs,
		ErrorsLength: len(errs),
	}
}

// NewSuccess wraps data in a Success payload.
func NewSuccess(data any) Success {
	return Success{Status: StatusSuccess, Data: data}
}

// Participant is a member of a direct chat.
type Participant struct {
	ID string `json:"id"`
}

// Message is a decrypted direct chat message.
type Message struct {
	ID           string    `json:"id"`
	DirectChatID string    `json:"directChatId"`
	SenderID     string    `json:"senderId"`
	MessageText  string    `json:"messageText"`
	DateTime     time.Time `json:"dateTime"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DirectChat is a direct chat with its participants and messages.
type DirectChat struct {
	ID        string        `json:"id"`
	Users     []Participant `json:"users"`
	Messages  []Message     `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// NewFrame creates a Frame with the given event name and payload.
func NewFrame(event string, payload any) (*Frame, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Frame{
		Event:   event,
		Payload: payloadBytes,
	}, nil
}

// ParsePayload unmarshals the frame payload into the given struct.
func (f *Frame) ParsePayload(v any) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
