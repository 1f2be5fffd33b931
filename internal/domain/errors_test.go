package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/directchat/internal/domain"
)

func TestDomainErrorUnwrapsToClass(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class error
	}{
		{"missing member is bad request", domain.ErrChatMemberMissing, domain.ErrBadRequest},
		{"self chat is bad request", domain.ErrSelfChat, domain.ErrBadRequest},
		{"not member", domain.ErrChatNotMember, domain.ErrNotMember},
		{"duplicate chat is conflict", domain.ErrDirectChatExists, domain.ErrAlreadyExists},
		{"missing chat is not found", domain.ErrDirectChatMissing, domain.ErrNotFound},
		{"chat not created is unprocessable", domain.ErrChatNotCreated, domain.ErrUnprocessable},
		{"message not created is unprocessable", domain.ErrMessageNotCreated, domain.ErrUnprocessable},
		{"wrapped", fmt.Errorf("send: %w", domain.ErrDirectChatMissing), domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.class)
		})
	}
}

func TestDomainErrorMessage(t *testing.T) {
	assert.Equal(t, "direct chat between these users already exists", domain.ErrDirectChatExists.Error())
	assert.Equal(t, "one of the chat members does not exist", domain.ErrChatMemberMissing.Error())
	assert.Equal(t, "direct chat with provided id does not exist", domain.ErrDirectChatMissing.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrUnavailable", domain.ErrUnavailable, true},
		{"ErrRateLimited", domain.ErrRateLimited, true},
		{"ErrNotFound", domain.ErrNotFound, false},
		{"wrapped ErrUnavailable", fmt.Errorf("context: %w", domain.ErrUnavailable), true},
		{"random error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsRetryable(tt.err))
		})
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrInvalidInput", domain.ErrInvalidInput, true},
		{"ErrBadRequest", domain.ErrBadRequest, true},
		{"ErrNotFound", domain.ErrNotFound, true},
		{"ErrAlreadyExists", domain.ErrAlreadyExists, true},
		{"ErrNotMember", domain.ErrNotMember, true},
		{"ErrUnauthorized", domain.ErrUnauthorized, true},
		{"ErrDirectChatExists", domain.ErrDirectChatExists, true},
		{"ErrUnprocessable", domain.ErrUnprocessable, false},
		{"ErrUnavailable", domain.ErrUnavailable, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsClientError(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	t.Run("domain error exposes its message", func(t *testing.T) {
		msg, ok := domain.PublicMessage(fmt.Errorf("create chat: %w", domain.ErrDirectChatExists))
		assert.True(t, ok)
		assert.Equal(t, "direct chat between these users already exists", msg)
	})

	t.Run("sentinel exposes its text", func(t *testing.T) {
		msg, ok := domain.PublicMessage(domain.ErrRateLimited)
		assert.True(t, ok)
		assert.Equal(t, "rate limit exceeded", msg)
	})

	t.Run("internal error is hidden", func(t *testing.T) {
		_, ok := domain.PublicMessage(errors.New("pq: connection refused"))
		assert.False(t, ok)
	})

	t.Run("wrapped cause is not exposed", func(t *testing.T) {
		msg, ok := domain.PublicMessage(fmt.Errorf("bad token: %w: %w", domain.ErrUnauthorized, errors.New("signature is invalid")))
		assert.True(t, ok)
		assert.Equal(t, "authentication required", msg)
	})
}
