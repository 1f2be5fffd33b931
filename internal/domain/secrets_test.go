package domain_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/directchat/internal/domain"
)

func TestSecretString(t *testing.T) {
	secret := domain.SecretString("message-encryption-secret")

	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "message-encryption-secret", secret.Expose())
	assert.False(t, secret.IsEmpty())
	assert.True(t, domain.SecretString("").IsEmpty())
}

func TestSecretStringNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("config loaded", "crypto", domain.SecretString("hunter2"))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "[REDACTED]")
}
