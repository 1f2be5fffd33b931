package auth

import (
	"fmt"
	"strings"

	"github.com/aelexs/directchat/internal/domain"
)

const bearerScheme = "bearer"

// ParseBearer extracts the token from an Authorization header value.
// The scheme is matched case-insensitively; a missing header, another
// scheme or a scheme without a token are all rejected.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("missing authorization header: %w", domain.ErrUnauthorized)
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", fmt.Errorf("unsupported authorization scheme: %w", domain.ErrUnauthorized)
	}

	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized)
	}

	return token, nil
}
