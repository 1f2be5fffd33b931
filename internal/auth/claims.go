package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/aelexs/directchat/internal/domain"
)

// Claims are the access token claims this service relies on. The identity
// service issues tokens whose subject is the user's UUID.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (domain.UserID, error) {
	return domain.NewUserID(c.Subject)
}
