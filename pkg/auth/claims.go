package auth

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload is the data needed to mint an access token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the JWT body issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the request identity.
func (c *AccessTokenClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role}
}
