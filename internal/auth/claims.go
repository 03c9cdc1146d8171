package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	// TokenTypeOperator is held by people reading the admin API.
	TokenTypeOperator TokenType = "operator"
	// TokenTypeService is minted by this process for the outbound relays.
	TokenTypeService TokenType = "service"
)

// Claims are the only supported JWT claims shape for this service.
// Subject identifies the operator or the calling service.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
