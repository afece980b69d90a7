// Package auth verifies bearer credentials presented on HTTP requests and
// websocket handshakes.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated identity attached to a connection.
type Principal struct {
	UserID   string
	Username string
}

// Verifier validates a bearer credential and returns the principal it names.
type Verifier interface {
	Verify(token string) (*Principal, error)
}

// Claims represents JWT claims issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// JWTVerifier verifies HMAC-signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the principal on success.
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
	}, nil
}
