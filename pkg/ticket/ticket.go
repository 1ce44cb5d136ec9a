package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTicketExpired = errors.New("ticket: expired")

// Issuer signs and verifies short-lived subject tokens. The same token
// authorizes REST calls and the websocket handshake.
type Issuer interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

type Ticket struct {
	secret    []byte
	expiresIn time.Duration
}

func New(secret []byte, expiresIn time.Duration) *Ticket {
	return &Ticket{
		secret:    secret,
		expiresIn: expiresIn,
	}
}

func (t *Ticket) Issue(subject string) (string, error) {
	claims := &jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.expiresIn)),
		Subject:   subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	ss, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("ticket: failed to sign string: %w", err)
	}

	return ss, nil
}

func (t *Ticket) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("ticket: unexpected signing method: %v", token.Header["alg"])
		}

		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("ticket: failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok && token.Valid {
		return claims.Subject, nil
	}

	return "", ErrTicketExpired
}
