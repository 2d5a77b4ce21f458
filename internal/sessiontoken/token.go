// Package sessiontoken mints and verifies the signed payloads embedded in
// session QR codes. A token is scoped to one session and expires with the
// session window, so a photographed QR code stops working once the window
// closes.
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the QR token payload.
type Claims struct {
	SessionID int64 `json:"sid"`
	ClassID   int64 `json:"cid"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies QR tokens with a shared HS256 key.
type Issuer struct {
	issuer string
	key    []byte
}

// New creates an issuer.
func New(issuer, key string) *Issuer {
	return &Issuer{issuer: issuer, key: []byte(key)}
}

// Issue signs a token for a session, valid until the window closes.
func (i *Issuer) Issue(sessionID, classID int64, expiresAt time.Time) (string, error) {
	claims := Claims{
		SessionID: sessionID,
		ClassID:   classID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   fmt.Sprintf("session:%d", sessionID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse validates a token and returns its claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
