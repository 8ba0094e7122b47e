// Package auth implements the credential verifier: issuing and validating
// signed, time-bounded client tokens against a configured credential set.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
)

// Issuer signs and verifies client tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	users  map[string]string
	now    func() time.Time
}

// NewIssuer creates an Issuer. users maps usernames to passwords.
func NewIssuer(secret string, ttl time.Duration, users map[string]string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}
}

// Issue validates the credential pair and returns a signed token embedding
// the subject and expiry. On failure no token is produced.
func (i *Issuer) Issue(username, password string) (string, error) {
	pw, ok := i.users[username]
	if !ok || pw != password {
		return "", gwerrors.ErrInvalidCredentials
	}

	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature integrity and expiry and returns the embedded
// subject. It never mutates state; the result is a pure function of the
// token and the signing secret.
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonMalformedToken)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonInvalidSignature)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonExpiredToken)
		default:
			return "", gwerrors.ErrUnauthorized.WithDetails(err.Error())
		}
	}

	if !token.Valid {
		return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonMalformedToken)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonMalformedToken)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", gwerrors.ErrUnauthorized.WithReason(gwerrors.ReasonMalformedToken)
	}
	return sub, nil
}
