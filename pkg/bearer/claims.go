package bearer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a token cannot be parsed as a JWT.
var ErrNotJWT = errors.New("bearer: token is not a JWT")

var parser = jwt.NewParser()

// ExpiresAt reads the exp claim without verifying the signature. The client
// never holds the signing key; the server stays the authority on validity.
// A JWT without exp yields the zero time.
func ExpiresAt(token string) (time.Time, error) {
	claims, err := unverified(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Subject reads the sub claim without verifying the signature.
func Subject(token string) (string, error) {
	claims, err := unverified(token)
	if err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotJWT, err)
	}
	return sub, nil
}

func unverified(token string) (jwt.MapClaims, error) {
	if token == "" {
		return nil, ErrNotJWT
	}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}
	return claims, nil
}
