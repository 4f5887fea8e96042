// Package controlauth protects the control API (trigger/devices/stream
// routes) with a single long-lived operator bearer JWT -- there is no
// per-device pairing handshake in this domain, just one trusted caller.
package controlauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/connect-alarm-go/internal/config"
)

const (
	tokenAudience = "connect-alarm-client"
	tokenIssuer   = "connect-alarm"
)

// Claims identifies the caller allowed to trigger alarms.
type Claims struct {
	Subject string
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type operatorClaims struct {
	jwt.RegisteredClaims
}

// IssueToken mints a bearer token for sub, valid for expirySec seconds.
// It is not exposed over HTTP; within this repository only the tests call
// it.
func IssueToken(cfg config.Config, sub string, expirySec int) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expirySec) * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// VerifyToken parses and validates a bearer token against cfg.JWTSecret.
func VerifyToken(cfg config.Config, token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
	)

	claims := &operatorClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{Subject: claims.Subject}, nil
}
