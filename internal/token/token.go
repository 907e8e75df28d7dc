// Package token encodes and verifies the signed bearer tokens handed out at login.
//
// A token is a compact HS256 JWT: header, claims (principal id, issued-at,
// expires-at, token id) and a keyed signature over both. The token id doubles
// as the session id, so revocation state never has to store the raw token.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"

	"github.com/civic-tally/tally/internal/shared"
)

// Claims is the verified content of a token.
type Claims struct {
	ID          string
	PrincipalID int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type wireClaims struct {
	PrincipalID int64 `json:"pid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide secret.
type Codec struct {
	secret []byte
	clock  clock.Clock
	parser *jwt.Parser
}

// NewCodec constructs a Codec. The secret must not be empty.
func NewCodec(secret string, clk clock.Clock) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret required")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Codec{
		secret: []byte(secret),
		clock:  clk,
		// Expiry is checked by Verify against the injected clock; Decode must
		// still accept expired tokens so logout can close their sessions.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Encode signs claims into the three-segment wire form.
func (c *Codec) Encode(claims Claims) (string, error) {
	if claims.ID == "" || claims.PrincipalID <= 0 {
		return "", errors.New("token: id and principal required")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return "", errors.New("token: expiry must follow issuance")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		PrincipalID: claims.PrincipalID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Decode checks the signature and returns the claims without looking at expiry.
func (c *Codec) Decode(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, shared.ErrTokenMalformed
	}
	var wc wireClaims
	_, err := c.parser.ParseWithClaims(raw, &wc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, fmt.Errorf("%w: %v", shared.ErrTokenSignatureInvalid, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", shared.ErrTokenMalformed, err)
	}
	if wc.PrincipalID <= 0 || wc.ID == "" || wc.IssuedAt == nil || wc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing claims", shared.ErrTokenMalformed)
	}
	return Claims{
		ID:          wc.ID,
		PrincipalID: wc.PrincipalID,
		IssuedAt:    wc.IssuedAt.Time,
		ExpiresAt:   wc.ExpiresAt.Time,
	}, nil
}

// Verify decodes raw and rejects it once its embedded expiry has passed.
func (c *Codec) Verify(raw string) (Claims, error) {
	claims, err := c.Decode(raw)
	if err != nil {
		return Claims{}, err
	}
	if !c.clock.Now().Before(claims.ExpiresAt) {
		return Claims{}, shared.ErrTokenExpired
	}
	return claims, nil
}
