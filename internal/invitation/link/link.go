// Package link signs the invitation links embedded in reminders.
package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/toddfishman/meetini/internal/config"
)

const (
	issuer   = "meetini"
	audience = "invitation"
)

var (
	ErrInvalidToken = errors.New("invalid_link_token")
	ErrExpiredToken = errors.New("expired_link_token")
)

// Signer issues short-lived HS256 tokens bound to one invitation. Without a
// secret it still builds plain links but refuses to verify tokens.
type Signer struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
}

func New(cfg config.Config) *Signer {
	return NewSigner(cfg.PublicBaseURL, cfg.Reminders.LinkSecret, cfg.Reminders.LinkTTL)
}

func NewSigner(baseURL, secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = config.DefaultLinkTTL
	}
	return &Signer{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:  []byte(strings.TrimSpace(secret)),
		ttl:     ttl,
	}
}

func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

func (s *Signer) Sign(invitationID snowflake.ID, now time.Time) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidToken
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   invitationID.String(),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return signed, nil
}

// Verify returns the invitation the token was issued for.
func (s *Signer) Verify(raw string, now time.Time) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if !s.Enabled() || raw == "" {
		return 0, ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// ActionURL is the link a participant follows from a reminder. The token is
// omitted when signing is disabled.
func (s *Signer) ActionURL(invitationID snowflake.ID, now time.Time) (string, error) {
	base := fmt.Sprintf("%s/invitations/%s", s.baseURL, invitationID.String())
	if !s.Enabled() {
		return base, nil
	}
	token, err := s.Sign(invitationID, now)
	if err != nil {
		return "", err
	}
	return base + "?" + url.Values{"token": {token}}.Encode(), nil
}
