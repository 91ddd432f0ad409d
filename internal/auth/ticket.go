// Package auth issues and validates short-lived tickets for websocket
// connections, which cannot carry the identity headers on upgrade.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/issuedesk/backend/internal/models"
)

var (
	ErrInvalidTicket = errors.New("invalid ticket")
)

// TicketClaims holds the caller identity carried by a realtime ticket.
type TicketClaims struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// TicketService mints and validates single-use realtime tickets.
type TicketService struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketService creates a ticket service. TTL is in seconds; tickets are
// meant to be redeemed immediately after minting.
func NewTicketService(secret string, ttlSeconds int) *TicketService {
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	return &TicketService{
		secret: []byte(secret),
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

// TTL returns the ticket lifetime.
func (s *TicketService) TTL() time.Duration {
	return s.ttl
}

// Mint creates a ticket for the given identity.
func (s *TicketService) Mint(identity models.Identity) (string, error) {
	claims := TicketClaims{
		UserID: identity.UserID,
		OrgID:  identity.OrganizationID,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a ticket, returning the caller identity.
func (s *TicketService) Validate(ticket string) (models.Identity, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTicket
		}
		return s.secret, nil
	})
	if err != nil {
		return models.Identity{}, ErrInvalidTicket
	}
	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return models.Identity{}, ErrInvalidTicket
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Identity{}, ErrInvalidTicket
	}
	return models.Identity{
		UserID:         claims.UserID,
		OrganizationID: claims.OrgID,
		Role:           role,
	}, nil
}
