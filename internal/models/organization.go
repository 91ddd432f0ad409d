package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant. Every other entity belongs to exactly
// one organization and is never visible outside it.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
