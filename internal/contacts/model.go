package contacts

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOnline    Status = "online"
	StatusOffline   Status = "offline"
	StatusAway      Status = "away"
	StatusBusy      Status = "busy"
	StatusInvisible Status = "invisible"
)

var validStatuses = map[Status]bool{
	StatusOnline:    true,
	StatusOffline:   true,
	StatusAway:      true,
	StatusBusy:      true,
	StatusInvisible: true,
}

// Contact is one directed edge in the owner's address book. The pair
// (owner, contact) is unique; blocking is a flag on the edge, not a removal.
type Contact struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	ContactID   uuid.UUID  `json:"contact_id"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role,omitempty"`
	Status      Status     `json:"status"`
	IsFavorite  bool       `json:"is_favorite"`
	IsBlocked   bool       `json:"is_blocked"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
	BlockReason string     `json:"block_reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Tags        []string   `json:"tags"`
	Groups      []string   `json:"groups"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ListFilter struct {
	IsFavorite *bool
	IsBlocked  *bool
	Tags       []string
}
