package chatrooms

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePublic     Type = "public"
	TypePrivate    Type = "private"
	TypeRestricted Type = "restricted"
	TypeClass      Type = "class"
	TypeSubject    Type = "subject"
)

var validTypes = map[Type]bool{
	TypePublic:     true,
	TypePrivate:    true,
	TypeRestricted: true,
	TypeClass:      true,
	TypeSubject:    true,
}

type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleMember    MemberRole = "member"
)

type Settings struct {
	SlowModeSeconds int  `json:"slow_mode_seconds"`
	JoinApproval    bool `json:"join_approval"`
}

type Room struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Type            Type      `json:"type"`
	Category        string    `json:"category,omitempty"`
	CreatedBy       uuid.UUID `json:"created_by"`
	MaxParticipants *int      `json:"max_participants,omitempty"`
	Rules           []string  `json:"rules"`
	PinnedMessages  []int64   `json:"pinned_messages"`
	Settings        Settings  `json:"settings"`

	// CurrentParticipants is always recomputed from the membership table,
	// never stored.
	CurrentParticipants int `json:"current_participants"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Member struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     MemberRole `json:"role"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type ListFilter struct {
	Type     *Type
	Category string
}
