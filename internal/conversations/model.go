package conversations

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeDirect       Type = "direct"
	TypeGroup        Type = "group"
	TypeClass        Type = "class"
	TypeBroadcast    Type = "broadcast"
	TypeAnnouncement Type = "announcement"
)

var validTypes = map[Type]bool{
	TypeDirect:       true,
	TypeGroup:        true,
	TypeClass:        true,
	TypeBroadcast:    true,
	TypeAnnouncement: true,
}

type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleReadonly  Role = "readonly"
)

var validRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleModerator: true,
	RoleMember:    true,
	RoleReadonly:  true,
}

// Settings is the per-conversation policy document, stored as JSONB and
// enforced at send and receipt time.
type Settings struct {
	AllowFileSharing  bool  `json:"allow_file_sharing"`
	MaxAttachmentSize int64 `json:"max_attachment_size"`
	ReadReceipts      bool  `json:"read_receipts"`
	RetentionDays     int   `json:"retention_days"`
}

func DefaultSettings() Settings {
	return Settings{
		AllowFileSharing:  true,
		MaxAttachmentSize: 25 << 20,
		ReadReceipts:      true,
	}
}

type Participant struct {
	UserID      uuid.UUID  `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        Role       `json:"role"`
	UnreadCount int        `json:"unread_count"`
	IsActive    bool       `json:"is_active"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

// LastMessage is the denormalized listing snapshot, updated in the same
// transaction as the unread increments.
type LastMessage struct {
	ID       int64     `json:"id,string"`
	Preview  string    `json:"preview"`
	SenderID uuid.UUID `json:"sender_id"`
	At       time.Time `json:"at"`
}

type Conversation struct {
	ID           uuid.UUID     `json:"id"`
	Type         Type          `json:"type"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	CreatedBy    uuid.UUID     `json:"created_by"`
	Settings     Settings      `json:"settings"`
	LastMessage  *LastMessage  `json:"last_message,omitempty"`
	IsActive     bool          `json:"is_active"`
	IsArchived   bool          `json:"is_archived"`
	Participants []Participant `json:"participants,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListFilter narrows getConversationsForUser. Nil pointer means "don't care".
type ListFilter struct {
	Type      *Type
	Active    *bool
	Archived  *bool
	HasUnread bool
}
