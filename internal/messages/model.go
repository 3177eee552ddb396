package messages

import (
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentFile     ContentType = "file"
	ContentAudio    ContentType = "audio"
	ContentVideo    ContentType = "video"
	ContentLocation ContentType = "location"
	ContentSystem   ContentType = "system"
)

var validContentTypes = map[ContentType]bool{
	ContentText:     true,
	ContentImage:    true,
	ContentFile:     true,
	ContentAudio:    true,
	ContentVideo:    true,
	ContentLocation: true,
	ContentSystem:   true,
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

const MaxContentLength = 10000

type Attachment struct {
	Filename     string `json:"filename"`
	Mime         string `json:"mime"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Receipt is one user's read or delivery acknowledgment. At most one per
// (message, user, kind); repeated acknowledgments are upserts.
type Receipt struct {
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

// Reaction is keyed by user: reacting again replaces the emoji.
type Reaction struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
	At     time.Time `json:"at"`
}

type Message struct {
	ID             int64        `json:"id,string"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	SenderID       uuid.UUID    `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	SenderRole     string       `json:"sender_role"`
	Content        string       `json:"content"`
	ContentType    ContentType  `json:"content_type"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReplyToID      *int64       `json:"reply_to_id,string,omitempty"`
	Priority       Priority     `json:"priority"`
	Edited         bool         `json:"edited"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	Deleted        bool         `json:"deleted"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	ReadBy         []Receipt    `json:"read_by,omitempty"`
	DeliveredTo    []Receipt    `json:"delivered_to,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Tombstone strips the content window from a deleted message while keeping
// its identity, so history and reply references stay resolvable.
func (m *Message) Tombstone() {
	m.Content = ""
	m.ContentType = ContentText
	m.Attachments = nil
	m.Reactions = nil
	m.Deleted = true
}
