package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types
const (
	NotificationFollow      = "follow"
	NotificationLike        = "like"
	NotificationDislike     = "dislike"
	NotificationComment     = "comment"
	NotificationReply       = "reply"
	NotificationCommentLike = "comment_like"
)

// Notification is a durable record that SenderID did something to RecipientID.
// The realtime push of the same record is best effort; this row is the source
// of truth.
type Notification struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RecipientID string    `gorm:"index;not null" json:"recipient_id"`
	SenderID    string    `gorm:"not null" json:"sender_id"`
	Sender      *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Type        string    `gorm:"not null" json:"type"`
	PostID      *string   `json:"post_id,omitempty"`
	CommentID   *string   `json:"comment_id,omitempty"`
	Read        bool      `gorm:"default:false" json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}
