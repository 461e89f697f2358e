package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is a direct-message thread between two users. UserAID and
// UserBID are stored in sorted order so a pair maps to exactly one row.
type Conversation struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserAID       string    `gorm:"uniqueIndex:idx_conversation_pair;not null" json:"user_a_id"`
	UserBID       string    `gorm:"uniqueIndex:idx_conversation_pair;index;not null" json:"user_b_id"`
	InitiatorID   string    `gorm:"not null" json:"initiator_id"`
	IsRequest     bool      `gorm:"default:false" json:"is_request"`
	IsDeclined    bool      `gorm:"default:false" json:"is_declined"`
	DeclinedBy    *string   `json:"declined_by"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderedPair returns the two ids sorted, the key a conversation is stored under
func OrderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Counterpart returns the participant that is not userID
func (c *Conversation) Counterpart(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is a single direct message
type Message struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"index;not null" json:"conversation_id"`
	SenderID       string    `gorm:"not null" json:"sender_id"`
	ReceiverID     string    `gorm:"not null" json:"receiver_id"`
	Text           string    `json:"text"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}
