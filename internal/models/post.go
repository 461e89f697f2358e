package models

import (
	"time"

	"gorm.io/gorm"
)

// Post is a captioned post. Media upload is handled elsewhere.
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AuthorID  string    `gorm:"index;not null" json:"author_id"`
	Author    *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Caption   string    `json:"caption"`
	ImageURL  string    `json:"image_url"`
	LikeCount int       `gorm:"default:0" json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostLike records that UserID liked PostID
type PostLike struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID    string    `gorm:"uniqueIndex:idx_post_like;not null" json:"post_id"`
	UserID    string    `gorm:"uniqueIndex:idx_post_like;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is a comment on a post, or a reply when ParentID is set
type Comment struct {
	ID       string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID   string  `gorm:"index;not null" json:"post_id"`
	AuthorID string  `gorm:"index;not null" json:"author_id"`
	Author   *User   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	ParentID *string `gorm:"index" json:"parent_id,omitempty"`
	// ReplyToUserID is the author of the comment a reply answers
	ReplyToUserID *string   `json:"reply_to_user_id,omitempty"`
	Text          string    `gorm:"not null" json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

// CommentLike records that UserID liked CommentID
type CommentLike struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CommentID string    `gorm:"uniqueIndex:idx_comment_like;not null" json:"comment_id"`
	UserID    string    `gorm:"uniqueIndex:idx_comment_like;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (l *PostLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

func (l *CommentLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}
