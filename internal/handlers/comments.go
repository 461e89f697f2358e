package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/util"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeComment likes a comment. A new like notifies the comment author.
// GET /api/v1/comment/:id/like
func (h *Handlers) LikeComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	comment, ok := h.loadComment(c, db, c.Param("id"))
	if !ok {
		return
	}

	var notes []models.Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.CommentLike{CommentID: comment.ID, UserID: userID})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		var err error
		notes, err = createNotifications(tx, userID, models.NotificationCommentLike,
			&comment.PostID, &comment.ID, comment.AuthorID)
		return err
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to like comment", err)
		return
	}

	if len(notes) > 0 {
		if sender, err := findUser(db, userID); err == nil {
			h.deliverNotifications(sender, notes)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Comment liked",
	})
}

// DislikeComment removes a like from a comment
// GET /api/v1/comment/:id/dislike
func (h *Handlers) DislikeComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	comment, ok := h.loadComment(c, db, c.Param("id"))
	if !ok {
		return
	}

	if err := db.Where("comment_id = ? AND user_id = ?", comment.ID, userID).
		Delete(&models.CommentLike{}).Error; err != nil {
		util.RespondInternalError(c, "Failed to dislike comment", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Comment disliked",
	})
}

// ReplyToComment replies to a comment. Replies stay one level deep: replying
// to a reply attaches to its top-level comment and records whom it answers.
// The answered author and the post owner are notified once each.
// POST /api/v1/comment/:id/reply
func (h *Handlers) ReplyToComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		util.RespondBadRequest(c, "Text is required")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	target, ok := h.loadComment(c, db, c.Param("id"))
	if !ok {
		return
	}

	top := target
	if target.ParentID != nil {
		parent, ok := h.loadComment(c, db, *target.ParentID)
		if !ok {
			return
		}
		top = parent
	}

	var post models.Post
	if err := db.First(&post, "id = ?", top.PostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "post")
		} else {
			util.RespondInternalError(c, "Failed to fetch post", err)
		}
		return
	}

	reply := models.Comment{
		PostID:        top.PostID,
		AuthorID:      userID,
		ParentID:      &top.ID,
		ReplyToUserID: &target.AuthorID,
		Text:          req.Text,
	}

	var notes []models.Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reply).Error; err != nil {
			return err
		}
		replied, err := createNotifications(tx, userID, models.NotificationReply,
			&post.ID, &reply.ID, target.AuthorID)
		if err != nil {
			return err
		}
		notes = append(notes, replied...)

		if post.AuthorID == target.AuthorID {
			return nil
		}
		owner, err := createNotifications(tx, userID, models.NotificationComment,
			&post.ID, &reply.ID, post.AuthorID)
		notes = append(notes, owner...)
		return err
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to add reply", err)
		return
	}

	if sender, err := findUser(db, userID); err == nil {
		reply.Author = sender
		h.deliverNotifications(sender, notes)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Reply added",
		"reply":   reply,
	})
}

// loadComment fetches a comment, responding itself when it cannot
func (h *Handlers) loadComment(c *gin.Context, db *gorm.DB, id string) (*models.Comment, bool) {
	var comment models.Comment
	if err := db.First(&comment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "comment")
		} else {
			util.RespondInternalError(c, "Failed to fetch comment", err)
		}
		return nil, false
	}
	return &comment, true
}
