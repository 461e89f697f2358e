package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/util"
	"github.com/zfogg/snapgram/internal/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddPost creates a captioned post
// POST /api/v1/post/addpost
func (h *Handlers) AddPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Caption  string `json:"caption" binding:"max=2200"`
		ImageURL string `json:"image_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Caption) == "" && req.ImageURL == "" {
		util.RespondBadRequest(c, "caption or image is required")
		return
	}

	post := models.Post{
		AuthorID: userID,
		Caption:  req.Caption,
		ImageURL: req.ImageURL,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&post).Error; err != nil {
		util.RespondInternalError(c, "Failed to create post", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"post":    post,
	})
}

// LikePost likes a post. A new like notifies the owner.
// GET /api/v1/post/:id/like
func (h *Handlers) LikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	post, ok := h.loadPost(c, db, c.Param("id"))
	if !ok {
		return
	}

	var notes []models.Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.PostLike{PostID: post.ID, UserID: userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error; err != nil {
			return err
		}
		var err error
		notes, err = createNotifications(tx, userID, models.NotificationLike, &post.ID, nil, post.AuthorID)
		return err
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to like post", err)
		return
	}

	if len(notes) > 0 {
		if sender, err := findUser(db, userID); err == nil {
			h.deliverNotifications(sender, notes)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Post liked",
	})
}

// DislikePost removes a like. The owner gets a live notice that is not stored.
// GET /api/v1/post/:id/dislike
func (h *Handlers) DislikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	post, ok := h.loadPost(c, db, c.Param("id"))
	if !ok {
		return
	}

	removed := false
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", post.ID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.Post{}).Where("id = ? AND like_count > 0", post.ID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to dislike post", err)
		return
	}

	if removed && post.AuthorID != userID {
		if sender, err := findUser(db, userID); err == nil {
			h.publish(post.AuthorID, websocket.EventNotification, NotificationEvent{
				Type:      models.NotificationDislike,
				Sender:    sender.Summary(),
				PostID:    &post.ID,
				Message:   "Post was unliked",
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Post disliked",
	})
}

// AddComment comments on a post and notifies the owner
// POST /api/v1/post/:id/comment
func (h *Handlers) AddComment(c *gin.Context) {
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
	post, ok := h.loadPost(c, db, c.Param("id"))
	if !ok {
		return
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Text:     req.Text,
	}
	var notes []models.Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		var err error
		notes, err = createNotifications(tx, userID, models.NotificationComment, &post.ID, &comment.ID, post.AuthorID)
		return err
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to add comment", err)
		return
	}

	sender, err := findUser(db, userID)
	if err == nil {
		comment.Author = sender
		h.deliverNotifications(sender, notes)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Comment Added",
		"comment": comment,
	})
}

// GetPostComments lists the comments and replies of a post, oldest first
// GET /api/v1/post/:id/comment/all
func (h *Handlers) GetPostComments(c *gin.Context) {
	if _, ok := util.GetUserIDFromContext(c); !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	post, ok := h.loadPost(c, db, c.Param("id"))
	if !ok {
		return
	}

	var comments []models.Comment
	if err := db.Preload("Author").
		Where("post_id = ?", post.ID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch comments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"comments": comments,
	})
}

// loadPost fetches a post, responding itself when it cannot
func (h *Handlers) loadPost(c *gin.Context, db *gorm.DB, id string) (*models.Post, bool) {
	var post models.Post
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "post")
		} else {
			util.RespondInternalError(c, "Failed to fetch post", err)
		}
		return nil, false
	}
	return &post, true
}
