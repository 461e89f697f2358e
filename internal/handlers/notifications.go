package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/util"
	"github.com/zfogg/snapgram/internal/websocket"
	"gorm.io/gorm"
)

// NotificationEvent is the payload of the notification event and the shape
// of a listed notification
type NotificationEvent struct {
	ID        string             `json:"id,omitempty"`
	Type      string             `json:"type"`
	Sender    models.UserSummary `json:"sender"`
	PostID    *string            `json:"post_id,omitempty"`
	CommentID *string            `json:"comment_id,omitempty"`
	Message   string             `json:"message,omitempty"`
	Read      bool               `json:"read"`
	CreatedAt time.Time          `json:"created_at"`
}

func newNotificationEvent(n *models.Notification, sender *models.User) NotificationEvent {
	ev := NotificationEvent{
		ID:        n.ID,
		Type:      n.Type,
		PostID:    n.PostID,
		CommentID: n.CommentID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
	if sender != nil {
		ev.Sender = sender.Summary()
	}
	return ev
}

// createNotifications stores one notification per recipient inside tx,
// skipping the sender and repeated recipients
func createNotifications(tx *gorm.DB, senderID, kind string, postID, commentID *string, recipients ...string) ([]models.Notification, error) {
	seen := map[string]bool{senderID: true}
	var created []models.Notification
	for _, recipient := range recipients {
		if recipient == "" || seen[recipient] {
			continue
		}
		seen[recipient] = true

		n := models.Notification{
			RecipientID: recipient,
			SenderID:    senderID,
			Type:        kind,
			PostID:      postID,
			CommentID:   commentID,
		}
		if err := tx.Create(&n).Error; err != nil {
			return nil, err
		}
		created = append(created, n)
	}
	return created, nil
}

// deliverNotifications pushes committed notifications to their recipients
func (h *Handlers) deliverNotifications(sender *models.User, notes []models.Notification) {
	for i := range notes {
		h.publish(notes[i].RecipientID, websocket.EventNotification, newNotificationEvent(&notes[i], sender))
	}
}

// GetNotifications lists the caller's notifications, newest first
// GET /api/v1/notification
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var notes []models.Notification
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Sender").
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Find(&notes).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch notifications", err)
		return
	}

	events := make([]NotificationEvent, 0, len(notes))
	unread := 0
	for i := range notes {
		events = append(events, newNotificationEvent(&notes[i], notes[i].Sender))
		if !notes[i].Read {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": events,
		"unread":        unread,
	})
}

// MarkNotificationsRead marks every unread notification of the caller read
// PUT /api/v1/notification/read
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Update("read", true)
	if result.Error != nil {
		util.RespondInternalError(c, "Failed to update notifications", result.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": result.RowsAffected,
	})
}

// DeleteNotifications removes every notification of the caller
// DELETE /api/v1/notification
func (h *Handlers) DeleteNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).
		Where("recipient_id = ?", userID).
		Delete(&models.Notification{}).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
