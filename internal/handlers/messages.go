package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/zfogg/snapgram/internal/errors"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/util"
	"github.com/zfogg/snapgram/internal/websocket"
	"gorm.io/gorm"
)

// imagePreview is the conversation preview for a message without text
const imagePreview = "Sent an image"

// NewMessageEvent is the payload of the newMessage event
type NewMessageEvent struct {
	models.Message
	SenderInfo models.UserSummary `json:"sender_info"`
}

// NewConversationEvent is the payload of the newConversation event
type NewConversationEvent struct {
	User            models.UserSummary `json:"user"`
	LastMessage     string             `json:"last_message"`
	LastMessageTime time.Time          `json:"last_message_time"`
	ConversationID  string             `json:"conversation_id"`
	IsRequest       bool               `json:"is_request"`
}

// ConversationSummary is one row of a conversation list
type ConversationSummary struct {
	User            models.UserSummary `json:"user"`
	Bio             string             `json:"bio"`
	LastMessage     string             `json:"last_message"`
	LastMessageTime time.Time          `json:"last_message_time"`
	ConversationID  string             `json:"conversation_id"`
	IsRequest       bool               `json:"is_request"`
	IsOnline        bool               `json:"is_online"`
}

// SendMessage sends a direct message to :id. The first message between two
// users opens a conversation, which is a request unless the receiver already
// follows the sender. A receiver who declined the conversation blocks further
// messages.
// POST /api/v1/message/send/:id
func (h *Handlers) SendMessage(c *gin.Context) {
	senderID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	receiverID := c.Param("id")

	var req struct {
		Text     string `json:"text" binding:"max=5000"`
		ImageURL string `json:"image_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.ImageURL == "" {
		util.RespondBadRequest(c, "Message content required (text or image)")
		return
	}
	if senderID == receiverID {
		util.RespondBadRequest(c, "You cannot message yourself")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	sender, err := findUser(db, senderID)
	if err != nil {
		respondUserLookup(c, err)
		return
	}
	if _, err := findUser(db, receiverID); err != nil {
		respondUserLookup(c, err)
		return
	}

	receiverFollowsSender, err := follows(db, receiverID, senderID)
	if err != nil {
		util.RespondInternalError(c, "Failed to send message", err)
		return
	}

	conversation, err := findConversation(db, senderID, receiverID)
	if err != nil {
		util.RespondInternalError(c, "Failed to send message", err)
		return
	}
	if conversation != nil && conversation.IsDeclined && conversation.DeclinedBy != nil && *conversation.DeclinedBy == receiverID {
		c.JSON(http.StatusForbidden, gin.H{
			"code":        apierrors.ErrDeclined,
			"message":     "This user declined your messages",
			"is_declined": true,
		})
		return
	}

	preview := req.Text
	if preview == "" {
		preview = imagePreview
	}

	isNew := conversation == nil
	message := models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       req.Text,
		ImageURL:   req.ImageURL,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if isNew {
			a, b := models.OrderedPair(senderID, receiverID)
			conversation = &models.Conversation{
				UserAID:     a,
				UserBID:     b,
				InitiatorID: senderID,
				IsRequest:   !receiverFollowsSender,
			}
			if err := tx.Create(conversation).Error; err != nil {
				return err
			}
		}

		message.ConversationID = conversation.ID
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		conversation.LastMessage = preview
		conversation.LastMessageAt = message.CreatedAt
		return tx.Model(conversation).Updates(map[string]interface{}{
			"last_message":    preview,
			"last_message_at": message.CreatedAt,
		}).Error
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to send message", err)
		return
	}

	h.publish(receiverID, websocket.EventNewMessage, NewMessageEvent{
		Message:    message,
		SenderInfo: sender.Summary(),
	})
	if isNew {
		h.publish(receiverID, websocket.EventNewConversation, NewConversationEvent{
			User:            sender.Summary(),
			LastMessage:     preview,
			LastMessageTime: message.CreatedAt,
			ConversationID:  conversation.ID,
			IsRequest:       conversation.IsRequest,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"newMessage": message,
	})
}

// GetMessages returns the thread between the caller and :id
// GET /api/v1/message/all/:id
func (h *Handlers) GetMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	conversation, err := findConversation(db, userID, c.Param("id"))
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch messages", err)
		return
	}
	if conversation == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"messages":    []models.Message{},
			"is_declined": false,
			"declined_by": nil,
		})
		return
	}

	var messages []models.Message
	if err := db.Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch messages", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"conversation_id": conversation.ID,
		"messages":        messages,
		"is_request":      conversation.IsRequest,
		"is_declined":     conversation.IsDeclined,
		"declined_by":     conversation.DeclinedBy,
	})
}

// GetConversations lists the caller's conversations that are neither pending
// requests sent to them nor blocked by them
// GET /api/v1/message/conversations
func (h *Handlers) GetConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	h.listConversations(c, userID, "conversations", func(q *gorm.DB) *gorm.DB {
		return q.Where("(is_request = ? OR initiator_id = ?)", false, userID).
			Where("(declined_by IS NULL OR declined_by <> ?)", userID)
	})
}

// GetMessageRequests lists pending requests other users sent to the caller
// GET /api/v1/message/requests
func (h *Handlers) GetMessageRequests(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	h.listConversations(c, userID, "requests", func(q *gorm.DB) *gorm.DB {
		return q.Where("is_request = ? AND initiator_id <> ?", true, userID)
	})
}

// GetBlockedConversations lists conversations the caller declined
// GET /api/v1/message/blocked
func (h *Handlers) GetBlockedConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	h.listConversations(c, userID, "blocked", func(q *gorm.DB) *gorm.DB {
		return q.Where("is_declined = ? AND declined_by = ?", true, userID)
	})
}

// AcceptMessageRequest turns a request into a normal conversation. Only the
// receiver of the request can accept it.
// POST /api/v1/message/requests/:id/accept
func (h *Handlers) AcceptMessageRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	conversation, ok := h.loadConversation(c, db, c.Param("id"), userID)
	if !ok {
		return
	}
	if conversation.InitiatorID == userID {
		util.RespondForbidden(c, "Only the receiver can accept a message request")
		return
	}

	if err := db.Model(conversation).Update("is_request", false).Error; err != nil {
		util.RespondInternalError(c, "Failed to accept message request", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Message request accepted",
	})
}

// DeclineMessageRequest blocks the conversation for the other participant and
// tells them
// POST /api/v1/message/requests/:id/decline
func (h *Handlers) DeclineMessageRequest(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	conversation, ok := h.loadConversation(c, db, c.Param("id"), userID)
	if !ok {
		return
	}

	if err := db.Model(conversation).Updates(map[string]interface{}{
		"is_declined": true,
		"declined_by": userID,
		"is_request":  false,
	}).Error; err != nil {
		util.RespondInternalError(c, "Failed to decline message request", err)
		return
	}

	h.publish(conversation.Counterpart(userID), websocket.EventMessageRequestDeclined, websocket.ConversationStatePayload{
		ConversationID: conversation.ID,
		ActorUserID:    userID,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Message request declined",
	})
}

// UnblockConversation lifts a decline. Only the user who declined can.
// POST /api/v1/message/blocked/:id/unblock
func (h *Handlers) UnblockConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	conversation, ok := h.loadConversation(c, db, c.Param("id"), userID)
	if !ok {
		return
	}
	if conversation.DeclinedBy == nil || *conversation.DeclinedBy != userID {
		util.RespondForbidden(c, "You can only unblock conversations you blocked")
		return
	}

	if err := db.Model(conversation).Updates(map[string]interface{}{
		"is_declined": false,
		"declined_by": nil,
		"is_request":  false,
	}).Error; err != nil {
		util.RespondInternalError(c, "Failed to unblock conversation", err)
		return
	}

	h.publish(conversation.Counterpart(userID), websocket.EventConversationUnblocked, websocket.ConversationStatePayload{
		ConversationID: conversation.ID,
		ActorUserID:    userID,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Conversation unblocked successfully",
	})
}

func (h *Handlers) listConversations(c *gin.Context, userID, key string, scope func(*gorm.DB) *gorm.DB) {
	db := h.db.WithContext(c.Request.Context())

	var conversations []models.Conversation
	q := db.Where("(user_a_id = ? OR user_b_id = ?)", userID, userID)
	if err := scope(q).Order("updated_at DESC").Find(&conversations).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch "+key, err)
		return
	}

	ids := make([]string, 0, len(conversations))
	for i := range conversations {
		ids = append(ids, conversations[i].Counterpart(userID))
	}
	var users []models.User
	if len(ids) > 0 {
		if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
			util.RespondInternalError(c, "Failed to fetch "+key, err)
			return
		}
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for i := range conversations {
		conv := &conversations[i]
		other, ok := byID[conv.Counterpart(userID)]
		if !ok {
			continue
		}
		last := conv.LastMessageAt
		if last.IsZero() {
			last = conv.UpdatedAt
		}
		summaries = append(summaries, ConversationSummary{
			User:            other.Summary(),
			Bio:             other.Bio,
			LastMessage:     conv.LastMessage,
			LastMessageTime: last,
			ConversationID:  conv.ID,
			IsRequest:       conv.IsRequest,
			IsOnline:        h.isOnline(other.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		key:       summaries,
	})
}

// loadConversation fetches a conversation the caller participates in,
// responding itself when it cannot
func (h *Handlers) loadConversation(c *gin.Context, db *gorm.DB, id, userID string) (*models.Conversation, bool) {
	var conversation models.Conversation
	if err := db.First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "conversation")
		} else {
			util.RespondInternalError(c, "Failed to fetch conversation", err)
		}
		return nil, false
	}
	if !conversation.HasParticipant(userID) {
		util.RespondForbidden(c, "You are not part of this conversation")
		return nil, false
	}
	return &conversation, true
}

// findConversation returns the conversation between two users, or nil
func findConversation(db *gorm.DB, a, b string) (*models.Conversation, error) {
	userA, userB := models.OrderedPair(a, b)
	var conversation models.Conversation
	err := db.Where("user_a_id = ? AND user_b_id = ?", userA, userB).First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}
