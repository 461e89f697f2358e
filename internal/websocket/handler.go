package websocket

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/util"
	"go.uber.org/zap"
)

// maxStatusQuery bounds a bulk presence query
const maxStatusQuery = 100

// HandlerConfig configures the upgrade endpoint
type HandlerConfig struct {
	// OriginPatterns are the hosts allowed to open sockets cross-origin
	OriginPatterns []string
	// AllowAnonymous accepts connections without a credential as roster-only
	// viewers
	AllowAnonymous bool
	Client         ClientOptions
}

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub    *Hub
	tokens auth.TokenValidator
	cfg    HandlerConfig
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, tokens auth.TokenValidator, cfg HandlerConfig) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		cfg:    cfg,
	}
}

// HandleWebSocket upgrades the request and runs the connection until it ends.
// The user id comes from the same token the HTTP API issues: cookie, bearer
// header, or ?token=. A userId query parameter is only checked against it.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  h.cfg.OriginPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID, h.cfg.Client)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")
	client.MarkConnected()

	h.hub.Attach(client)

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects
}

// authenticate resolves the connecting user, responding itself on failure
func (h *Handler) authenticate(c *gin.Context) (string, bool) {
	claimed := c.Query("userId")

	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		if !h.cfg.AllowAnonymous {
			util.RespondUnauthorized(c, "no authentication token provided")
			return "", false
		}
		if claimed != "" {
			util.RespondForbidden(c, "userId requires a matching token")
			return "", false
		}
		return "", true
	}

	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, auth.ErrTokenExpired) {
			msg = "token expired"
		}
		util.RespondUnauthorized(c, msg)
		return "", false
	}

	if claimed != "" && claimed != userID {
		logger.Log.Warn("Socket userId does not match token",
			logger.WithUserID(userID),
			zap.String("claimed", claimed),
			logger.WithIP(c.ClientIP()),
		)
		util.RespondForbidden(c, "userId does not match token")
		return "", false
	}
	return userID, true
}

// HandleOnlineUsers returns the global roster
func (h *Handler) HandleOnlineUsers(c *gin.Context) {
	users := h.hub.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
	})
}

// HandleOnlineStatus answers a bulk presence query
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "user_ids is required")
		return
	}
	if len(req.UserIDs) > maxStatusQuery {
		util.RespondValidationError(c, "user_ids", "too many user ids")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses": h.hub.OnlineStatuses(req.UserIDs),
	})
}

// HandleStats returns hub counters
func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}
