package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Realtime is the event router handlers publish to once their write has
// committed. Delivery is best effort and never affects the response.
type Realtime interface {
	Deliver(userID, event string, payload interface{}) bool
	IsOnline(userID string) bool
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	db       *gorm.DB
	auth     *auth.Service
	realtime Realtime

	secureCookies bool
	authLimit     gin.HandlerFunc
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, authService *auth.Service, realtime Realtime) *Handlers {
	return &Handlers{
		db:       db,
		auth:     authService,
		realtime: realtime,
	}
}

// SetSecureCookies marks the session cookie Secure, for HTTPS deployments
func (h *Handlers) SetSecureCookies(secure bool) {
	h.secureCookies = secure
}

// SetAuthRateLimit guards login and registration with mw
func (h *Handlers) SetAuthRateLimit(mw gin.HandlerFunc) {
	h.authLimit = mw
}

// publish hands an event for userID to the router. Call it only after the
// durable write it describes has committed.
func (h *Handlers) publish(userID, event string, payload interface{}) {
	if h.realtime == nil || userID == "" {
		return
	}
	if !h.realtime.Deliver(userID, event, payload) {
		logger.Log.Debug("Realtime event not delivered",
			logger.WithUserID(userID),
			logger.WithEvent(event),
			zap.String("reason", "offline"),
		)
	}
}

func (h *Handlers) isOnline(userID string) bool {
	return h.realtime != nil && h.realtime.IsOnline(userID)
}
