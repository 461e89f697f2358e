package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/models"
	"github.com/zfogg/snapgram/internal/util"
	"gorm.io/gorm"
)

// Register creates a native account
// POST /api/v1/user/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req)
	if errors.Is(err, auth.ErrUserExists) {
		util.RespondConflict(c, "user")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "Failed to create account", err)
		return
	}

	logger.Log.Info("User registered", logger.WithUserID(user.ID))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user,
	})
}

// Login checks credentials and sets the session cookie the socket handshake
// also reads
// POST /api/v1/user/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		util.RespondUnauthorized(c, "incorrect email or password")
		return
	}
	if err != nil {
		util.RespondInternalError(c, "Failed to log in", err)
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, resp.Token, int(h.auth.TTL().Seconds()), "/", "", h.secureCookies, true)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      resp.Token,
		"user":       resp.User,
		"expires_at": resp.ExpiresAt,
	})
}

// Logout clears the session cookie
// GET /api/v1/user/logout
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// GetProfile returns a user with follow counts and presence
// GET /api/v1/user/:id/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	db := h.db.WithContext(c.Request.Context())
	var user models.User
	if err := db.First(&user, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.RespondNotFound(c, "user")
			return
		}
		util.RespondInternalError(c, "Failed to fetch user", err)
		return
	}

	var followers, following, posts int64
	db.Model(&models.Follow{}).Where("following_id = ?", targetID).Count(&followers)
	db.Model(&models.Follow{}).Where("follower_id = ?", targetID).Count(&following)
	db.Model(&models.Post{}).Where("author_id = ?", targetID).Count(&posts)

	isFollowing, err := follows(db, userID, targetID)
	if err != nil {
		util.RespondInternalError(c, "Failed to fetch user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"user":            user,
		"follower_count":  followers,
		"following_count": following,
		"post_count":      posts,
		"is_following":    isFollowing,
		"is_online":       h.isOnline(targetID),
	})
}

// FollowOrUnfollow toggles the follow edge from the caller to :id. A new
// follow notifies the target.
// POST /api/v1/user/followorunfollow/:id
func (h *Handlers) FollowOrUnfollow(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	if userID == targetID {
		util.RespondBadRequest(c, "You cannot follow/unfollow yourself")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	sender, err := findUser(db, userID)
	if err != nil {
		respondUserLookup(c, err)
		return
	}
	if _, err := findUser(db, targetID); err != nil {
		respondUserLookup(c, err)
		return
	}

	var (
		followed bool
		notes    []models.Notification
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", userID, targetID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		followed = true
		if err := tx.Create(&models.Follow{FollowerID: userID, FollowingID: targetID}).Error; err != nil {
			return err
		}
		var err error
		notes, err = createNotifications(tx, userID, models.NotificationFollow, nil, nil, targetID)
		return err
	})
	if err != nil {
		util.RespondInternalError(c, "Failed to update follow", err)
		return
	}

	h.deliverNotifications(sender, notes)

	message := "Unfollowed successfully"
	if followed {
		message = "Followed successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   message,
		"following": followed,
	})
}

func findUser(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func respondUserLookup(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "user")
		return
	}
	util.RespondInternalError(c, "Failed to fetch user", err)
}

// follows reports whether followerID follows followingID
func follows(db *gorm.DB, followerID, followingID string) (bool, error) {
	var count int64
	err := db.Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	return count > 0, err
}
