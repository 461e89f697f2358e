package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under api. requireAuth guards every route
// that acts on behalf of a user.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	limited := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if h.authLimit == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{h.authLimit, handler}
	}

	user := api.Group("/user")
	{
		user.POST("/register", limited(h.Register)...)
		user.POST("/login", limited(h.Login)...)
		user.GET("/logout", h.Logout)
		user.GET("/:id/profile", requireAuth, h.GetProfile)
		user.POST("/followorunfollow/:id", requireAuth, h.FollowOrUnfollow)
	}

	post := api.Group("/post", requireAuth)
	{
		post.POST("/addpost", h.AddPost)
		post.GET("/:id/like", h.LikePost)
		post.GET("/:id/dislike", h.DislikePost)
		post.POST("/:id/comment", h.AddComment)
		post.GET("/:id/comment/all", h.GetPostComments)
	}

	comment := api.Group("/comment", requireAuth)
	{
		comment.GET("/:id/like", h.LikeComment)
		comment.GET("/:id/dislike", h.DislikeComment)
		comment.POST("/:id/reply", h.ReplyToComment)
	}

	message := api.Group("/message", requireAuth)
	{
		message.POST("/send/:id", h.SendMessage)
		message.GET("/all/:id", h.GetMessages)
		message.GET("/conversations", h.GetConversations)
		message.GET("/requests", h.GetMessageRequests)
		message.POST("/requests/:id/accept", h.AcceptMessageRequest)
		message.POST("/requests/:id/decline", h.DeclineMessageRequest)
		message.GET("/blocked", h.GetBlockedConversations)
		message.POST("/blocked/:id/unblock", h.UnblockConversation)
	}

	notification := api.Group("/notification", requireAuth)
	{
		notification.GET("", h.GetNotifications)
		notification.PUT("/read", h.MarkNotificationsRead)
		notification.DELETE("", h.DeleteNotifications)
	}
}
