package v1

import (
	"github.com/gin-gonic/gin"
)

// MaxBodyBytes - предельный размер тела запроса
const MaxBodyBytes = 10 << 20

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.Use(BodyLimitMiddleware(MaxBodyBytes))

	// Маршрут для проверки связи клиентом
	api.GET("/ping", h.ping)

	issues := api.Group("/issues")
	{
		issues.GET("", h.listIssues)
		issues.POST("", h.createIssue)
		issues.GET("/:id", h.getIssue)
		issues.POST("/:id/vote", h.voteIssue)
		issues.POST("/:id/comments", h.addComment)
		issues.POST("/:id/contributions", h.addContribution)
		issues.POST("/:id/contributions/:cid/vote", h.voteContribution)
		// Смена статуса - только для администраторов
		issues.PUT("/:id/status", APIKeyAuthMiddleware(h.cfg, h.logger), h.updateStatus)
	}
	api.GET("/stats", h.getStats)

	posts := api.Group("/community-posts")
	{
		posts.GET("", h.listPosts)
		posts.POST("", h.createPost)
		posts.POST("/:id/like", h.likePost)
	}

	events := api.Group("/community-events")
	{
		events.GET("", h.listEvents)
		events.POST("", h.createEvent)
	}

	profile := api.Group("/profile")
	{
		profile.POST("/username-check", h.checkUsername)
		profile.GET("/:userId", h.getProfile)
		profile.PUT("/:userId", h.updateProfile)
		profile.POST("/:userId/change-password", h.changePassword)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
