package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// @Summary List community posts
// @Tags Community
// @Produce json
// @Success 200 {object} PostsResponse
// @Router /community-posts [get]
func (h *Handler) listPosts(c *gin.Context) {
	log := h.logger.WithField("method", "listPosts")
	posts, err := h.communityService.ListPosts(c.Request.Context())
	if err != nil {
		h.fail(c, log, err, "posts not found")
		return
	}
	c.JSON(http.StatusOK, PostsResponse{Posts: posts})
}

// @Summary Create a community post
// @Description Media are base64 data URLs or external links; data URLs starting with data:video are videos
// @Tags Community
// @Accept json
// @Produce json
// @Param post body CreatePostRequest true "Post"
// @Success 201 {object} models.CommunityPost
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /community-posts [post]
func (h *Handler) createPost(c *gin.Context) {
	var input CreatePostRequest
	log := h.logger.WithField("method", "createPost")
	if !h.bind(c, log, &input) {
		return
	}
	post, err := h.communityService.CreatePost(c.Request.Context(), input.UserID, input.Description, input.MediaBase64)
	if err != nil {
		h.fail(c, log, err, "post not found")
		return
	}
	c.JSON(http.StatusCreated, post)
}

// @Summary Like a community post
// @Description One like per user; anonymous likes share the "anon" identity
// @Tags Community
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param like body LikeRequest false "Who likes"
// @Success 200 {object} models.CommunityPost
// @Failure 404 {object} map[string]string "Post not found"
// @Router /community-posts/{id}/like [post]
func (h *Handler) likePost(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	log := h.logger.WithField("method", "likePost").WithField("id", id)

	var input LikeRequest
	if !h.bindOptional(c, log, &input) {
		return
	}
	post, err := h.communityService.LikePost(c.Request.Context(), id, input.UserID)
	if err != nil {
		h.fail(c, log, err, "Post not found")
		return
	}
	c.JSON(http.StatusOK, post)
}

// @Summary List community events
// @Tags Community
// @Produce json
// @Success 200 {object} EventsResponse
// @Router /community-events [get]
func (h *Handler) listEvents(c *gin.Context) {
	log := h.logger.WithField("method", "listEvents")
	events, err := h.communityService.ListEvents(c.Request.Context())
	if err != nil {
		h.fail(c, log, err, "events not found")
		return
	}
	c.JSON(http.StatusOK, EventsResponse{Events: events})
}

// @Summary Create a community event
// @Tags Community
// @Accept json
// @Produce json
// @Param event body CreateEventRequest true "Event"
// @Success 201 {object} models.CommunityEvent
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /community-events [post]
func (h *Handler) createEvent(c *gin.Context) {
	var input CreateEventRequest
	log := h.logger.WithField("method", "createEvent")
	if !h.bind(c, log, &input) {
		return
	}
	event, err := h.communityService.CreateEvent(c.Request.Context(), input.Title, input.Location, input.StartsAt)
	if err != nil {
		h.fail(c, log, err, "event not found")
		return
	}
	c.JSON(http.StatusCreated, event)
}
