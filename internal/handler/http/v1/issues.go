package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
)

// @Summary Report a new issue
// @Description Create an issue. The photo is accepted as a base64 data URL; EXIF GPS is extracted when present.
// @Tags Issues
// @Accept json
// @Produce json
// @Param issue body CreateIssueRequest true "Issue creation request"
// @Success 201 {object} IssueResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 413 {object} map[string]string "Request body too large"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /issues [post]
func (h *Handler) createIssue(c *gin.Context) {
	var input CreateIssueRequest
	log := h.logger.WithField("method", "createIssue")
	if !h.bind(c, log, &input) {
		return
	}

	issue, err := h.issueService.CreateIssue(c.Request.Context(), DTOToCreateIssuePayload(input))
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusCreated, ModelToIssueResponse(issue))
}

// @Summary List issues
// @Description List issues, newest first
// @Tags Issues
// @Produce json
// @Param status query string false "Filter by status"
// @Param category query string false "Filter by category"
// @Param wardId query string false "Filter by ward"
// @Param q query string false "Search in title and address"
// @Success 200 {object} IssuesResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /issues [get]
func (h *Handler) listIssues(c *gin.Context) {
	log := h.logger.WithField("method", "listIssues")
	filter := models.IssueFilter{
		Status:   models.IssueStatus(c.Query("status")),
		Category: models.IssueCategory(c.Query("category")),
		WardID:   c.Query("wardId"),
		Query:    c.Query("q"),
	}
	if filter.Status != "" && h.validate.Var(string(filter.Status), "oneof=submitted pending_verification under_review in_progress resolved escalated") != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	if filter.Category != "" && h.validate.Var(string(filter.Category), "oneof=pothole graffiti streetlight garbage other") != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category filter"})
		return
	}

	issues, err := h.issueService.ListIssues(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, log, err, "issues not found")
		return
	}
	c.JSON(http.StatusOK, IssuesResponse{Issues: ModelsToIssueResponses(issues)})
}

// @Summary Get issue by ID
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} IssueResponse
// @Failure 400 {object} map[string]string "Invalid issue ID"
// @Failure 404 {object} map[string]string "Issue not found"
// @Router /issues/{id} [get]
func (h *Handler) getIssue(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIssue").WithField("id", id)

	issue, err := h.issueService.GetIssue(c.Request.Context(), id)
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusOK, ModelToIssueResponse(issue))
}

// @Summary Vote on an issue
// @Description One vote per user; a repeated vote replaces the previous one
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param vote body VoteRequest true "Vote"
// @Success 200 {object} IssueResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Issue not found"
// @Router /issues/{id}/vote [post]
func (h *Handler) voteIssue(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "voteIssue").WithField("id", id)

	var input VoteRequest
	if !h.bind(c, log, &input) {
		return
	}
	issue, err := h.issueService.Vote(c.Request.Context(), id, input.UserID, input.Vote)
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusOK, ModelToIssueResponse(issue))
}

// @Summary Comment on an issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param comment body CommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Issue not found"
// @Router /issues/{id}/comments [post]
func (h *Handler) addComment(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "addComment").WithField("id", id)

	var input CommentRequest
	if !h.bind(c, log, &input) {
		return
	}
	comment, err := h.issueService.AddComment(c.Request.Context(), id, models.Comment{
		UserID:   input.UserID,
		UserName: input.UserName,
		Message:  input.Message,
	})
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// @Summary Add a contribution to an issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param contribution body ContributionRequest true "Contribution"
// @Success 201 {object} models.Contribution
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Issue not found"
// @Router /issues/{id}/contributions [post]
func (h *Handler) addContribution(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "addContribution").WithField("id", id)

	var input ContributionRequest
	if !h.bind(c, log, &input) {
		return
	}
	contribution, err := h.issueService.AddContribution(c.Request.Context(), id, models.Contribution{
		UserID:      input.UserID,
		UserName:    input.UserName,
		Description: input.Description,
	}, input.MediaBase64)
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusCreated, contribution)
}

// @Summary Vote on a contribution
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param cid path string true "Contribution ID"
// @Param vote body VoteRequest true "Vote"
// @Success 200 {object} models.Contribution
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 404 {object} map[string]string "Issue or contribution not found"
// @Router /issues/{id}/contributions/{cid}/vote [post]
func (h *Handler) voteContribution(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	cid, err := uuid.Parse(c.Param("cid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contribution ID"})
		return
	}
	log := h.logger.WithField("method", "voteContribution").WithField("id", id).WithField("cid", cid)

	var input VoteRequest
	if !h.bind(c, log, &input) {
		return
	}
	contribution, err := h.issueService.VoteContribution(c.Request.Context(), id, cid, input.UserID, input.Vote)
	if err != nil {
		h.fail(c, log, err, "contribution not found")
		return
	}
	c.JSON(http.StatusOK, contribution)
}

// @Summary Update issue status
// @Description Set the status of an issue. Requires API key.
// @Tags Admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Issue ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} IssueResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Issue not found"
// @Router /issues/{id}/status [put]
func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := h.issueID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if !h.bind(c, log, &input) {
		return
	}
	issue, err := h.issueService.UpdateStatus(c.Request.Context(), id, models.IssueStatus(input.Status))
	if err != nil {
		h.fail(c, log, err, "issue not found")
		return
	}
	c.JSON(http.StatusOK, ModelToIssueResponse(issue))
}

// @Summary Get issue statistics
// @Tags Admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.issueService.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, log, err, "stats not found")
		return
	}
	c.JSON(http.StatusOK, ModelToStatsResponse(stats))
}

func (h *Handler) issueID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue ID"})
		return uuid.Nil, false
	}
	return id, true
}
