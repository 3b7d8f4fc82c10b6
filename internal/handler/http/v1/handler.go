package v1

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shenikar/civic_issue_reporter/internal/config"
	"github.com/shenikar/civic_issue_reporter/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	issueService     service.IssueService
	communityService service.CommunityService
	profileService   service.ProfileService
	logger           *logrus.Logger
	validate         *validator.Validate
	cfg              *config.Config
}

func NewHandler(
	issueService service.IssueService,
	communityService service.CommunityService,
	profileService service.ProfileService,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		issueService:     issueService,
		communityService: communityService,
		profileService:   profileService,
		logger:           logger,
		validate:         validator.New(),
		cfg:              cfg,
	}
}

// bind разбирает и валидирует тело запроса. При ошибке ответ уже записан.
func (h *Handler) bind(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		if isBodyTooLarge(err) {
			log.WithError(err).Warn("Request body too large")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return h.check(c, log, input)
}

// bindOptional - как bind, но пустое тело допустимо
func (h *Handler) bindOptional(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil && !errors.Is(err, io.EOF) {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return h.check(c, log, input)
}

func (h *Handler) check(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// fail переводит ошибку сервиса в HTTP-статус
func (h *Handler) fail(c *gin.Context, log *logrus.Entry, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		log.WithError(err).Warn("Resource not found")
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, service.ErrInvalidInput):
		log.WithError(err).Warn("Service rejected input")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
	case errors.Is(err, service.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect current password"})
	default:
		log.WithError(err).Error("Service call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// @Summary Connectivity probe
// @Description Lightweight endpoint clients poll to detect that the API is reachable
// @Tags System
// @Produce json
// @Success 200 {object} PingResponse
// @Router /ping [get]
func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: h.cfg.PingMessage})
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
