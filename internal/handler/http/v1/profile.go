package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Get a user profile
// @Description Unknown users are provisioned on first access
// @Tags Profile
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} ProfileResponse
// @Router /profile/{userId} [get]
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.Param("userId")
	log := h.logger.WithField("method", "getProfile").WithField("user_id", userID)

	profile, err := h.profileService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, log, err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Profile: profile})
}

// @Summary Update a user profile
// @Tags Profile
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param profile body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 409 {object} map[string]string "Username already taken"
// @Router /profile/{userId} [put]
func (h *Handler) updateProfile(c *gin.Context) {
	userID := c.Param("userId")
	log := h.logger.WithField("method", "updateProfile").WithField("user_id", userID)

	var input UpdateProfileRequest
	if !h.bind(c, log, &input) {
		return
	}
	profile, err := h.profileService.UpdateProfile(c.Request.Context(), userID, DTOToProfileUpdate(input))
	if err != nil {
		h.fail(c, log, err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Profile: profile})
}

// @Summary Check username availability
// @Tags Profile
// @Accept json
// @Produce json
// @Param username body UsernameCheckRequest true "Username"
// @Success 200 {object} UsernameCheckResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Router /profile/username-check [post]
func (h *Handler) checkUsername(c *gin.Context) {
	var input UsernameCheckRequest
	log := h.logger.WithField("method", "checkUsername")
	if !h.bind(c, log, &input) {
		return
	}
	available, err := h.profileService.UsernameAvailable(c.Request.Context(), input.Username)
	if err != nil {
		h.fail(c, log, err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, UsernameCheckResponse{Available: available})
}

// @Summary Change password
// @Tags Profile
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param passwords body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} ChangePasswordResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Incorrect current password"
// @Router /profile/{userId}/change-password [post]
func (h *Handler) changePassword(c *gin.Context) {
	userID := c.Param("userId")
	log := h.logger.WithField("method", "changePassword").WithField("user_id", userID)

	var input ChangePasswordRequest
	if !h.bind(c, log, &input) {
		return
	}
	if err := h.profileService.ChangePassword(c.Request.Context(), userID, input.Current, input.Next); err != nil {
		h.fail(c, log, err, "profile not found")
		return
	}
	c.JSON(http.StatusOK, ChangePasswordResponse{OK: true})
}
