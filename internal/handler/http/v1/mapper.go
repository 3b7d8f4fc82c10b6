package v1

import "github.com/shenikar/civic_issue_reporter/internal/models"

// DTOToCreateIssuePayload преобразует DTO создания в доменную модель
func DTOToCreateIssuePayload(dto CreateIssueRequest) models.CreateIssuePayload {
	return models.CreateIssuePayload{
		Title:       dto.Title,
		Description: dto.Description,
		Category:    models.IssueCategory(dto.Category),
		Location:    models.GeoPoint{Lat: dto.Location.Lat, Lng: dto.Location.Lng},
		Address:     dto.Address,
		WardID:      dto.WardID,
		PhotoBase64: dto.PhotoBase64,
		UserID:      dto.UserID,
	}
}

// ModelToIssueResponse преобразует доменную модель в DTO для ответа
func ModelToIssueResponse(model *models.Issue) *IssueResponse {
	comments := model.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	return &IssueResponse{
		ID:                    model.ID,
		Title:                 model.Title,
		Description:           model.Description,
		Category:              string(model.Category),
		Location:              model.Location,
		Address:               model.Address,
		WardID:                model.WardID,
		PhotoURL:              model.PhotoURL,
		PhotoGeoTag:           model.PhotoGeoTag,
		UserID:                model.UserID,
		Status:                string(model.Status),
		Upvotes:               model.Upvotes,
		Downvotes:             model.Downvotes,
		VerificationThreshold: model.VerificationThreshold,
		Comments:              comments,
		Contributions:         model.Contributions,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
		ResolvedAt:            model.ResolvedAt,
	}
}

// ModelsToIssueResponses преобразует слайс моделей в слайс DTO
func ModelsToIssueResponses(issues []*models.Issue) []*IssueResponse {
	responses := make([]*IssueResponse, len(issues))
	for i, issue := range issues {
		responses[i] = ModelToIssueResponse(issue)
	}
	return responses
}

func ModelToStatsResponse(stats *models.IssueStats) *StatsResponse {
	return &StatsResponse{
		IssuesReportedToday:      stats.IssuesReportedToday,
		ResolvedThisMonth:        stats.ResolvedThisMonth,
		AvgTimeToResolutionHours: stats.AvgTimeToResolutionHours,
		ByCategory:               stats.ByCategory,
	}
}

func DTOToProfileUpdate(dto UpdateProfileRequest) models.ProfileUpdate {
	return models.ProfileUpdate{
		Username: dto.Username,
		Email:    dto.Email,
		Phone:    dto.Phone,
	}
}
