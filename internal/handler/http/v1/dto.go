package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
)

// GeoPointRequest - координаты в теле запроса
type GeoPointRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// CreateIssueRequest DTO для создания обращения
// @Description DTO для создания обращения
type CreateIssueRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"required,max=2000"`
	Category    string           `json:"category" validate:"required,oneof=pothole graffiti streetlight garbage other"`
	Location    *GeoPointRequest `json:"location" validate:"required"`
	Address     string           `json:"address" validate:"max=500"`
	WardID      string           `json:"wardId" validate:"required,max=64"`
	PhotoBase64 string           `json:"photoBase64,omitempty"`
	UserID      string           `json:"userId,omitempty" validate:"max=128"`
}

// VoteRequest DTO голоса за обращение или вклад
type VoteRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Vote   int    `json:"vote" validate:"required,oneof=1 -1"`
}

// CommentRequest DTO комментария
type CommentRequest struct {
	UserID   string `json:"userId" validate:"required,max=128"`
	UserName string `json:"userName" validate:"required,max=64"`
	Message  string `json:"message" validate:"required,max=1000"`
}

// ContributionRequest DTO вклада жителя
type ContributionRequest struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	UserName    string `json:"userName" validate:"required,max=64"`
	Description string `json:"description" validate:"required,max=2000"`
	MediaBase64 string `json:"mediaBase64,omitempty"`
}

// UpdateStatusRequest DTO смены статуса
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=submitted pending_verification under_review in_progress resolved escalated"`
}

// IssueResponse DTO для ответа с информацией об обращении
// @Description DTO для ответа с информацией об обращении
type IssueResponse struct {
	ID                    uuid.UUID             `json:"id"`
	Title                 string                `json:"title"`
	Description           string                `json:"description"`
	Category              string                `json:"category"`
	Location              models.GeoPoint       `json:"location"`
	Address               string                `json:"address"`
	WardID                string                `json:"wardId"`
	PhotoURL              string                `json:"photoUrl"`
	PhotoGeoTag           *models.GeoPoint      `json:"photoGeoTag,omitempty"`
	UserID                string                `json:"userId,omitempty"`
	Status                string                `json:"status"`
	Upvotes               int                   `json:"upvotes"`
	Downvotes             int                   `json:"downvotes"`
	VerificationThreshold int                   `json:"verificationThreshold"`
	Comments              []models.Comment      `json:"comments"`
	Contributions         []models.Contribution `json:"contributions,omitempty"`
	CreatedAt             time.Time             `json:"createdAt"`
	UpdatedAt             time.Time             `json:"updatedAt"`
	ResolvedAt            *time.Time            `json:"resolvedAt,omitempty"`
}

type IssuesResponse struct {
	Issues []*IssueResponse `json:"issues"`
}

// StatsResponse DTO для ответа со статистикой
// @Description DTO для ответа со статистикой
type StatsResponse struct {
	IssuesReportedToday      int                    `json:"issuesReportedToday"`
	ResolvedThisMonth        int                    `json:"resolvedThisMonth"`
	AvgTimeToResolutionHours float64                `json:"avgTimeToResolutionHours"`
	ByCategory               []models.CategoryCount `json:"byCategory"`
}

// CreatePostRequest DTO публикации в ленте
type CreatePostRequest struct {
	UserID      string   `json:"userId" validate:"required,max=128"`
	Description string   `json:"description" validate:"required,max=2000"`
	MediaBase64 []string `json:"mediaBase64"`
}

type LikeRequest struct {
	UserID string `json:"userId" validate:"max=128"`
}

type PostsResponse struct {
	Posts []*models.CommunityPost `json:"posts"`
}

// CreateEventRequest DTO мероприятия сообщества
type CreateEventRequest struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Location string    `json:"location" validate:"required,max=200"`
	StartsAt time.Time `json:"startsAt" validate:"required"`
}

type EventsResponse struct {
	Events []*models.CommunityEvent `json:"events"`
}

// UpdateProfileRequest - все поля необязательны
type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=2,max=32"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
}

type ProfileResponse struct {
	Profile *models.UserProfile `json:"profile"`
}

type UsernameCheckRequest struct {
	Username string `json:"username" validate:"required,min=2,max=32"`
}

type UsernameCheckResponse struct {
	Available bool `json:"available"`
}

type ChangePasswordRequest struct {
	Current string `json:"current" validate:"required,min=4"`
	Next    string `json:"next" validate:"required,min=6"`
}

type ChangePasswordResponse struct {
	OK bool `json:"ok"`
}

type PingResponse struct {
	Message string `json:"message"`
}
