package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus - этап жизненного цикла обращения
type IssueStatus string

const (
	StatusSubmitted           IssueStatus = "submitted"
	StatusPendingVerification IssueStatus = "pending_verification"
	StatusUnderReview         IssueStatus = "under_review"
	StatusInProgress          IssueStatus = "in_progress"
	StatusResolved            IssueStatus = "resolved"
	StatusEscalated           IssueStatus = "escalated"
)

// Actionable сообщает, требует ли обращение внимания жителей (подтверждения)
func (s IssueStatus) Actionable() bool {
	return s == StatusSubmitted || s == StatusPendingVerification
}

// IssueCategory - категория проблемы
type IssueCategory string

const (
	CategoryPothole     IssueCategory = "pothole"
	CategoryGraffiti    IssueCategory = "graffiti"
	CategoryStreetlight IssueCategory = "streetlight"
	CategoryGarbage     IssueCategory = "garbage"
	CategoryOther       IssueCategory = "other"
)

// Categories перечисляет все категории в порядке отображения
var Categories = []IssueCategory{
	CategoryPothole,
	CategoryGraffiti,
	CategoryStreetlight,
	CategoryGarbage,
	CategoryOther,
}

// GeoPoint - координаты в формате внешнего API
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	IssueID   uuid.UUID `json:"issueId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type Contribution struct {
	ID          uuid.UUID `json:"id"`
	IssueID     uuid.UUID `json:"issueId"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Description string    `json:"description"`
	MediaURL    string    `json:"mediaUrl"`
	Upvotes     int       `json:"upvotes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Issue - обращение жителя о городской проблеме
type Issue struct {
	ID                    uuid.UUID      `json:"id"`
	Title                 string         `json:"title"`
	Description           string         `json:"description"`
	Category              IssueCategory  `json:"category"`
	Location              GeoPoint       `json:"location"`
	Address               string         `json:"address"`
	WardID                string         `json:"wardId"`
	PhotoURL              string         `json:"photoUrl"`
	PhotoGeoTag           *GeoPoint      `json:"photoGeoTag,omitempty"`
	UserID                string         `json:"userId,omitempty"`
	Status                IssueStatus    `json:"status"`
	Upvotes               int            `json:"upvotes"`
	Downvotes             int            `json:"downvotes"`
	VerificationThreshold int            `json:"verificationThreshold"`
	Comments              []Comment      `json:"comments"`
	Contributions         []Contribution `json:"contributions,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
	ResolvedAt            *time.Time     `json:"resolvedAt,omitempty"`
}

// CreateIssuePayload - тело POST /api/issues. Его же хранит офлайн-очередь клиента.
type CreateIssuePayload struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    IssueCategory `json:"category"`
	Location    GeoPoint      `json:"location"`
	Address     string        `json:"address"`
	WardID      string        `json:"wardId"`
	PhotoBase64 string        `json:"photoBase64,omitempty"`
	UserID      string        `json:"userId,omitempty"`
}

// IssueFilter - параметры выборки списка обращений
type IssueFilter struct {
	Status   IssueStatus
	Category IssueCategory
	WardID   string
	Query    string
}

// CategoryCount - количество обращений в категории
type CategoryCount struct {
	Category IssueCategory `json:"category"`
	Count    int           `json:"count"`
}

// IssueStats - сводка для панели администратора
type IssueStats struct {
	IssuesReportedToday      int             `json:"issuesReportedToday"`
	ResolvedThisMonth        int             `json:"resolvedThisMonth"`
	AvgTimeToResolutionHours float64         `json:"avgTimeToResolutionHours"`
	ByCategory               []CategoryCount `json:"byCategory"`
}
