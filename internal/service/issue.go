package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/config"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/photo"
	"github.com/shenikar/civic_issue_reporter/internal/webhook"
	"github.com/sirupsen/logrus"
)

// IssueRepository определяет контракт для хранилища обращений
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	Update(ctx context.Context, issue *models.Issue) error
	List(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error)
	// RecordVote сохраняет голос пользователя за обращение или вклад и возвращает предыдущий (0 - не голосовал)
	RecordVote(ctx context.Context, targetID uuid.UUID, userID string, vote int) (int, error)
}

// IssueCache - кеш отдельных обращений
type IssueCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	Set(ctx context.Context, issue *models.Issue) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// IssueService определяет контракт бизнес-логики обращений
type IssueService interface {
	CreateIssue(ctx context.Context, payload models.CreateIssuePayload) (*models.Issue, error)
	GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error)
	Vote(ctx context.Context, id uuid.UUID, userID string, vote int) (*models.Issue, error)
	AddComment(ctx context.Context, id uuid.UUID, comment models.Comment) (*models.Comment, error)
	AddContribution(ctx context.Context, id uuid.UUID, contribution models.Contribution, mediaBase64 string) (*models.Contribution, error)
	VoteContribution(ctx context.Context, issueID, contributionID uuid.UUID, userID string, vote int) (*models.Contribution, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IssueStatus) (*models.Issue, error)
	Stats(ctx context.Context) (*models.IssueStats, error)
}

type issueService struct {
	repo      IssueRepository
	cache     IssueCache
	photos    photo.Store
	publisher webhook.Publisher
	logger    *logrus.Logger
	cfg       *config.Config
	now       func() time.Time

	// изменения обращений сериализуются: голос - это чтение-изменение-запись
	mu sync.Mutex
}

// NewIssueService создает сервис обращений. cache может быть nil.
func NewIssueService(repo IssueRepository, cache IssueCache, photos photo.Store, publisher webhook.Publisher, logger *logrus.Logger, cfg *config.Config) IssueService {
	return &issueService{
		repo:      repo,
		cache:     cache,
		photos:    photos,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateIssue создает обращение со статусом submitted
func (s *issueService) CreateIssue(ctx context.Context, payload models.CreateIssuePayload) (*models.Issue, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "issue",
		"method":   "CreateIssue",
		"category": payload.Category,
		"ward_id":  payload.WardID,
	})
	log.Info("Attempting to create a new issue")

	now := s.now().UTC()
	issue := &models.Issue{
		ID:                    uuid.New(),
		Title:                 payload.Title,
		Description:           payload.Description,
		Category:              payload.Category,
		Location:              payload.Location,
		Address:               payload.Address,
		WardID:                payload.WardID,
		UserID:                payload.UserID,
		Status:                models.StatusSubmitted,
		VerificationThreshold: s.cfg.VerificationThreshold,
		Comments:              []models.Comment{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if payload.PhotoBase64 != "" {
		p, err := photo.Decode(payload.PhotoBase64)
		if err != nil {
			log.WithError(err).Warn("Rejected issue photo")
			return nil, fmt.Errorf("service: invalid photo: %w: %v", ErrInvalidInput, err)
		}
		if tag, ok := p.GeoTag(); ok {
			issue.PhotoGeoTag = &tag
			log.WithFields(logrus.Fields{"photo_lat": tag.Lat, "photo_lng": tag.Lng}).Debug("Photo carries a geotag")
		}
		url, err := s.photos.Save(ctx, "issues/"+issue.ID.String(), p)
		if err != nil {
			log.WithError(err).Error("Failed to store issue photo")
			return nil, fmt.Errorf("service: could not store photo: %w", err)
		}
		issue.PhotoURL = url
	}

	if err := s.repo.Create(ctx, issue); err != nil {
		log.WithError(err).Error("Failed to create issue in repository")
		return nil, fmt.Errorf("service: could not create issue: %w", err)
	}

	s.publish(ctx, webhook.EventIssueCreated, issue)
	log.WithField("issue_id", issue.ID).Info("Issue created successfully")
	return issue, nil
}

// GetIssue получает обращение по ID, сначала из кеша
func (s *issueService) GetIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "issue",
		"method":   "GetIssue",
		"issue_id": id,
	})

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to read issue from cache")
		} else if cached != nil {
			log.Debug("Issue served from cache")
			return cached, nil
		}
	}

	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get issue from repository")
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, issue); err != nil {
			log.WithError(err).Warn("Failed to cache issue")
		}
	}
	return issue, nil
}

// ListIssues возвращает обращения, новые первыми
func (s *issueService) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "issue",
		"method":  "ListIssues",
		"status":  filter.Status,
	})

	issues, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list issues from repository")
		return nil, fmt.Errorf("service: could not list issues: %w", err)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].CreatedAt.After(issues[j].CreatedAt)
	})
	log.WithField("count", len(issues)).Debug("Issues listed successfully")
	return issues, nil
}

// Vote учитывает голос пользователя. Повторный голос заменяет прежний.
// Первый голос переводит обращение на подтверждение, набранный порог - на рассмотрение.
func (s *issueService) Vote(ctx context.Context, id uuid.UUID, userID string, vote int) (*models.Issue, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "issue",
		"method":   "Vote",
		"issue_id": id,
		"user_id":  userID,
	})
	if vote != 1 && vote != -1 {
		return nil, fmt.Errorf("service: vote must be 1 or -1: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}

	prev, err := s.repo.RecordVote(ctx, id, userID, vote)
	if err != nil {
		log.WithError(err).Error("Failed to record vote")
		return nil, fmt.Errorf("service: could not record vote: %w", err)
	}
	if prev == vote {
		return issue, nil
	}

	applyVote(&issue.Upvotes, &issue.Downvotes, prev, -1)
	applyVote(&issue.Upvotes, &issue.Downvotes, vote, 1)

	oldStatus := issue.Status
	switch {
	case issue.Status == models.StatusSubmitted:
		issue.Status = models.StatusPendingVerification
	case issue.Status == models.StatusPendingVerification &&
		issue.Upvotes-issue.Downvotes >= issue.VerificationThreshold:
		issue.Status = models.StatusUnderReview
	}
	issue.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, issue); err != nil {
		log.WithError(err).Error("Failed to update issue after vote")
		return nil, err
	}
	if issue.Status != oldStatus {
		log.WithFields(logrus.Fields{"from": oldStatus, "to": issue.Status}).Info("Issue status changed by votes")
		s.publish(ctx, webhook.EventIssueStatusChanged, issue)
	}
	return issue, nil
}

func applyVote(up, down *int, vote, sign int) {
	switch vote {
	case 1:
		*up += sign
	case -1:
		*down += sign
	}
}

// AddComment добавляет комментарий к обращению
func (s *issueService) AddComment(ctx context.Context, id uuid.UUID, comment models.Comment) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}

	comment.ID = uuid.New()
	comment.IssueID = id
	comment.CreatedAt = s.now().UTC()
	issue.Comments = append(issue.Comments, comment)
	issue.UpdatedAt = comment.CreatedAt

	if err := s.save(ctx, issue); err != nil {
		return nil, err
	}
	return &comment, nil
}

// AddContribution добавляет вклад жителя (фото/описание) к обращению
func (s *issueService) AddContribution(ctx context.Context, id uuid.UUID, contribution models.Contribution, mediaBase64 string) (*models.Contribution, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "issue",
		"method":   "AddContribution",
		"issue_id": id,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}

	contribution.ID = uuid.New()
	contribution.IssueID = id
	contribution.CreatedAt = s.now().UTC()
	if mediaBase64 != "" {
		p, err := photo.Decode(mediaBase64)
		if err != nil {
			log.WithError(err).Warn("Rejected contribution media")
			return nil, fmt.Errorf("service: invalid media: %w: %v", ErrInvalidInput, err)
		}
		url, err := s.photos.Save(ctx, "contributions/"+contribution.ID.String(), p)
		if err != nil {
			return nil, fmt.Errorf("service: could not store media: %w", err)
		}
		contribution.MediaURL = url
	}

	issue.Contributions = append(issue.Contributions, contribution)
	issue.UpdatedAt = contribution.CreatedAt
	if err := s.save(ctx, issue); err != nil {
		return nil, err
	}
	log.WithField("contribution_id", contribution.ID).Info("Contribution added")
	return &contribution, nil
}

// VoteContribution учитывает голос за вклад, один голос на пользователя
func (s *issueService) VoteContribution(ctx context.Context, issueID, contributionID uuid.UUID, userID string, vote int) (*models.Contribution, error) {
	if vote != 1 && vote != -1 {
		return nil, fmt.Errorf("service: vote must be 1 or -1: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, err := s.repo.GetByID(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}
	idx := -1
	for i := range issue.Contributions {
		if issue.Contributions[i].ID == contributionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("service: contribution %s: %w", contributionID, ErrNotFound)
	}

	prev, err := s.repo.RecordVote(ctx, contributionID, userID, vote)
	if err != nil {
		return nil, fmt.Errorf("service: could not record vote: %w", err)
	}
	c := &issue.Contributions[idx]
	if prev == vote {
		return c, nil
	}
	c.Upvotes += vote - prev
	issue.UpdatedAt = s.now().UTC()

	if err := s.save(ctx, issue); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatus - ручная смена статуса администратором
func (s *issueService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IssueStatus) (*models.Issue, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "issue",
		"method":   "UpdateStatus",
		"issue_id": id,
		"status":   status,
	})
	log.Info("Attempting to update issue status")

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update a non-existent issue")
		return nil, fmt.Errorf("service: could not get issue: %w", err)
	}
	if issue.Status == status {
		return issue, nil
	}

	now := s.now().UTC()
	issue.Status = status
	issue.UpdatedAt = now
	if status == models.StatusResolved {
		issue.ResolvedAt = &now
	} else {
		issue.ResolvedAt = nil
	}

	if err := s.save(ctx, issue); err != nil {
		log.WithError(err).Error("Failed to update issue status")
		return nil, err
	}
	s.publish(ctx, webhook.EventIssueStatusChanged, issue)
	log.Info("Issue status updated successfully")
	return issue, nil
}

// Stats считает сводку по всем обращениям
func (s *issueService) Stats(ctx context.Context) (*models.IssueStats, error) {
	issues, err := s.repo.List(ctx, models.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("service: could not list issues: %w", err)
	}
	return ComputeStats(issues, s.now()), nil
}

// ComputeStats строит сводку относительно момента now (в UTC)
func ComputeStats(issues []*models.Issue, now time.Time) *models.IssueStats {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &models.IssueStats{}
	counts := make(map[models.IssueCategory]int)
	var (
		resolvedTotal time.Duration
		resolvedN     int
	)
	for _, i := range issues {
		counts[i.Category]++
		if !i.CreatedAt.Before(dayStart) {
			stats.IssuesReportedToday++
		}
		if i.Status == models.StatusResolved && i.ResolvedAt != nil {
			if !i.ResolvedAt.Before(monthStart) {
				stats.ResolvedThisMonth++
			}
			resolvedTotal += i.ResolvedAt.Sub(i.CreatedAt)
			resolvedN++
		}
	}
	if resolvedN > 0 {
		stats.AvgTimeToResolutionHours = resolvedTotal.Hours() / float64(resolvedN)
	}

	stats.ByCategory = make([]models.CategoryCount, 0, len(models.Categories))
	for _, c := range models.Categories {
		stats.ByCategory = append(stats.ByCategory, models.CategoryCount{Category: c, Count: counts[c]})
	}
	return stats
}

func (s *issueService) save(ctx context.Context, issue *models.Issue) error {
	if err := s.repo.Update(ctx, issue); err != nil {
		return fmt.Errorf("service: could not update issue: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, issue.ID); err != nil {
			s.logger.WithError(err).WithField("issue_id", issue.ID).Warn("Failed to invalidate issue cache")
		}
	}
	return nil
}

// publish отправляет событие; ошибка публикации не ломает запрос
func (s *issueService) publish(ctx context.Context, eventType string, issue *models.Issue) {
	event := webhook.IssueEvent{
		Type:      eventType,
		IssueID:   issue.ID.String(),
		Status:    string(issue.Status),
		Category:  string(issue.Category),
		WardID:    issue.WardID,
		Latitude:  issue.Location.Lat,
		Longitude: issue.Location.Lng,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("issue_id", issue.ID).Warn("Failed to publish issue event")
	}
}
