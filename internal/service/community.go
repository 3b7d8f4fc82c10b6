package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/photo"
	"github.com/sirupsen/logrus"
)

const anonymousUser = "anon"

// CommunityRepository определяет контракт хранилища ленты и мероприятий
type CommunityRepository interface {
	CreatePost(ctx context.Context, post *models.CommunityPost) error
	ListPosts(ctx context.Context) ([]*models.CommunityPost, error)
	LikePost(ctx context.Context, postID uuid.UUID, userID string) (*models.CommunityPost, error)
	CreateEvent(ctx context.Context, event *models.CommunityEvent) error
	ListEvents(ctx context.Context) ([]*models.CommunityEvent, error)
}

type CommunityService interface {
	CreatePost(ctx context.Context, userID, description string, mediaBase64 []string) (*models.CommunityPost, error)
	ListPosts(ctx context.Context) ([]*models.CommunityPost, error)
	LikePost(ctx context.Context, postID uuid.UUID, userID string) (*models.CommunityPost, error)
	CreateEvent(ctx context.Context, title, location string, startsAt time.Time) (*models.CommunityEvent, error)
	ListEvents(ctx context.Context) ([]*models.CommunityEvent, error)
}

type communityService struct {
	repo   CommunityRepository
	photos photo.Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewCommunityService(repo CommunityRepository, photos photo.Store, logger *logrus.Logger) CommunityService {
	return &communityService{
		repo:   repo,
		photos: photos,
		logger: logger,
		now:    time.Now,
	}
}

// CreatePost публикует пост. Медиа в base64 выгружаются в хранилище,
// внешние ссылки сохраняются как есть.
func (s *communityService) CreatePost(ctx context.Context, userID, description string, mediaBase64 []string) (*models.CommunityPost, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "community",
		"method":  "CreatePost",
		"user_id": userID,
	})

	post := &models.CommunityPost{
		ID:          uuid.New(),
		UserID:      userID,
		Description: description,
		Media:       make([]models.CommunityPostMedia, 0, len(mediaBase64)),
		CreatedAt:   s.now().UTC(),
	}
	for i, m := range mediaBase64 {
		if !strings.HasPrefix(m, "data:") {
			post.Media = append(post.Media, models.CommunityPostMedia{URL: m, Kind: kindByPrefix(m)})
			continue
		}
		p, err := photo.Decode(m)
		if err != nil {
			log.WithError(err).Warn("Rejected community post media")
			return nil, fmt.Errorf("service: invalid media #%d: %w: %v", i, ErrInvalidInput, err)
		}
		url, err := s.photos.Save(ctx, fmt.Sprintf("posts/%s-%d", post.ID, i), p)
		if err != nil {
			return nil, fmt.Errorf("service: could not store media: %w", err)
		}
		kind := models.MediaImage
		if p.IsVideo() || strings.HasPrefix(m, "data:video") {
			kind = models.MediaVideo
		}
		post.Media = append(post.Media, models.CommunityPostMedia{URL: url, Kind: kind})
	}

	if err := s.repo.CreatePost(ctx, post); err != nil {
		log.WithError(err).Error("Failed to create community post")
		return nil, fmt.Errorf("service: could not create post: %w", err)
	}
	log.WithField("post_id", post.ID).Info("Community post created")
	return post, nil
}

func kindByPrefix(url string) models.MediaKind {
	if strings.HasPrefix(url, "data:video") {
		return models.MediaVideo
	}
	return models.MediaImage
}

func (s *communityService) ListPosts(ctx context.Context) ([]*models.CommunityPost, error) {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not list posts: %w", err)
	}
	return posts, nil
}

// LikePost - один лайк на пользователя, пустой userID считается анонимом
func (s *communityService) LikePost(ctx context.Context, postID uuid.UUID, userID string) (*models.CommunityPost, error) {
	if userID == "" {
		userID = anonymousUser
	}
	post, err := s.repo.LikePost(ctx, postID, userID)
	if err != nil {
		return nil, fmt.Errorf("service: could not like post: %w", err)
	}
	return post, nil
}

func (s *communityService) CreateEvent(ctx context.Context, title, location string, startsAt time.Time) (*models.CommunityEvent, error) {
	event := &models.CommunityEvent{
		ID:        uuid.New(),
		Title:     title,
		Location:  location,
		StartsAt:  startsAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("service: could not create event: %w", err)
	}
	s.logger.WithField("event_id", event.ID).Info("Community event created")
	return event, nil
}

func (s *communityService) ListEvents(ctx context.Context) ([]*models.CommunityEvent, error) {
	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: could not list events: %w", err)
	}
	return events, nil
}
