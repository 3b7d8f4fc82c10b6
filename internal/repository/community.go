package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/service"
)

// MemoryCommunityRepository - лента и мероприятия сообщества в памяти
type MemoryCommunityRepository struct {
	mu     sync.RWMutex
	posts  []*models.CommunityPost
	likes  map[uuid.UUID]map[string]struct{}
	events []*models.CommunityEvent
}

func NewMemoryCommunityRepository() *MemoryCommunityRepository {
	return &MemoryCommunityRepository{
		likes: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (r *MemoryCommunityRepository) CreatePost(_ context.Context, post *models.CommunityPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, clonePost(post))
	r.likes[post.ID] = make(map[string]struct{})
	return nil
}

// ListPosts возвращает публикации, новые первыми
func (r *MemoryCommunityRepository) ListPosts(_ context.Context) ([]*models.CommunityPost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	posts := make([]*models.CommunityPost, 0, len(r.posts))
	for i := len(r.posts) - 1; i >= 0; i-- {
		posts = append(posts, clonePost(r.posts[i]))
	}
	return posts, nil
}

// LikePost ставит лайк; повторный лайк того же пользователя не учитывается
func (r *MemoryCommunityRepository) LikePost(_ context.Context, postID uuid.UUID, userID string) (*models.CommunityPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID != postID {
			continue
		}
		if _, liked := r.likes[postID][userID]; !liked {
			r.likes[postID][userID] = struct{}{}
			p.Upvotes++
		}
		return clonePost(p), nil
	}
	return nil, fmt.Errorf("post with id %s: %w", postID, service.ErrNotFound)
}

func (r *MemoryCommunityRepository) CreateEvent(_ context.Context, event *models.CommunityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *event
	r.events = append(r.events, &e)
	return nil
}

// ListEvents возвращает мероприятия по дате начала
func (r *MemoryCommunityRepository) ListEvents(_ context.Context) ([]*models.CommunityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]*models.CommunityEvent, 0, len(r.events))
	for _, e := range r.events {
		c := *e
		events = append(events, &c)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func clonePost(p *models.CommunityPost) *models.CommunityPost {
	c := *p
	c.Media = append([]models.CommunityPostMedia{}, p.Media...)
	return &c
}
