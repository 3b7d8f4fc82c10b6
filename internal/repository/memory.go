package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/service"
)

// MemoryIssueRepository хранит обращения в памяти процесса.
// Используется, когда DATABASE_URL не задан, и в тестах.
type MemoryIssueRepository struct {
	mu     sync.RWMutex
	issues map[uuid.UUID]*models.Issue
	votes  map[voteKey]int
}

type voteKey struct {
	target uuid.UUID
	user   string
}

func NewMemoryIssueRepository() *MemoryIssueRepository {
	return &MemoryIssueRepository{
		issues: make(map[uuid.UUID]*models.Issue),
		votes:  make(map[voteKey]int),
	}
}

func (r *MemoryIssueRepository) Create(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[issue.ID]; ok {
		return fmt.Errorf("issue with id %s already exists", issue.ID)
	}
	r.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *MemoryIssueRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue with id %s: %w", id, service.ErrNotFound)
	}
	return cloneIssue(issue), nil
}

func (r *MemoryIssueRepository) Update(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[issue.ID]; !ok {
		return fmt.Errorf("issue with id %s not found for update: %w", issue.ID, service.ErrNotFound)
	}
	r.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (r *MemoryIssueRepository) List(_ context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	issues := make([]*models.Issue, 0, len(r.issues))
	for _, i := range r.issues {
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if filter.Category != "" && i.Category != filter.Category {
			continue
		}
		if filter.WardID != "" && i.WardID != filter.WardID {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(i.Title), q) &&
			!strings.Contains(strings.ToLower(i.Address), q) {
			continue
		}
		issues = append(issues, cloneIssue(i))
	}
	return issues, nil
}

func (r *MemoryIssueRepository) RecordVote(_ context.Context, targetID uuid.UUID, userID string, vote int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := voteKey{target: targetID, user: userID}
	prev := r.votes[k]
	r.votes[k] = vote
	return prev, nil
}

func cloneIssue(i *models.Issue) *models.Issue {
	c := *i
	c.Comments = append([]models.Comment(nil), i.Comments...)
	if c.Comments == nil {
		c.Comments = []models.Comment{}
	}
	if i.Contributions != nil {
		c.Contributions = append([]models.Contribution(nil), i.Contributions...)
	}
	if i.PhotoGeoTag != nil {
		tag := *i.PhotoGeoTag
		c.PhotoGeoTag = &tag
	}
	if i.ResolvedAt != nil {
		at := *i.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
