package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/service"
)

const defaultPassword = "password"

// зарезервированные имена, которые нельзя занять
var reservedUsernames = []string{"citizen", "admin", "support"}

type profileRecord struct {
	profile  models.UserProfile
	password string
}

// MemoryProfileRepository хранит профили в памяти процесса
type MemoryProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*profileRecord
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[string]*profileRecord),
	}
}

// Ensure возвращает профиль, создавая его при первом обращении
func (r *MemoryProfileRepository) Ensure(_ context.Context, userID string) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.ensureLocked(userID).profile
	return &p, nil
}

func (r *MemoryProfileRepository) Update(_ context.Context, userID string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.ensureLocked(userID)

	if upd.Username != nil && *upd.Username != rec.profile.Username {
		if r.takenLocked(*upd.Username, userID) {
			return nil, fmt.Errorf("username %q: %w", *upd.Username, service.ErrUsernameTaken)
		}
		rec.profile.Username = *upd.Username
	}
	if upd.Email != nil {
		rec.profile.Email = *upd.Email
	}
	if upd.Phone != nil {
		rec.profile.Phone = *upd.Phone
	}
	p := rec.profile
	return &p, nil
}

func (r *MemoryProfileRepository) UsernameTaken(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takenLocked(username, ""), nil
}

func (r *MemoryProfileRepository) Password(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(userID).password, nil
}

func (r *MemoryProfileRepository) SetPassword(_ context.Context, userID, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(userID).password = password
	return nil
}

func (r *MemoryProfileRepository) ensureLocked(userID string) *profileRecord {
	rec, ok := r.profiles[userID]
	if !ok {
		rec = &profileRecord{
			profile: models.UserProfile{
				UserID:   userID,
				Username: userID,
				Email:    userID + "@example.com",
			},
			password: defaultPassword,
		}
		r.profiles[userID] = rec
	}
	return rec
}

// takenLocked: имя занято зарезервированным списком или другим пользователем
func (r *MemoryProfileRepository) takenLocked(username, exceptUserID string) bool {
	for _, reserved := range reservedUsernames {
		if username == reserved {
			return true
		}
	}
	for id, rec := range r.profiles {
		if id != exceptUserID && rec.profile.Username == username {
			return true
		}
	}
	return false
}
