package service

import (
	"context"
	"fmt"

	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

// ProfileRepository определяет контракт хранилища профилей
type ProfileRepository interface {
	Ensure(ctx context.Context, userID string) (*models.UserProfile, error)
	Update(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.UserProfile, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Password(ctx context.Context, userID string) (string, error)
	SetPassword(ctx context.Context, userID, password string) error
}

type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.UserProfile, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

type profileService struct {
	repo   ProfileRepository
	logger *logrus.Logger
}

func NewProfileService(repo ProfileRepository, logger *logrus.Logger) ProfileService {
	return &profileService{repo: repo, logger: logger}
}

// GetProfile возвращает профиль, создавая его при первом запросе
func (s *profileService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: could not get profile: %w", err)
	}
	return p, nil
}

func (s *profileService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.UserProfile, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "profile",
		"method":  "UpdateProfile",
		"user_id": userID,
	})
	p, err := s.repo.Update(ctx, userID, upd)
	if err != nil {
		log.WithError(err).Warn("Failed to update profile")
		return nil, fmt.Errorf("service: could not update profile: %w", err)
	}
	log.Info("Profile updated")
	return p, nil
}

func (s *profileService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.repo.UsernameTaken(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service: could not check username: %w", err)
	}
	return !taken, nil
}

// ChangePassword меняет пароль, если текущий совпал
func (s *profileService) ChangePassword(ctx context.Context, userID, current, next string) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "profile",
		"method":  "ChangePassword",
		"user_id": userID,
	})
	stored, err := s.repo.Password(ctx, userID)
	if err != nil {
		return fmt.Errorf("service: could not read password: %w", err)
	}
	if stored != current {
		log.Warn("Password change rejected: current password mismatch")
		return ErrWrongPassword
	}
	if err := s.repo.SetPassword(ctx, userID, next); err != nil {
		return fmt.Errorf("service: could not set password: %w", err)
	}
	log.Info("Password changed")
	return nil
}
