package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/photo"
	"github.com/shenikar/civic_issue_reporter/internal/repository"
	"github.com/shenikar/civic_issue_reporter/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestCommunity_CreateAndListPosts(t *testing.T) {
	// Подготовка
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photo.DataURLStore{}, newTestLogger())
	ctx := context.Background()

	// Действие
	first, err := svc.CreatePost(ctx, "u1", "Cleaned the park", []string{pngDataURL(t), "https://cdn.example.org/clip.mp4"})
	require.NoError(t, err)
	second, err := svc.CreatePost(ctx, "u2", "New bench", nil)
	require.NoError(t, err)

	posts, err := svc.ListPosts(ctx)

	// Проверки
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID, "новые первыми")
	assert.Equal(t, first.ID, posts[1].ID)
	require.Len(t, posts[1].Media, 2)
	assert.Equal(t, models.MediaImage, posts[1].Media[0].Kind)
	assert.Contains(t, posts[1].Media[0].URL, "data:image/png;base64,")
	assert.Equal(t, "https://cdn.example.org/clip.mp4", posts[1].Media[1].URL)
	assert.Empty(t, posts[0].Media)
}

func TestCommunity_CreatePost_InvalidMedia(t *testing.T) {
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photo.DataURLStore{}, newTestLogger())

	_, err := svc.CreatePost(context.Background(), "u1", "Broken", []string{"data:image/png;base64,!!!"})

	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, *photo.Photo) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestCommunity_CreatePost_StoreFailure(t *testing.T) {
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), failingStore{}, newTestLogger())

	_, err := svc.CreatePost(context.Background(), "u1", "Photo", []string{pngDataURL(t)})

	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrInvalidInput)
}

func TestCommunity_LikeOncePerUser(t *testing.T) {
	// Подготовка
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photo.DataURLStore{}, newTestLogger())
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, "u1", "Mural", nil)
	require.NoError(t, err)

	// Действие
	_, err = svc.LikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	_, err = svc.LikePost(ctx, post.ID, "u2")
	require.NoError(t, err)
	_, err = svc.LikePost(ctx, post.ID, "")
	require.NoError(t, err)
	liked, err := svc.LikePost(ctx, post.ID, "")

	// Проверки: u2 и аноним по одному разу
	require.NoError(t, err)
	assert.Equal(t, 2, liked.Upvotes)
}

func TestCommunity_LikeUnknownPost(t *testing.T) {
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photo.DataURLStore{}, newTestLogger())

	_, err := svc.LikePost(context.Background(), uuid.New(), "u1")

	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCommunity_EventsSortedByStart(t *testing.T) {
	// Подготовка
	svc := service.NewCommunityService(repository.NewMemoryCommunityRepository(), photo.DataURLStore{}, newTestLogger())
	ctx := context.Background()
	later := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	sooner := time.Date(2024, 5, 20, 9, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	// Действие
	_, err := svc.CreateEvent(ctx, "Tree planting", "Lodhi Garden", later)
	require.NoError(t, err)
	_, err = svc.CreateEvent(ctx, "Clean-up drive", "Yamuna bank", sooner)
	require.NoError(t, err)

	events, err := svc.ListEvents(ctx)

	// Проверки
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Clean-up drive", events[0].Title)
	assert.Equal(t, time.UTC, events[0].StartsAt.Location())
	assert.Equal(t, "Tree planting", events[1].Title)
}
