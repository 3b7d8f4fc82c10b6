package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/offline"
	"github.com/shenikar/civic_issue_reporter/internal/photo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI принимает POST /api/issues; пока online == false отвечает 503
type fakeAPI struct {
	online   atomic.Bool
	mu       sync.Mutex
	received []models.CreateIssuePayload
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.online.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	switch r.URL.Path {
	case "/api/issues":
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"issues":[]}`))
			return
		}
		var p models.CreateIssuePayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.received = append(f.received, p)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Issue{ID: uuid.New(), Title: p.Title, Status: models.StatusSubmitted})
	case "/api/community-events":
		_, _ = w.Write([]byte(`{"events":[{"id":"` + uuid.NewString() + `","title":"Clean-up drive","location":"Park","startsAt":"2024-05-20T09:00:00Z"}]}`))
	default:
		http.NotFound(w, r)
	}
}

func setupEnv(t *testing.T, api *fakeAPI) string {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("API_TIMEOUT", "2s")
	t.Setenv("QUEUE_FILE", filepath.Join(dir, "queue.json"))
	t.Setenv("QUEUE_REDIS_ADDR", "")
	t.Setenv("WARD_ID", "ward-7")
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil))
	path := filepath.Join(dir, "pothole.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 2, run(nil, &out))
	assert.Contains(t, out.String(), "civic-reporter report")
}

func TestRun_ReportRequiresPhoto(t *testing.T) {
	setupEnv(t, &fakeAPI{})

	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"report", "-description", "x"}, &out))
}

func TestRun_ReportOnline(t *testing.T) {
	api := &fakeAPI{}
	api.online.Store(true)
	photoPath := setupEnv(t, api)

	var out bytes.Buffer
	code := run([]string{"report",
		"-photo", photoPath,
		"-description", "Deep pothole",
		"-category", "garbage",
		"-lat", "28.6139", "-lng", "77.2090",
	}, &out)

	require.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "Geotagged:   true")
	assert.Contains(t, out.String(), "Submitted issue")

	require.Len(t, api.received, 1)
	p := api.received[0]
	assert.Equal(t, "Reported issue", p.Title)
	assert.Equal(t, "Current location", p.Address)
	assert.Equal(t, "ward-7", p.WardID)
	assert.Equal(t, models.CategoryGarbage, p.Category)
	assert.InDelta(t, 28.6139, p.Location.Lat, 1e-9)

	// координаты записаны в EXIF отправленного снимка
	ph, err := photo.Decode(p.PhotoBase64)
	require.NoError(t, err)
	tag, ok := ph.GeoTag()
	require.True(t, ok)
	assert.InDelta(t, 28.6139, tag.Lat, 1e-5)
	assert.InDelta(t, 77.2090, tag.Lng, 1e-5)
}

func TestRun_OfflineThenFlush(t *testing.T) {
	api := &fakeAPI{}
	photoPath := setupEnv(t, api)

	var out bytes.Buffer
	code := run([]string{"report", "-photo", photoPath, "-description", "Broken lamp", "-title", "Lamp", "-lat", "1", "-lng", "2"}, &out)
	require.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Saved offline, will retry")

	out.Reset()
	require.Equal(t, 0, run([]string{"queue"}, &out))
	assert.Contains(t, out.String(), `1. create-issue "Lamp" [pothole]`)

	out.Reset()
	assert.Equal(t, 1, run([]string{"flush"}, &out), "сервер все еще недоступен")
	assert.Contains(t, out.String(), "1 remaining")

	api.online.Store(true)
	out.Reset()
	require.Equal(t, 0, run([]string{"flush"}, &out))
	assert.Contains(t, out.String(), "Sent 1 of 1, 0 remaining")
	require.Len(t, api.received, 1)
	assert.Equal(t, "Lamp", api.received[0].Title)

	out.Reset()
	require.Equal(t, 0, run([]string{"queue"}, &out))
	assert.Contains(t, out.String(), "Queue is empty")
}

func TestRun_ReportWithoutLocation(t *testing.T) {
	api := &fakeAPI{}
	api.online.Store(true)
	photoPath := setupEnv(t, api)

	var out bytes.Buffer
	code := run([]string{"report", "-photo", photoPath, "-description", "No GPS here"}, &out)

	assert.Equal(t, 1, code)
	assert.Empty(t, api.received)
}

func TestRun_Notifications(t *testing.T) {
	api := &fakeAPI{}
	api.online.Store(true)
	setupEnv(t, api)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"notifications"}, &out))

	assert.Contains(t, out.String(), "1 notification(s)")
	assert.Contains(t, out.String(), "[EVENT] Clean-up drive - 2024-05-20 • Park (/contributions)")
}

func TestRun_FlushWhileAnotherProcessFlushes(t *testing.T) {
	api := &fakeAPI{}
	api.online.Store(true)
	setupEnv(t, api)

	// блокировку держит "другой процесс"
	unlock, ok, err := offline.NewFileStore(os.Getenv("QUEUE_FILE")).TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"flush"}, &out))
	assert.Contains(t, out.String(), "already being flushed")
}
