package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssue(t *testing.T) {
	id := uuid.New()
	var got models.CreateIssuePayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/issues", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Issue{ID: id, Title: got.Title, Status: models.StatusSubmitted})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	payload := models.CreateIssuePayload{
		Title:       "Pothole",
		Description: "Deep",
		Category:    models.CategoryPothole,
		Location:    models.GeoPoint{Lat: 1.5, Lng: 2.5},
		Address:     "Main st",
		WardID:      "ward-1",
	}

	issue, err := c.CreateIssue(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, id, issue.ID)
	assert.Equal(t, models.StatusSubmitted, issue.Status)
	assert.Equal(t, payload, got)
}

func TestCreateIssue_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Invalid input"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).CreateIssue(context.Background(), models.CreateIssuePayload{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "/api/issues", se.Path)
	assert.Contains(t, se.Body, "Invalid input")
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, time.Second).Ping(context.Background())

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, 50*time.Millisecond).ListIssues(context.Background())

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>captive portal</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ListIssues(context.Background())

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestListEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/issues", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issues":[{"id":"` + uuid.NewString() + `","title":"A","status":"submitted"}]}`))
	})
	mux.HandleFunc("/api/community-events", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events":[{"id":"` + uuid.NewString() + `","title":"Clean-up","location":"Park","startsAt":"2024-05-10T09:00:00Z"}]}`))
	})
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"pong"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	issues, err := c.ListIssues(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "A", issues[0].Title)

	events, err := c.ListCommunityEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Park", events[0].Location)

	assert.NoError(t, c.Ping(ctx))
}
