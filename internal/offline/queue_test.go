package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

// fakeSubmitter записывает отправленные заголовки и падает на заданных
type fakeSubmitter struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]bool
	block  chan struct{}
	// waiting - сколько вызовов ждут block
	waiting atomic.Int32
}

func (f *fakeSubmitter) CreateIssue(ctx context.Context, p models.CreateIssuePayload) (*models.Issue, error) {
	if f.block != nil {
		f.waiting.Add(1)
		defer f.waiting.Add(-1)
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p.Title)
	if f.failOn[p.Title] {
		return nil, errors.New("network down")
	}
	return &models.Issue{ID: uuid.New(), Title: p.Title, Status: models.StatusSubmitted}, nil
}

func (f *fakeSubmitter) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func payload(title string) models.CreateIssuePayload {
	return models.CreateIssuePayload{
		Title:       title,
		Description: "desc",
		Category:    models.CategoryPothole,
		Location:    models.GeoPoint{Lat: 28.6, Lng: 77.2},
		Address:     "Current location",
		WardID:      "ward-1",
	}
}

func titlesOf(t *testing.T, entries []Entry) []string {
	t.Helper()
	var out []string
	for _, e := range entries {
		p, err := DecodeCreateIssue(e)
		require.NoError(t, err)
		out = append(out, p.Title)
	}
	return out
}

func TestEnqueue_AppendsInOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(NewMemoryStore(), &fakeSubmitter{}, newTestLogger())

	require.NoError(t, q.Enqueue(ctx, payload("a")))
	require.NoError(t, q.Enqueue(ctx, payload("b")))
	require.NoError(t, q.Enqueue(ctx, payload("a")))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, titlesOf(t, pending), "без дедупликации")
	assert.Equal(t, KindCreateIssue, pending[0].Type)
}

func TestFlush_AllSucceed(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())
	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, payload(title)))
	}

	res, err := q.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, FlushResult{Attempted: 3, Succeeded: 3, Remaining: 0}, res)
	assert.Equal(t, []string{"a", "b", "c"}, sub.titles())
	pending, _ := q.Pending(ctx)
	assert.Empty(t, pending)
}

func TestFlush_PartialFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{failOn: map[string]bool{"b": true, "d": true}}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())
	for _, title := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(ctx, payload(title)))
	}

	res, err := q.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Remaining)
	pending, _ := q.Pending(ctx)
	assert.Equal(t, []string{"b", "d"}, titlesOf(t, pending))
}

func TestFlush_EmptyQueue(t *testing.T) {
	sub := &fakeSubmitter{}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())

	res, err := q.Flush(context.Background())

	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
	assert.Empty(t, sub.titles())
}

func TestFlush_KeepsUnknownEntries(t *testing.T) {
	ctx := context.Background()
	unknown := Entry{Type: "upload-avatar", Payload: json.RawMessage(`{"x":1}`)}
	known, err := NewCreateIssueEntry(payload("a"))
	require.NoError(t, err)

	store := NewMemoryStore(unknown, known)
	q := NewQueue(store, &fakeSubmitter{}, newTestLogger())

	res, err := q.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Remaining)
	pending, _ := q.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, unknown, pending[0])
}

func TestFlush_SingleFlight(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{block: make(chan struct{})}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())
	require.NoError(t, q.Enqueue(ctx, payload("a")))

	done := make(chan FlushResult)
	go func() {
		res, _ := q.Flush(ctx)
		done <- res
	}()

	// ждем, пока первый проход не захватит флаг
	require.Eventually(t, q.flushing.Load, time.Second, time.Millisecond)

	res, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(sub.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, []string{"a"}, sub.titles(), "элемент отправлен ровно один раз")
}

func TestFlush_TwoQueuesOverOneStore(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) (Store, Store)
	}{
		{
			name: "memory",
			store: func(t *testing.T) (Store, Store) {
				s := NewMemoryStore()
				return s, s
			},
		},
		{
			// два FileStore на один путь ведут себя как два процесса
			name: "file",
			store: func(t *testing.T) (Store, Store) {
				path := filepath.Join(t.TempDir(), "queue.json")
				return NewFileStore(path), NewFileStore(path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Подготовка
			ctx := context.Background()
			storeA, storeB := tt.store(t)
			sub := &fakeSubmitter{block: make(chan struct{})}
			watcher := NewQueue(storeA, sub, newTestLogger())
			manual := NewQueue(storeB, sub, newTestLogger())
			require.NoError(t, watcher.Enqueue(ctx, payload("a")))
			require.NoError(t, watcher.Enqueue(ctx, payload("b")))

			done := make(chan FlushResult)
			go func() {
				res, _ := watcher.Flush(ctx)
				done <- res
			}()
			// первый проход уже держит блокировку и ждет отправки
			require.Eventually(t, func() bool { return sub.waiting.Load() == 1 }, time.Second, time.Millisecond)

			// Действие
			res, err := manual.Flush(ctx)
			require.NoError(t, err)
			assert.True(t, res.Skipped)
			close(sub.block)
			first := <-done

			// Проверки
			assert.False(t, first.Skipped)
			assert.Equal(t, 2, first.Succeeded)
			assert.Equal(t, []string{"a", "b"}, sub.titles(), "каждый элемент отправлен один раз")

			// блокировка снята, следующий проход идет
			res, err = manual.Flush(ctx)
			require.NoError(t, err)
			assert.False(t, res.Skipped)
			assert.Zero(t, res.Remaining)
		})
	}
}

func TestFileStore_TryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.json")
	a, b := NewFileStore(path), NewFileStore(path)

	unlock, ok, err := a.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlockB, ok, err := b.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	unlockB()
}

func TestFlush_PreservesEntriesEnqueuedDuringFlush(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{block: make(chan struct{}), failOn: map[string]bool{"a": true}}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())
	require.NoError(t, q.Enqueue(ctx, payload("a")))
	require.NoError(t, q.Enqueue(ctx, payload("b")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Flush(ctx)
	}()
	require.Eventually(t, q.flushing.Load, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, payload("c")))
	close(sub.block)
	<-done

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, titlesOf(t, pending))
}

// fakeSubscriber - ручной источник событий восстановления связи
type fakeSubscriber struct {
	mu  sync.Mutex
	fns []func()
}

func (s *fakeSubscriber) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
	idx := len(s.fns) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fns[idx] = nil
	}
}

func (s *fakeSubscriber) fire() {
	s.mu.Lock()
	fns := append([]func(){}, s.fns...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func TestListen_FlushesOnReconnect(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	q := NewQueue(NewMemoryStore(), sub, newTestLogger())
	require.NoError(t, q.Enqueue(ctx, payload("a")))

	events := &fakeSubscriber{}
	unsubscribe := q.Listen(ctx, events)

	events.fire()
	assert.Equal(t, []string{"a"}, sub.titles())

	unsubscribe()
	require.NoError(t, q.Enqueue(ctx, payload("b")))
	events.fire()
	assert.Equal(t, []string{"a"}, sub.titles(), "после отписки проход не запускается")
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "queue.json")
	store := NewFileStore(path)

	entries, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "нет файла - пустая очередь")

	e, err := NewCreateIssueEntry(payload("a"))
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, []Entry{e}))

	got, err := NewFileStore(path).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, titlesOf(t, got))

	require.NoError(t, store.Set(ctx, nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestFileStore_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.json")

	first := NewQueue(NewFileStore(path), &fakeSubmitter{}, newTestLogger())
	require.NoError(t, first.Enqueue(ctx, payload("a")))

	sub := &fakeSubmitter{}
	second := NewQueue(NewFileStore(path), sub, newTestLogger())
	res, err := second.Flush(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []string{"a"}, sub.titles())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o600))

	_, err := NewFileStore(path).Get(context.Background())
	assert.Error(t, err)
}

func TestDecodeCreateIssue_WrongType(t *testing.T) {
	_, err := DecodeCreateIssue(Entry{Type: "other", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)
}
