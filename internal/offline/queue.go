// Package offline хранит неотправленные обращения и повторяет их отправку
// после восстановления связи.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// QueueKey - ключ очереди в локальном хранилище клиента
	QueueKey = "offline-queue"

	KindCreateIssue = "create-issue"
)

// Entry - элемент очереди в формате {"type": ..., "payload": ...}
type Entry struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewCreateIssueEntry упаковывает тело запроса создания обращения
func NewCreateIssueEntry(payload models.CreateIssuePayload) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal queued payload: %w", err)
	}
	return Entry{Type: KindCreateIssue, Payload: raw}, nil
}

// Store - долговременное хранилище очереди. Get и Set работают со всей очередью целиком.
// TryLock захватывает блокировку прохода на весь срок хранилища: для файла и Redis
// она видна другим процессам. ok == false означает, что проход уже идет.
type Store interface {
	Get(ctx context.Context) ([]Entry, error)
	Set(ctx context.Context, entries []Entry) error
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Submitter отправляет обращение на сервер
type Submitter interface {
	CreateIssue(ctx context.Context, payload models.CreateIssuePayload) (*models.Issue, error)
}

// Subscriber - источник событий восстановления связи
type Subscriber interface {
	Subscribe(fn func()) (unsubscribe func())
}

// FlushResult - итог одного прохода по очереди
type FlushResult struct {
	// Skipped - проход уже выполнялся, вызов ничего не сделал
	Skipped   bool
	Attempted int
	Succeeded int
	Remaining int
}

// Queue - FIFO-очередь неотправленных обращений без дедупликации
type Queue struct {
	store     Store
	submitter Submitter
	logger    *logrus.Logger

	// mu защищает цикл чтение-изменение-запись хранилища
	mu       sync.Mutex
	flushing atomic.Bool
}

func NewQueue(store Store, submitter Submitter, logger *logrus.Logger) *Queue {
	return &Queue{
		store:     store,
		submitter: submitter,
		logger:    logger,
	}
}

// Enqueue добавляет обращение в конец очереди и сразу сохраняет ее
func (q *Queue) Enqueue(ctx context.Context, payload models.CreateIssuePayload) error {
	entry, err := NewCreateIssueEntry(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("offline: could not read queue: %w", err)
	}
	entries = append(entries, entry)
	if err := q.store.Set(ctx, entries); err != nil {
		return fmt.Errorf("offline: could not persist queue: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"component": "offline_queue",
		"size":      len(entries),
	}).Info("Submission queued for retry")
	return nil
}

// Pending возвращает текущее содержимое очереди
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Get(ctx)
}

// Flush проходит очередь по порядку, по одной попытке на элемент. Удачные элементы
// удаляются, неудачные остаются в исходном порядке. Пока проход идет, повторные
// вызовы ничего не делают.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	log := q.logger.WithFields(logrus.Fields{
		"component": "offline_queue",
		"method":    "Flush",
	})

	if !q.flushing.CompareAndSwap(false, true) {
		log.Debug("Flush already in progress, skipping")
		return FlushResult{Skipped: true}, nil
	}
	defer q.flushing.Store(false)

	unlock, ok, err := q.store.TryLock(ctx)
	if err != nil {
		return FlushResult{}, fmt.Errorf("offline: could not lock queue: %w", err)
	}
	if !ok {
		log.Debug("Queue is being flushed by another process, skipping")
		return FlushResult{Skipped: true}, nil
	}
	defer unlock()

	q.mu.Lock()
	snapshot, err := q.store.Get(ctx)
	q.mu.Unlock()
	if err != nil {
		return FlushResult{}, fmt.Errorf("offline: could not read queue: %w", err)
	}
	if len(snapshot) == 0 {
		return FlushResult{}, nil
	}

	log.WithField("size", len(snapshot)).Info("Flushing offline queue")

	var (
		failed []Entry
		result FlushResult
	)
	for _, entry := range snapshot {
		if entry.Type != KindCreateIssue {
			// неизвестный тип не теряем
			log.WithField("type", entry.Type).Warn("Unknown queue entry type, keeping it")
			failed = append(failed, entry)
			continue
		}

		result.Attempted++
		if err := q.submit(ctx, entry); err != nil {
			log.WithError(err).Warn("Queued submission failed, will retry on next reconnect")
			failed = append(failed, entry)
			continue
		}
		result.Succeeded++
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// во время прохода могли добавиться новые элементы, они идут после оставшихся
	current, err := q.store.Get(ctx)
	if err != nil {
		return result, fmt.Errorf("offline: could not re-read queue: %w", err)
	}
	rest := failed
	if len(current) > len(snapshot) {
		rest = append(rest, current[len(snapshot):]...)
	}
	if err := q.store.Set(ctx, rest); err != nil {
		return result, fmt.Errorf("offline: could not persist queue: %w", err)
	}

	result.Remaining = len(rest)
	log.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"remaining": result.Remaining,
	}).Info("Offline queue flushed")
	return result, nil
}

func (q *Queue) submit(ctx context.Context, entry Entry) error {
	payload, err := DecodeCreateIssue(entry)
	if err != nil {
		return err
	}
	_, err = q.submitter.CreateIssue(ctx, payload)
	return err
}

// DecodeCreateIssue распаковывает элемент типа create-issue
func DecodeCreateIssue(entry Entry) (models.CreateIssuePayload, error) {
	var payload models.CreateIssuePayload
	if entry.Type != KindCreateIssue {
		return payload, fmt.Errorf("unexpected entry type %q", entry.Type)
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return payload, fmt.Errorf("corrupt queued payload: %w", err)
	}
	return payload, nil
}

// Listen запускает Flush на каждое восстановление связи. Возвращает функцию отписки.
func (q *Queue) Listen(ctx context.Context, sub Subscriber) (unsubscribe func()) {
	return sub.Subscribe(func() {
		if _, err := q.Flush(ctx); err != nil {
			q.logger.WithError(err).Error("Offline queue flush failed")
		}
	})
}
