// Package notify считает уведомления для шапки приложения: обращения, ждущие
// подтверждения, и мероприятия сообщества.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 8 * time.Second
)

type Kind string

const (
	KindIssue Kind = "issue"
	KindEvent Kind = "event"
)

// Item - одна строка списка уведомлений
type Item struct {
	ID    string
	Kind  Kind
	Title string
	Meta  string
	Href  string
	At    time.Time
}

// Summary - результат одного опроса
type Summary struct {
	Count int
	Items []Item
}

// Source - чтение обращений и мероприятий (client.IssueClient)
type Source interface {
	ListIssues(ctx context.Context) ([]models.Issue, error)
	ListCommunityEvents(ctx context.Context) ([]models.CommunityEvent, error)
}

type Poller struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewPoller(source Source, interval, timeout time.Duration, logger *logrus.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Poll выполняет один опрос. Недоступный источник дает пустой список, а не ошибку.
func (p *Poller) Poll(ctx context.Context) Summary {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	issues, err := p.source.ListIssues(reqCtx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to fetch issues for notifications")
		issues = nil
	}
	events, err := p.source.ListCommunityEvents(reqCtx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to fetch community events for notifications")
		events = nil
	}

	return Summarize(issues, events)
}

// Summarize строит список уведомлений: новые сверху
func Summarize(issues []models.Issue, events []models.CommunityEvent) Summary {
	items := make([]Item, 0, len(issues)+len(events))
	for _, i := range issues {
		if !i.Status.Actionable() {
			continue
		}
		meta := "Pending verification"
		if i.Status == models.StatusSubmitted {
			meta = "Needs verification"
		}
		items = append(items, Item{
			ID:    i.ID.String(),
			Kind:  KindIssue,
			Title: i.Title,
			Meta:  meta,
			Href:  "/issues",
			At:    i.CreatedAt,
		})
	}
	for _, e := range events {
		items = append(items, Item{
			ID:    e.ID.String(),
			Kind:  KindEvent,
			Title: e.Title,
			Meta:  fmt.Sprintf("%s • %s", e.StartsAt.Format("2006-01-02"), e.Location),
			Href:  "/contributions",
			At:    e.StartsAt,
		})
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].At.After(items[b].At)
	})
	return Summary{Count: len(items), Items: items}
}

// Run опрашивает сразу и затем каждые interval, пока контекст не отменен
func (p *Poller) Run(ctx context.Context, onUpdate func(Summary)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	onUpdate(p.Poll(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Poll(ctx)
			if ctx.Err() != nil {
				return
			}
			onUpdate(s)
		}
	}
}
