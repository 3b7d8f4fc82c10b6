// Package connectivity следит за доступностью API и сообщает подписчикам о восстановлении связи
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 8 * time.Second
)

// Pinger - проверка доступности (обычно client.IssueClient)
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor периодически проверяет связь. Переход offline -> online вызывает подписчиков.
// Начальное состояние - offline, поэтому первая удачная проверка тоже считается восстановлением.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func()
}

func NewMonitor(pinger Pinger, interval, timeout time.Duration, logger *logrus.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		subs:     make(map[int]func()),
	}
}

// Subscribe регистрирует обработчик восстановления связи и возвращает функцию отписки
func (m *Monitor) Subscribe(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Online возвращает последнее известное состояние
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check выполняет одну проверку и возвращает true, если связь только что восстановилась
func (m *Monitor) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(checkCtx)
	cancel()

	m.mu.Lock()
	was := m.online
	m.online = err == nil
	restored := !was && m.online
	var handlers []func()
	if restored {
		handlers = make([]func(), 0, len(m.subs))
		for _, fn := range m.subs {
			handlers = append(handlers, fn)
		}
	}
	m.mu.Unlock()

	switch {
	case err != nil && was:
		m.logger.WithError(err).Warn("Connectivity lost")
	case restored:
		m.logger.WithField("subscribers", len(handlers)).Info("Connectivity restored")
	}

	// обработчики не должны блокировать цикл проверок
	for _, fn := range handlers {
		go fn()
	}
	return restored
}

// Run проверяет связь сразу и затем с заданным интервалом до отмены контекста
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
