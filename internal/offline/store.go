package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlushLockTTL - срок блокировки прохода в Redis на случай, если процесс упал, не сняв ее
const FlushLockTTL = 2 * time.Minute

// MemoryStore хранит очередь в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	flush   sync.Mutex
}

func NewMemoryStore(entries ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), entries...)}
}

func (s *MemoryStore) Get(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

func (s *MemoryStore) Set(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry(nil), entries...)
	return nil
}

func (s *MemoryStore) TryLock(_ context.Context) (func(), bool, error) {
	if !s.flush.TryLock() {
		return nil, false, nil
	}
	return s.flush.Unlock, true, nil
}

// DefaultFilePath возвращает путь к файлу очереди в каталоге данных XDG
func DefaultFilePath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("civic-reporter", QueueKey+".json"))
	if err != nil {
		return "", fmt.Errorf("could not resolve queue file path: %w", err)
	}
	return path, nil
}

// FileStore хранит очередь JSON-массивом в файле. Запись атомарна (временный файл + rename).
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// TryLock берет advisory-блокировку на соседний файл <path>.lock
func (s *FileStore) TryLock(_ context.Context) (func(), bool, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, false, fmt.Errorf("failed to create queue dir: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock queue file: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { _ = lock.Unlock() }, true, nil
}

func (s *FileStore) Get(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	return decodeEntries(data)
}

func (s *FileStore) Set(_ context.Context, entries []Entry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create queue dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close queue file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// RedisStore хранит очередь одним ключом в Redis
type RedisStore struct {
	redisClient *redis.Client
	key         string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = QueueKey
	}
	return &RedisStore{redisClient: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context) ([]Entry, error) {
	val, err := s.redisClient.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get queue from redis: %w", err)
	}
	return decodeEntries(val)
}

func (s *RedisStore) Set(ctx context.Context, entries []Entry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	if err := s.redisClient.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set queue in redis: %w", err)
	}
	return nil
}

// снимаем блокировку, только если она все еще наша
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) lockKey() string {
	return s.key + ":flush-lock"
}

// TryLock - SET NX с TTL и случайным токеном владельца
func (s *RedisStore) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := s.redisClient.SetNX(ctx, s.lockKey(), token, FlushLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock queue in redis: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		_ = releaseLockScript.Run(context.WithoutCancel(ctx), s.redisClient, []string{s.lockKey()}, token).Err()
	}, true, nil
}

func decodeEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue: %w", err)
	}
	return entries, nil
}

func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue: %w", err)
	}
	return data, nil
}
