package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// Store caches resolved catalog records. A miss is (nil, nil).
type Store interface {
	Get(ctx context.Context, packageName string) (*models.CustomNodeSpec, error)
	Put(ctx context.Context, spec *models.CustomNodeSpec) error
	Packages(ctx context.Context) ([]string, error)
	Close() error
}

// NewStore picks the cache implementation from the URL scheme: redis
// URLs get the shared cache, everything else stays in process memory.
func NewStore(ctx context.Context, cacheURL string) (Store, error) {
	scheme, _, _ := strings.Cut(cacheURL, "://")
	switch scheme {
	case "redis", "rediss":
		return NewRedisStore(ctx, cacheURL)
	default:
		return NewMemoryStore(), nil
	}
}

// MemoryStore keeps catalog records in process memory. Entries never
// expire; the scheduled refresh keeps them current instead.
type MemoryStore struct {
	mu    sync.RWMutex
	specs map[string]*models.CustomNodeSpec
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{specs: make(map[string]*models.CustomNodeSpec)}
}

func (m *MemoryStore) Get(_ context.Context, packageName string) (*models.CustomNodeSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spec, ok := m.specs[packageName]
	if !ok {
		return nil, nil
	}

	return copySpec(spec), nil
}

func (m *MemoryStore) Put(_ context.Context, spec *models.CustomNodeSpec) error {
	if spec.PackageName == "" {
		return errors.New("catalog record requires a package name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.specs[spec.PackageName] = copySpec(spec)

	return nil
}

func (m *MemoryStore) Packages(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.specs))
	for name := range m.specs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

func (m *MemoryStore) Close() error { return nil }

func copySpec(spec *models.CustomNodeSpec) *models.CustomNodeSpec {
	copied := *spec
	copied.Types = append([]string(nil), spec.Types...)
	copied.Fields = append([]string(nil), spec.Fields...)
	copied.Keywords = append([]string(nil), spec.Keywords...)

	return &copied
}

const (
	redisKeyPrefix = "flowmuse:catalog:"
	redisEntryTTL  = 24 * time.Hour
)

// RedisStore shares catalog records across processes, with a TTL so
// stale descriptions age out even without the scheduled refresh.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(ctx context.Context, cacheURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(cacheURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog cache url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, packageName string) (*models.CustomNodeSpec, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+packageName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read catalog record: %w", err)
	}

	var spec models.CustomNodeSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("corrupt catalog record for '%s': %w", packageName, err)
	}

	return &spec, nil
}

func (r *RedisStore) Put(ctx context.Context, spec *models.CustomNodeSpec) error {
	if spec.PackageName == "" {
		return errors.New("catalog record requires a package name")
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to serialize catalog record: %w", err)
	}

	return r.client.Set(ctx, redisKeyPrefix+spec.PackageName, raw, redisEntryTTL).Err()
}

func (r *RedisStore) Packages(ctx context.Context) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog records: %w", err)
		}

		for _, key := range keys {
			names = append(names, strings.TrimPrefix(key, redisKeyPrefix))
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Strings(names)

	return names, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
