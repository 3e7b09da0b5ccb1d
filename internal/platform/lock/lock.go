// Package lock provides lease-based mutual exclusion across service
// replicas.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrLeaseLost is returned by Refresh when the lease expired and the lock
// is gone or owned by someone else.
var ErrLeaseLost = errors.New("lock lease lost")

// Locker acquires named leases.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	// Refresh pushes the expiry to ttl from now, provided the lease is
	// still held.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// RedisLocker implements Locker with SET NX PX. Refresh and release compare
// the token first so a holder whose lease expired cannot touch a successor.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:"}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := l.prefix + name
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLease{client: l.client, name: name, key: key, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	name   string
	key    string
	token  string
	once   sync.Once
}

func (r *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, r.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", r.name, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	var releaseErr error
	r.once.Do(func() {
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err(); err != nil {
			releaseErr = fmt.Errorf("release lock %s: %w", r.name, err)
		}
	})
	return releaseErr
}

// MemoryLocker implements Locker for a single process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[name]; ok && l.now().Before(held.expires) {
		return nil, ErrNotAcquired
	}
	l.leases[name] = memoryLease{token: token, expires: l.now().Add(ttl)}
	return &memoryHandle{locker: l, name: name, token: token}, nil
}

type memoryHandle struct {
	locker *MemoryLocker
	name   string
	token  string
}

func (h *memoryHandle) Refresh(_ context.Context, ttl time.Duration) error {
	l := h.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.leases[h.name]
	if !ok || held.token != h.token || !l.now().Before(held.expires) {
		return ErrLeaseLost
	}
	held.expires = l.now().Add(ttl)
	l.leases[h.name] = held
	return nil
}

func (h *memoryHandle) Release(context.Context) error {
	l := h.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[h.name]; ok && held.token == h.token {
		delete(l.leases, h.name)
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
