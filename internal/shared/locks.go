package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when a lock could not be acquired before the wait
// budget ran out.
var ErrLockBusy = errors.New("resource is locked by another request")

// GRNLockKey builds the redis key serialising edits of a goods receipt.
func GRNLockKey(grnID uuid.UUID) string {
	return fmt.Sprintf("procurement:grn:%s:lock", grnID)
}

// InvoicePostingLockKey builds the redis key serialising stock posting for an invoice.
func InvoicePostingLockKey(invoiceID uuid.UUID) string {
	return fmt.Sprintf("procurement:invoice:%s:posting", invoiceID)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker provides short-lived mutual exclusion across API replicas. A nil
// Locker or one without a client runs callbacks unguarded.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewLocker constructs a Locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long WithLock polls before giving up.
func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &Locker{client: client, ttl: ttl, wait: wait, poll: 25 * time.Millisecond}
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockBusy, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.poll):
		}
	}
	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()
	return fn(ctx)
}
