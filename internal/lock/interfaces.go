// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For deployments sharing one database, Redis-based locks can be used.
package lock

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another owner.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// IsHeld checks if the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// RetryPolicy controls AcquireAll.
type RetryPolicy struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRetryPolicy is used when a zero policy is passed to AcquireAll.
var DefaultRetryPolicy = RetryPolicy{
	TTL:        10 * time.Second,
	MaxRetries: 20,
	RetryDelay: 50 * time.Millisecond,
}

// AcquireAll acquires every key in sorted order so two callers asking for an
// overlapping set cannot deadlock. On success the returned release func frees
// all keys. On failure every key taken so far is released again.
func AcquireAll(ctx context.Context, locker Locker, policy RetryPolicy, keys ...string) (release func(), ok bool, err error) {
	if policy.TTL <= 0 {
		policy = DefaultRetryPolicy
	}

	sorted := dedupe(keys)
	held := make([]string, 0, len(sorted))
	release = func() {
		// Release must run even when ctx was cancelled.
		bg := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			_, _ = locker.Release(bg, held[i])
		}
	}

	for _, key := range sorted {
		acquired, err := locker.AcquireWithRetry(ctx, key, policy.TTL, policy.MaxRetries, policy.RetryDelay)
		if err != nil || !acquired {
			release()
			return func() {}, false, err
		}
		held = append(held, key)
	}
	return release, true, nil
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Username returns a lock key guarding registration of a username.
// Usernames are unique regardless of case, so the key is lowercased.
func (lockKeys) Username(username string) string {
	return "lock:user:username:" + normalize(username)
}

// Email returns a lock key guarding registration of an email address.
func (lockKeys) Email(email string) string {
	return "lock:user:email:" + normalize(email)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
