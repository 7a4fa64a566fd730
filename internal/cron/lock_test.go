package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockExclusive(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "cron:lock", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron:lock", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// a non-owner release must not free the lock
	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "cron:lock")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "cron:lock")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesForeignOwner(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "cron:lock", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.values["cron:lock"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["cron:lock"])
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Second)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", time.Second)
	assert.Error(t, err)
}
