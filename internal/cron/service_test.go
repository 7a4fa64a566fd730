package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func TestRunCycleRunsEveryJobAndReleases(t *testing.T) {
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failing, ok),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "ok"}
	lock := &fakeLock{held: true}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "ok"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}

func TestRegistryCopiesJobs(t *testing.T) {
	a, b := &countingJob{name: "a"}, &countingJob{name: "b"}
	registry := NewRegistry(a, nil)
	registry.Register(b)
	registry.Register(nil)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, a, jobs[0])
	assert.Same(t, b, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}
