package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
)

// CacheCheckpointStore keeps batch checkpoints and job locks in a
// cache.Service (Redis in production, memory in tests).
type CacheCheckpointStore struct {
	cache cache.Service
	ttl   time.Duration
}

var _ domrepo.CheckpointStore = (*CacheCheckpointStore)(nil)

// NewCacheCheckpointStore creates a store. ttl bounds how long an abandoned
// checkpoint survives; zero keeps it until cleared.
func NewCacheCheckpointStore(c cache.Service, ttl time.Duration) *CacheCheckpointStore {
	return &CacheCheckpointStore{cache: c, ttl: ttl}
}

func checkpointKey(jobID string) string { return "checkpoint:" + jobID }
func lockKey(jobID string) string { return "lock:" + jobID }

func (s *CacheCheckpointStore) Load(ctx context.Context, jobID string) (models.Checkpoint, bool, error) {
	var cp models.Checkpoint
	err := s.cache.Get(ctx, checkpointKey(jobID), &cp)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.Checkpoint{}, false, nil
	}
	if err != nil {
		return models.Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", jobID, err)
	}
	return cp, true, nil
}

func (s *CacheCheckpointStore) Save(ctx context.Context, cp models.Checkpoint) error {
	if cp.JobID == "" {
		return errors.New("checkpoint without job id")
	}
	if err := s.cache.Set(ctx, checkpointKey(cp.JobID), cp, s.ttl); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.JobID, err)
	}
	return nil
}

func (s *CacheCheckpointStore) Clear(ctx context.Context, jobID string) error {
	if err := s.cache.Delete(ctx, checkpointKey(jobID)); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", jobID, err)
	}
	return nil
}

func (s *CacheCheckpointStore) TryLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	ok, err := s.cache.TryLock(ctx, lockKey(jobID), ttl)
	if err != nil {
		return false, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	return ok, nil
}

func (s *CacheCheckpointStore) Unlock(ctx context.Context, jobID string) error {
	return s.cache.Unlock(ctx, lockKey(jobID))
}
