package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benvon/nextstep/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedGoalStore wraps a GoalStore with a Redis read-through cache for List.
// Every write bumps the owner's generation and evicts the cached list; a fill that started
// before a write is discarded. Redis failures fall back to the backing store.
type CachedGoalStore struct {
	base   GoalStore
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedGoalStore creates a caching wrapper around base
func NewCachedGoalStore(base GoalStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedGoalStore {
	if base == nil {
		panic("database.NewCachedGoalStore: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGoalStore{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedGoalStore) Create(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	created, err := c.base.Create(ctx, goal)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, created.OwnerID)
	return created, nil
}

func (c *CachedGoalStore) List(ctx context.Context, ownerID string) ([]*models.Goal, error) {
	if goals, ok := c.load(ctx, ownerID); ok {
		return goals, nil
	}

	// The generation is read before the backing store so a write that lands in between
	// makes the fill below a no-op instead of caching the pre-write list.
	gen, genOK := c.generation(ctx, ownerID)
	goals, err := c.base.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, ownerID, gen, goals)
	}
	return goals, nil
}

func (c *CachedGoalStore) Get(ctx context.Context, ownerID, goalID string) (*models.Goal, error) {
	return c.base.Get(ctx, ownerID, goalID)
}

func (c *CachedGoalStore) Patch(ctx context.Context, ownerID, goalID string, patch models.GoalPatch) (*models.Goal, error) {
	goal, err := c.base.Patch(ctx, ownerID, goalID, patch)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, ownerID)
	return goal, nil
}

func (c *CachedGoalStore) UpdateTask(ctx context.Context, ownerID, goalID, taskID string, mutate TaskMutator) (bool, error) {
	stored, err := c.base.UpdateTask(ctx, ownerID, goalID, taskID, mutate)
	if err != nil {
		return false, err
	}
	if stored {
		c.evict(ctx, ownerID)
	}
	return stored, nil
}

func (c *CachedGoalStore) Delete(ctx context.Context, ownerID, goalID string) error {
	if err := c.base.Delete(ctx, ownerID, goalID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *CachedGoalStore) load(ctx context.Context, ownerID string) ([]*models.Goal, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, goalsCacheKey(ownerID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("goals_cache_read_failed", zap.Error(err))
			_ = c.redis.Del(ctx, goalsCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var goals []*models.Goal
	if err := json.Unmarshal(data, &goals); err != nil {
		_ = c.redis.Del(ctx, goalsCacheKey(ownerID)).Err()
		return nil, false
	}
	return goals, true
}

// generation returns the owner's write counter. Writes bump it before dropping the cached list.
func (c *CachedGoalStore) generation(ctx context.Context, ownerID string) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, goalsGenerationKey(ownerID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		c.logger.Warn("goals_cache_read_failed", zap.Error(err))
		return 0, false
	}
	return gen, true
}

// store caches goals only while the owner's generation still equals gen
func (c *CachedGoalStore) store(ctx context.Context, ownerID string, gen int64, goals []*models.Goal) {
	data, err := json.Marshal(goals)
	if err != nil {
		return
	}

	genKey := goalsGenerationKey(ownerID)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, goalsCacheKey(ownerID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil, errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
	default:
		c.logger.Warn("goals_cache_write_failed", zap.Error(err))
	}
}

func (c *CachedGoalStore) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, goalsGenerationKey(ownerID))
		pipe.Del(ctx, goalsCacheKey(ownerID))
		return nil
	})
	if err != nil {
		c.logger.Warn("goals_cache_evict_failed", zap.Error(err))
	}
}

// errStaleFill aborts a fill that raced with a write
var errStaleFill = errors.New("goals cache fill is stale")

func goalsCacheKey(ownerID string) string {
	return "goals:" + ownerID
}

func goalsGenerationKey(ownerID string) string {
	return "goals:" + ownerID + ":gen"
}
