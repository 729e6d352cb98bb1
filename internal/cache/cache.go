package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/storage"

	"go.uber.org/zap"
)

// IndexKey is where the lookup index lives in the store.
const IndexKey = "mapper.json"

// Constraints is the part of a request a cached plan depends on.
type Constraints struct {
	DietaryRestrictions []string
	Preferences         []string
	SpecialRequirements []string
	DurationDays        int
}

// IndexEntry points a cache key at its newest stored plan.
type IndexEntry struct {
	Filename            string   `json:"filename"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Preferences         []string `json:"preferences"`
	SpecialRequirements []string `json:"special_requirements"`
	DurationDays        int      `json:"duration_days"`
	CachedAt            int64    `json:"cached_at"`
}

// Key fingerprints constraints. Lists are sorted and deduplicated first, so
// the same constraints in a different order give the same key.
func Key(c Constraints) string {
	n := c.normalized()
	// encoding/json writes map keys in sorted order.
	canonical, _ := json.Marshal(map[string]any{
		"dietary_restrictions": n.DietaryRestrictions,
		"duration_days":        n.DurationDays,
		"preferences":          n.Preferences,
		"special_requirements": n.SpecialRequirements,
	})
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

func (c Constraints) normalized() Constraints {
	return Constraints{
		DietaryRestrictions: sortedSet(c.DietaryRestrictions),
		Preferences:         sortedSet(c.Preferences),
		SpecialRequirements: sortedSet(c.SpecialRequirements),
		DurationDays:        c.DurationDays,
	}
}

func sortedSet(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// PlanCache stores serialized plans by constraint key. It is advisory:
// errors are logged and reported as misses, never returned to the caller.
type PlanCache struct {
	store   storage.Store
	enabled bool
	logger  *zap.Logger
	now     func() time.Time

	// guards the index read-modify-write within this process
	mu sync.Mutex
}

// New creates a PlanCache on top of store.
func New(store storage.Store, enabled bool, logger *zap.Logger) *PlanCache {
	return &PlanCache{
		store:   store,
		enabled: enabled,
		logger:  logger.Named("cache"),
		now:     time.Now,
	}
}

// Enabled reports whether lookups and writes are performed.
func (c *PlanCache) Enabled() bool {
	return c != nil && c.enabled && c.store != nil
}

// Get returns the newest plan body stored under key.
func (c *PlanCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	index, err := c.loadIndex(ctx)
	if err != nil {
		c.logger.Error("failed to read cache index", zap.Error(err))
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return nil, false
	}

	entry, ok := index[key]
	if !ok {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	body, ok, err := c.store.Get(ctx, entry.Filename)
	if err != nil {
		c.logger.Error("failed to read cache entry", zap.String("filename", entry.Filename), zap.Error(err))
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		c.logger.Warn("cache index points at a missing entry, pruning", zap.String("cache_key", short(key)), zap.String("filename", entry.Filename))
		c.prune(ctx, key, entry.Filename)
		metrics.CacheRequests.WithLabelValues("stale").Inc()
		return nil, false
	}

	c.logger.Info("cache hit", zap.String("cache_key", short(key)))
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return body, true
}

// Put stores body as a new entry and repoints the index at it. Older
// entries for the same key are left in place.
func (c *PlanCache) Put(ctx context.Context, key string, constraints Constraints, body []byte) {
	if !c.Enabled() {
		return
	}

	now := c.now()
	filename := fmt.Sprintf("meal_plan_%s_%d.json", key, now.UnixNano())
	if err := c.store.Put(ctx, filename, body); err != nil {
		c.logger.Error("failed to write cache entry", zap.String("filename", filename), zap.Error(err))
		return
	}

	n := constraints.normalized()
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.loadIndex(ctx)
	if err != nil {
		c.logger.Error("failed to read cache index, rebuilding", zap.Error(err))
		index = map[string]IndexEntry{}
	}
	index[key] = IndexEntry{
		Filename:            filename,
		DietaryRestrictions: n.DietaryRestrictions,
		Preferences:         n.Preferences,
		SpecialRequirements: n.SpecialRequirements,
		DurationDays:        n.DurationDays,
		CachedAt:            now.Unix(),
	}
	if err := c.saveIndex(ctx, index); err != nil {
		c.logger.Error("failed to write cache index", zap.Error(err))
		return
	}
	c.logger.Info("plan cached", zap.String("cache_key", short(key)), zap.String("filename", filename))
}

// Clear removes every stored plan and resets the index.
func (c *PlanCache) Clear(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	if err := c.saveIndex(ctx, map[string]IndexEntry{}); err != nil {
		return fmt.Errorf("failed to reset cache index: %w", err)
	}
	c.logger.Info("cache cleared")
	return nil
}

// Entries returns a snapshot of the index.
func (c *PlanCache) Entries(ctx context.Context) (map[string]IndexEntry, error) {
	if c == nil || c.store == nil {
		return map[string]IndexEntry{}, nil
	}
	return c.loadIndex(ctx)
}

// Len returns the number of indexed plans.
func (c *PlanCache) Len(ctx context.Context) (int, error) {
	index, err := c.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(index), nil
}

// prune drops key from the index unless a concurrent Put already repointed it.
func (c *PlanCache) prune(ctx context.Context, key, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.loadIndex(ctx)
	if err != nil {
		c.logger.Error("failed to read cache index for pruning", zap.Error(err))
		return
	}
	if entry, ok := index[key]; !ok || entry.Filename != filename {
		return
	}
	delete(index, key)
	if err := c.saveIndex(ctx, index); err != nil {
		c.logger.Error("failed to write pruned cache index", zap.Error(err))
	}
}

func (c *PlanCache) loadIndex(ctx context.Context) (map[string]IndexEntry, error) {
	data, ok, err := c.store.Get(ctx, IndexKey)
	if err != nil {
		return nil, err
	}
	index := map[string]IndexEntry{}
	if !ok || len(data) == 0 {
		return index, nil
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("corrupt cache index: %w", err)
	}
	return index, nil
}

func (c *PlanCache) saveIndex(ctx context.Context, index map[string]IndexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache index: %w", err)
	}
	return c.store.Put(ctx, IndexKey, data)
}

func short(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
