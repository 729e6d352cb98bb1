package metrics

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"time"
)

// PlanCounter reports how many meal plans the cache currently indexes.
type PlanCounter interface {
	Len(ctx context.Context) (int, error)
}

// HealthSources are the components a health snapshot reads from. Cache and
// Usage may be nil.
type HealthSources struct {
	DataPath string
	Cache    PlanCounter
	Usage    *Store
}

// SysHealth is a point-in-time view of the process and the planner's state.
type SysHealth struct {
	AllocMB    uint64 `json:"alloc_mb"`
	SysMB      uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
	DataSize   string `json:"data_size"`

	// CachedPlans is -1 when the cache index could not be read.
	CachedPlans int `json:"cached_plans"`
	// ModelCallsToday and TokensToday are nil without a usage ledger.
	ModelCallsToday *int `json:"model_calls_today,omitempty"`
	TokensToday     *int `json:"tokens_today,omitempty"`
}

// GetSysHealth collects a health snapshot from src. Source failures degrade
// the affected fields instead of failing the whole snapshot.
func GetSysHealth(ctx context.Context, src HealthSources) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		AllocMB:    m.Alloc / 1024 / 1024,
		SysMB:      m.Sys / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		DataSize:   formatBytes(dirSize(src.DataPath)),
	}

	if src.Cache != nil {
		n, err := src.Cache.Len(ctx)
		if err != nil {
			n = -1
		}
		h.CachedPlans = n
	}

	if src.Usage != nil {
		calls, tokens := 0, 0
		if days, err := src.Usage.GetDailyUsage(ctx, 1); err == nil {
			today := time.Now().UTC().Format("2006-01-02")
			for _, d := range days {
				if d.Date == today {
					calls = d.TotalExecution
					tokens = d.TotalPrompt + d.TotalCompletion
				}
			}
		}
		h.ModelCallsToday = &calls
		h.TokensToday = &tokens
	}
	return h
}

// dirSize sums regular file sizes under path. A missing path counts as empty.
func dirSize(path string) int64 {
	if path == "" {
		return 0
	}
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
