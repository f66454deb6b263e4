package service

import (
	"context"
	"sync"
	"time"

	"github.com/itchan-dev/accounts/shared/logger"
)

// TokenGarbageCollector removes confirmation tokens that expired without being used.
type TokenGarbageCollector struct {
	storage GCStorage

	mu               sync.Mutex
	lastCleanupStats CleanupStats
}

// CleanupStats describes the last collection run.
type CleanupStats struct {
	RunAt         time.Time
	TokensDeleted int64
	DurationMs    int64
	Err           error
}

type GCStorage interface {
	DeleteExpiredConfirmationTokens(ctx context.Context) (int64, error)
}

func NewTokenGarbageCollector(storage GCStorage) *TokenGarbageCollector {
	return &TokenGarbageCollector{storage: storage}
}

// StartBackgroundCleanup runs RunCleanup every interval until ctx is done.
func (gc *TokenGarbageCollector) StartBackgroundCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	logger.Log.Info("started confirmation token gc", "interval", interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.RunCleanup(ctx); err != nil {
					logger.Log.Error("confirmation token gc failed", "error", err)
					continue
				}
				stats := gc.GetLastCleanupStats()
				logger.Log.Info("confirmation token gc completed",
					"deleted", stats.TokensDeleted,
					"duration_ms", stats.DurationMs)
			case <-ctx.Done():
				logger.Log.Info("confirmation token gc shutting down")
				return
			}
		}
	}()
}

// RunCleanup executes a single collection cycle.
func (gc *TokenGarbageCollector) RunCleanup(ctx context.Context) error {
	startTime := time.Now()
	deleted, err := gc.storage.DeleteExpiredConfirmationTokens(ctx)

	stats := CleanupStats{
		RunAt:         startTime,
		TokensDeleted: deleted,
		DurationMs:    time.Since(startTime).Milliseconds(),
		Err:           err,
	}
	gc.mu.Lock()
	gc.lastCleanupStats = stats
	gc.mu.Unlock()

	if err != nil {
		return err
	}
	expiredTokensDeleted.Add(float64(deleted))
	return nil
}

func (gc *TokenGarbageCollector) GetLastCleanupStats() CleanupStats {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.lastCleanupStats
}
