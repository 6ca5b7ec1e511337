package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/support"
)

const (
	ipGeoRefreshLockKey        = "shrike:leader:iplog_geo_refresh"
	ipGeoRefreshFallbackTicker = 24 * time.Hour
)

// StartIPLogGeoRefreshRoutine periodically backfills geo data on logged
// addresses. Only the cluster leader runs the refresh.
func StartIPLogGeoRefreshRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initialInterval := config.GetIPGeoRefreshInterval()
	if initialInterval <= 0 {
		initialInterval = ipGeoRefreshFallbackTicker
	}
	intervalValue.Store(initialInterval)

	updateSignal := make(chan struct{}, 1)
	updates := config.IPGeoRefreshIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = ipGeoRefreshFallbackTicker
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, ipGeoRefreshLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runIPGeoRefreshLoop(leaderCtx, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("IP log geo refresh routine stopped", "error", err)
	}
}

func runIPGeoRefreshLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	currentInterval := intervalValue.Load().(time.Duration)
	if currentInterval <= 0 {
		currentInterval = ipGeoRefreshFallbackTicker
	}

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	refreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshOnce(ctx)
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = ipGeoRefreshFallbackTicker
			}
			if newInterval == currentInterval {
				continue
			}
			drainTicker(ticker)
			currentInterval = newInterval
			ticker.Reset(currentInterval)
		}
	}
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

func refreshOnce(ctx context.Context) {
	start := time.Now()

	scanned, updated, err := database.RunIPLogGeoRefresh(ctx, 0)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrGeoRefreshDatabaseNotInitialized):
			log.Warn("IP log geo refresh skipped: database not initialized")
		case errors.Is(err, database.ErrGeoRefreshUnavailable):
			log.Warn("IP log geo refresh skipped: geo databases unavailable")
		case errors.Is(err, context.Canceled):
			log.Info("IP log geo refresh canceled", "duration", time.Since(start))
		default:
			log.Error("IP log geo refresh failed", "error", err)
		}
		return
	}

	log.Info("IP log geo refresh completed", "scanned", scanned, "updated", updated, "duration", time.Since(start))
}
