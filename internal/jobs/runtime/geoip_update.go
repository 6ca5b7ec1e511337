package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"shrike/internal/config"
	"shrike/internal/geo"
	"shrike/internal/support"
)

const (
	geoIPUpdateLockKey        = "shrike:leader:geoip_update"
	geoIPUpdateFallbackTicker = 24 * time.Hour
)

// StartGeoIPUpdateRoutine keeps the MaxMind databases fresh on the leader
// instance. Instances without a configured API key stay idle and rely on the
// redis distribution channel instead.
func StartGeoIPUpdateRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initialInterval := config.GetGeoIPUpdateInterval()
	if initialInterval <= 0 {
		initialInterval = geoIPUpdateFallbackTicker
	}
	intervalValue.Store(initialInterval)

	updateSignal := make(chan struct{}, 1)
	updates := config.GeoIPUpdateIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = geoIPUpdateFallbackTicker
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, geoIPUpdateLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runGeoIPUpdateLoop(leaderCtx, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("GeoIP update routine stopped", "error", err)
	}
}

func runGeoIPUpdateLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	currentInterval := intervalValue.Load().(time.Duration)
	if currentInterval <= 0 {
		currentInterval = geoIPUpdateFallbackTicker
	}

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	triggerGeoIPUpdate(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerGeoIPUpdate(ctx, "scheduled")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = geoIPUpdateFallbackTicker
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

func triggerGeoIPUpdate(ctx context.Context, reason string) {
	cfg := config.GetConfig()
	if !cfg.GeoIP.AutoUpdate {
		return
	}
	if cfg.GeoIP.APIKey == "" {
		log.Debug("GeoIP update skipped: no API key configured", "reason", reason)
		return
	}

	RunGeoIPUpdate(ctx, reason, false)
}

// RunGeoIPUpdate downloads fresh databases immediately. Force bypasses the
// auto-update setting, for operator-initiated refreshes.
func RunGeoIPUpdate(ctx context.Context, reason string, force bool) {
	cfg := config.GetConfig()
	if !force && !cfg.GeoIP.AutoUpdate {
		return
	}

	start := time.Now()
	log.Info("GeoIP database update starting", "reason", reason)

	updated, err := geo.UpdateDatabases(ctx)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrNoAPIKey):
			log.Warn("GeoIP update skipped: no API key configured")
		case errors.Is(err, context.Canceled):
			log.Info("GeoIP update canceled", "duration", time.Since(start))
		default:
			log.Error("GeoIP database update failed", "error", err)
		}
		return
	}

	log.Info("GeoIP database update completed", "updated", updated, "duration", time.Since(start))
}
