package bootstrap

import (
	"context"

	"github.com/charmbracelet/log"

	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/denylist"
	"shrike/internal/geo"
	jobruntime "shrike/internal/jobs/runtime"
	"shrike/internal/support"
)

func Setup() {
	config.ReadSettings()

	ctx := context.Background()

	if client, err := support.GetRedisClient(); err != nil {
		log.Warn("Redis unavailable, running without cross-instance sync", "error", err)
	} else {
		config.EnableRedisSynchronization(ctx, client)
		geo.EnableRedisDistribution(ctx, client)
	}

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}
	config.SetBetweenTime()

	if err := geo.EnsureDataDir(); err != nil {
		log.Warn("Could not create geo data directory", "error", err)
	}
	if err := geo.ReloadFromDisk(); err != nil {
		// Follower instances pull the databases over redis instead.
		log.Info("GeoIP databases not loaded from disk yet", "error", err)
		if synced, syncErr := geo.SyncFromRedis(ctx); syncErr != nil {
			log.Debug("GeoIP redis sync failed", "error", syncErr)
		} else if synced {
			log.Info("GeoIP databases fetched from redis")
		}
	}

	if err := denylist.LoadCache(ctx); err != nil {
		log.Warn("Could not hydrate reporter denylist", "error", err)
	}

	// Routines

	go jobruntime.StartReportIntakeRoutine(ctx)
	go jobruntime.StartIPLogGeoRefreshRoutine(ctx)
	go jobruntime.StartGeoIPUpdateRoutine(ctx)
	go denylist.StartRefreshRoutine(ctx)
}
