package database

import (
	"context"
	"errors"
	"net/netip"

	"shrike/internal/domain"
	"shrike/internal/geo"

	"golang.org/x/sync/errgroup"
)

const (
	geoRefreshBatchSize  = 512
	geoRefreshMaxWorkers = 16
)

var (
	ErrGeoRefreshDatabaseNotInitialized = errors.New("database: connection not initialized")
	ErrGeoRefreshUnavailable            = errors.New("database: geo databases unavailable")
)

// RunIPLogGeoRefresh backfills country and AS organization on logged
// addresses that have not been resolved yet. It returns how many rows were
// scanned and how many received geo data. A zero batchSize uses the default.
func RunIPLogGeoRefresh(ctx context.Context, batchSize int) (int64, int64, error) {
	if DB == nil {
		return 0, 0, ErrGeoRefreshDatabaseNotInitialized
	}
	if !geo.Available() {
		return 0, 0, ErrGeoRefreshUnavailable
	}
	if batchSize <= 0 {
		batchSize = geoRefreshBatchSize
	}

	var (
		scanned int64
		updated int64
		lastID  uint64
	)

	for {
		if ctx.Err() != nil {
			return scanned, updated, ctx.Err()
		}

		var batch []domain.IPLog
		err := DB.WithContext(ctx).
			Where("id > ? AND country = '' AND as_org = ''", lastID).
			Order("id").
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return scanned, updated, err
		}
		if len(batch) == 0 {
			return scanned, updated, nil
		}
		lastID = batch[len(batch)-1].ID
		scanned += int64(len(batch))

		resolved := make([]geo.Location, len(batch))
		ok := make([]bool, len(batch))

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(geoRefreshMaxWorkers)
		for i := range batch {
			group.Go(func() error {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				addr, err := netip.ParseAddr(batch[i].IPAddress)
				if err != nil {
					return nil
				}
				loc, err := geo.Resolve(addr)
				if err != nil {
					return nil
				}
				resolved[i] = loc
				ok[i] = true
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return scanned, updated, err
		}

		for i := range batch {
			if !ok[i] {
				continue
			}
			updates := map[string]any{
				"country": resolved[i].Country,
				"as_org":  resolved[i].ASOrg,
			}
			if err := DB.WithContext(ctx).Model(&domain.IPLog{}).
				Where("id = ?", batch[i].ID).
				Updates(updates).Error; err != nil {
				return scanned, updated, err
			}
			updated++
		}
	}
}
