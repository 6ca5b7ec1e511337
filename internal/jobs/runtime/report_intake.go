package runtime

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/denylist"
	"shrike/internal/domain"
	reportqueue "shrike/internal/jobs/queue/reports"
	"shrike/internal/support"
)

const (
	reportIntakeLockKey        = "shrike:leader:report_intake"
	reportIntakeFallbackTicker = 5 * time.Minute
)

// StartReportIntakeRoutine drains buffered abuse reports into the database on
// the leader instance. Reports from denylisted addresses are dropped, and
// add-ons that accumulate enough open reports get a moderation job opened
// automatically.
func StartReportIntakeRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initialInterval := config.GetQueueDrainInterval()
	if initialInterval <= 0 {
		initialInterval = reportIntakeFallbackTicker
	}
	intervalValue.Store(initialInterval)

	updateSignal := make(chan struct{}, 1)
	updates := config.QueueDrainIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = reportIntakeFallbackTicker
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, reportIntakeLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runReportIntakeLoop(leaderCtx, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Report intake routine stopped", "error", err)
	}
}

func runReportIntakeLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	currentInterval := intervalValue.Load().(time.Duration)
	if currentInterval <= 0 {
		currentInterval = reportIntakeFallbackTicker
	}

	ticker := time.NewTicker(currentInterval)
	defer ticker.Stop()

	drainReportQueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainReportQueue(ctx)
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = reportIntakeFallbackTicker
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

func drainReportQueue(ctx context.Context) {
	start := time.Now()
	persisted := 0
	dropped := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		queued, _, err := reportqueue.PublicReportQueue.PopDue(ctx)
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			log.Error("Failed to pop queued report", "error", err)
			break
		}

		if persistQueuedReport(queued) {
			persisted++
		} else {
			dropped++
		}
	}

	if persisted > 0 || dropped > 0 {
		log.Info("Report queue drained", "persisted", persisted, "dropped", dropped, "duration", time.Since(start))
	}
}

// persistQueuedReport stores one buffered report and reports whether it was
// kept. Denylisted reporter addresses are dropped without a trace in the
// reports table.
func persistQueuedReport(queued reportqueue.QueuedReport) bool {
	addr, addrErr := netip.ParseAddr(queued.IPAddress)
	if addrErr == nil && denylist.IsListed(addr) {
		log.Debug("Dropping report from denylisted address", "guid", queued.GUID)
		return false
	}

	report := domain.AbuseReport{
		GUID:          queued.GUID,
		Message:       queued.Message,
		Reason:        domain.ReasonFromString(queued.Reason),
		ReporterID:    queued.ReporterID,
		ReporterEmail: queued.ReporterEmail,
		ReporterName:  queued.ReporterName,
	}
	if addrErr != nil {
		addr = netip.Addr{}
	}

	if err := database.CreateAbuseReport(&report, addr); err != nil {
		log.Error("Failed to persist queued report", "guid", queued.GUID, "error", err)
		return false
	}

	maybeOpenModerationJob(report.GUID)
	return true
}

func maybeOpenModerationJob(guid string) {
	threshold := config.GetConfig().Moderation.AutoOpenThreshold
	if threshold == 0 {
		return
	}

	ids, err := database.OpenReportIDs(guid)
	if err != nil {
		log.Error("Failed to count open reports", "guid", guid, "error", err)
		return
	}
	if uint32(len(ids)) < threshold {
		return
	}

	job, err := database.OpenModerationJob(guid, ids)
	if err != nil {
		log.Error("Failed to auto-open moderation job", "guid", guid, "error", err)
		return
	}

	log.Info("Moderation job auto-opened", "guid", guid, "job", job.JobID, "reports", len(ids))
}
