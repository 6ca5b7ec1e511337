package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"shrike/internal/support"
)

const (
	geoRedisKeyPrefix = "shrike:geoip:file:"
	geoRedisChannel   = "shrike:geoip:updates"
	geoRedisOpTimeout = 30 * time.Second
)

type geoUpdatePayload struct {
	Files     []string `json:"files"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type geoRedisState struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

var globalGeoRedis geoRedisState

// EnableRedisDistribution wires mmdb replication to Redis so that only one
// node needs to download the MaxMind archives.
func EnableRedisDistribution(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Warn("GeoIP redis distribution disabled: redis client is nil")
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	globalGeoRedis.mu.Lock()
	if globalGeoRedis.client != nil {
		globalGeoRedis.mu.Unlock()
		cancel()
		return
	}

	globalGeoRedis.client = client
	globalGeoRedis.ctx = syncCtx
	globalGeoRedis.cancel = cancel
	globalGeoRedis.mu.Unlock()

	go func() {
		if updated, err := fetchDatabasesFromRedis(syncCtx, client, nil); err != nil {
			log.Error("geoip redis sync: initial load failed", "error", err)
		} else if updated {
			log.Info("geoip redis sync: loaded databases from redis")
		}
	}()

	go subscribeToGeoUpdates(syncCtx, client)
}

// PublishDatabases uploads the current mmdb files to Redis and notifies the
// other instances to pull them. filenames is optional; when empty all known
// editions are published.
func PublishDatabases(ctx context.Context, filenames []string) error {
	if len(filenames) == 0 {
		filenames = defaultFilenames()
	}

	client, baseCtx := geoRedisClient()
	if client == nil {
		var err error
		client, err = support.GetRedisClient()
		if err != nil {
			return fmt.Errorf("geoip redis sync: redis client unavailable: %w", err)
		}
		baseCtx = context.Background()
	}

	opCtx := mergedContext(ctx, baseCtx)
	for _, name := range filenames {
		data, err := os.ReadFile(FilePath(name))
		if err != nil {
			return fmt.Errorf("geoip redis sync: read %s: %w", name, err)
		}
		if err := storeGeoFile(opCtx, client, name, data); err != nil {
			return fmt.Errorf("geoip redis sync: store %s: %w", name, err)
		}
	}

	payload := geoUpdatePayload{
		Files:     filenames,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("geoip redis sync: serialize payload: %w", err)
	}

	return publishGeoNotification(opCtx, client, data)
}

// SyncFromRedis downloads the mmdb files from Redis if another instance has
// already published them.
func SyncFromRedis(ctx context.Context) (bool, error) {
	client, baseCtx := geoRedisClient()
	if client == nil {
		var err error
		client, err = support.GetRedisClient()
		if err != nil {
			return false, fmt.Errorf("geoip redis sync: redis client unavailable: %w", err)
		}
		baseCtx = context.Background()
	}

	return fetchDatabasesFromRedis(mergedContext(ctx, baseCtx), client, nil)
}

func subscribeToGeoUpdates(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, geoRedisChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("geoip redis sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var payload geoUpdatePayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Error("geoip redis sync: invalid payload", "error", err)
			continue
		}
		files := payload.Files
		if len(files) == 0 {
			files = defaultFilenames()
		}

		if updated, err := fetchDatabasesFromRedis(ctx, client, files); err != nil {
			log.Error("geoip redis sync: failed to apply update", "error", err)
		} else if updated {
			log.Info("geoip redis sync: applied update", "files", files)
		}
	}
}

func fetchDatabasesFromRedis(ctx context.Context, client *redis.Client, filenames []string) (bool, error) {
	if client == nil {
		return false, errors.New("geoip redis sync: redis client is nil")
	}
	if len(filenames) == 0 {
		filenames = defaultFilenames()
	}

	var updated bool
	for _, name := range filenames {
		data, err := fetchGeoFile(ctx, client, name)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return false, err
		}
		if len(data) == 0 {
			continue
		}
		if err := writeToFile(FilePath(name), bytes.NewReader(data)); err != nil {
			return false, fmt.Errorf("geoip redis sync: write %s: %w", name, err)
		}
		updated = true
	}

	if updated {
		if err := ReloadFromDisk(); err != nil {
			return false, fmt.Errorf("geoip redis sync: reload databases: %w", err)
		}
	}

	return updated, nil
}

func storeGeoFile(ctx context.Context, client *redis.Client, filename string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Set(opCtx, geoRedisKey(filename), data, 0).Err()
}

func publishGeoNotification(ctx context.Context, client *redis.Client, payload []byte) error {
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Publish(opCtx, geoRedisChannel, payload).Err()
}

func fetchGeoFile(ctx context.Context, client *redis.Client, filename string) ([]byte, error) {
	opCtx, cancel := redisTimeoutCtx(ctx)
	defer cancel()
	return client.Get(opCtx, geoRedisKey(filename)).Bytes()
}

func geoRedisKey(filename string) string {
	return geoRedisKeyPrefix + filename
}

func defaultFilenames() []string {
	files := make([]string, 0, len(downloadTargets))
	for _, target := range downloadTargets {
		files = append(files, target.filename)
	}
	return files
}

func geoRedisClient() (*redis.Client, context.Context) {
	globalGeoRedis.mu.RLock()
	defer globalGeoRedis.mu.RUnlock()
	return globalGeoRedis.client, globalGeoRedis.ctx
}

func mergedContext(ctx context.Context, fallback context.Context) context.Context {
	switch {
	case ctx != nil && ctx.Err() == nil:
		return ctx
	case fallback != nil && fallback.Err() == nil:
		return fallback
	default:
		return context.Background()
	}
}

func redisTimeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline && time.Until(deadline) <= geoRedisOpTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, geoRedisOpTimeout)
}
