package reportqueue

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shrike/internal/support"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	reportKeyPrefix = "report:"
	queueKey        = "report_queue"
	emptyQueueSleep = 1 * time.Second
)

//go:embed pop.lua
var luaPopScript string

// QueuedReport is the wire form of an abuse report waiting to be persisted.
type QueuedReport struct {
	GUID          string    `json:"guid"`
	Message       string    `json:"message"`
	Reason        string    `json:"reason"`
	ReporterID    *uint     `json:"reporter_id,omitempty"`
	ReporterEmail string    `json:"reporter_email,omitempty"`
	ReporterName  string    `json:"reporter_name,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type RedisReportQueue struct {
	client    *redis.Client
	ctx       context.Context
	popScript *redis.Script
}

var PublicReportQueue RedisReportQueue

func init() {
	client, err := support.GetRedisClient()
	if err != nil {
		log.Fatal("Could not connect to redis for report queue", "error", err)
	}
	PublicReportQueue = *NewRedisReportQueue(client)
}

func NewRedisReportQueue(client *redis.Client) *RedisReportQueue {
	return &RedisReportQueue{
		client:    client,
		ctx:       context.Background(),
		popScript: redis.NewScript(luaPopScript),
	}
}

// Enqueue buffers a submitted report until the drain worker persists it.
func (rrq *RedisReportQueue) Enqueue(report QueuedReport) error {
	if rrq == nil {
		return errors.New("redis report queue is nil")
	}

	if report.SubmittedAt.IsZero() {
		report.SubmittedAt = time.Now()
	}

	member := uuid.NewString()
	payloadKey := reportKeyPrefix + member

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := rrq.client.Pipeline()
	pipe.Set(rrq.ctx, payloadKey, reportJSON, 0)
	pipe.ZAdd(rrq.ctx, queueKey, redis.Z{
		Score:  float64(report.SubmittedAt.Unix()),
		Member: member,
	})

	if _, err := pipe.Exec(rrq.ctx); err != nil {
		return fmt.Errorf("enqueue pipeline exec failed: %w", err)
	}

	return nil
}

// PopDue removes and returns the oldest buffered report. It returns redis.Nil
// wrapped in the error when the queue is empty.
func (rrq *RedisReportQueue) PopDue(ctx context.Context) (QueuedReport, time.Time, error) {
	if ctx == nil {
		ctx = rrq.ctx
	}

	currentTime := time.Now().Unix()
	result, err := rrq.popScript.Run(ctx, rrq.client, []string{queueKey, reportKeyPrefix}, currentTime).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return QueuedReport{}, time.Time{}, err
		}
		return QueuedReport{}, time.Time{}, fmt.Errorf("lua script failed: %w", err)
	}

	resSlice := result.([]interface{})
	reportJSON := resSlice[1].(string)
	score := resSlice[2].(int64)

	var report QueuedReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return QueuedReport{}, time.Time{}, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return report, time.Unix(score, 0), nil
}

// WaitForNext blocks until a report becomes available or the context ends.
func (rrq *RedisReportQueue) WaitForNext(ctx context.Context) (QueuedReport, time.Time, error) {
	if ctx == nil {
		ctx = rrq.ctx
	}

	for {
		select {
		case <-ctx.Done():
			return QueuedReport{}, time.Time{}, ctx.Err()
		default:
		}

		report, submitted, err := rrq.PopDue(ctx)
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return QueuedReport{}, time.Time{}, ctx.Err()
			case <-time.After(emptyQueueSleep):
			}
			continue
		} else if err != nil {
			return QueuedReport{}, time.Time{}, err
		}

		return report, submitted, nil
	}
}

func (rrq *RedisReportQueue) Count() (int64, error) {
	return rrq.client.ZCard(rrq.ctx, queueKey).Result()
}

func (rrq *RedisReportQueue) Close() error {
	return support.CloseRedisClient()
}
