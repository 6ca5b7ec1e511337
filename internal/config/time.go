package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueDrainInterval      = 5 * time.Minute
	defaultIPGeoRefreshInterval    = 24 * time.Hour
	defaultDenylistRefreshInterval = 6 * time.Hour
	defaultGeoIPUpdateInterval     = 24 * time.Hour
)

var (
	queueDrainInterval       atomic.Value
	ipGeoRefreshInterval     atomic.Value
	denylistRefreshInterval  atomic.Value
	geoIPUpdateInterval      atomic.Value
	queueDrainListeners      []chan time.Duration
	ipGeoRefreshListeners    []chan time.Duration
	denylistRefreshListeners []chan time.Duration
	geoIPUpdateListeners     []chan time.Duration
	listenersMu              sync.Mutex
)

func init() {
	queueDrainInterval.Store(defaultQueueDrainInterval)
	ipGeoRefreshInterval.Store(defaultIPGeoRefreshInterval)
	denylistRefreshInterval.Store(defaultDenylistRefreshInterval)
	geoIPUpdateInterval.Store(defaultGeoIPUpdateInterval)
}

func SetBetweenTime() {
	cfg := GetConfig()
	setQueueDrainInterval(calculateQueueDrainInterval(cfg))
	setIPGeoRefreshInterval(calculateIPGeoRefreshInterval(cfg))
	setDenylistRefreshInterval(calculateDenylistRefreshInterval(cfg))
	setGeoIPUpdateInterval(calculateGeoIPUpdateInterval(cfg))
}

func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfPeriod(timer)

	// Enforce minimum interval (e.g., 1 second)
	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func timerIsZero(timer Timer) bool {
	return timer.Days == 0 && timer.Hours == 0 && timer.Minutes == 0 && timer.Seconds == 0
}

func GetQueueDrainInterval() time.Duration {
	return queueDrainInterval.Load().(time.Duration)
}

// QueueDrainIntervalUpdates returns a channel that yields the current drain
// interval immediately and again after every configuration change.
func QueueDrainIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	queueDrainListeners = append(queueDrainListeners, ch)
	listenersMu.Unlock()

	ch <- GetQueueDrainInterval()
	return ch
}

func setQueueDrainInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultQueueDrainInterval
	}

	current := GetQueueDrainInterval()
	if current == interval {
		return
	}

	queueDrainInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range queueDrainListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateQueueDrainInterval(cfg Config) time.Duration {
	timer := cfg.Moderation.QueueTimer
	if timerIsZero(timer) {
		return defaultQueueDrainInterval
	}
	return CalculateBetweenTime(timer)
}

func GetIPGeoRefreshInterval() time.Duration {
	return ipGeoRefreshInterval.Load().(time.Duration)
}

func IPGeoRefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	ipGeoRefreshListeners = append(ipGeoRefreshListeners, ch)
	listenersMu.Unlock()

	ch <- GetIPGeoRefreshInterval()
	return ch
}

func setIPGeoRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultIPGeoRefreshInterval
	}
	current := GetIPGeoRefreshInterval()
	if current == interval {
		return
	}
	ipGeoRefreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range ipGeoRefreshListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateIPGeoRefreshInterval(cfg Config) time.Duration {
	timer := cfg.Runtime.IPGeoRefreshTimer
	if timerIsZero(timer) {
		return defaultIPGeoRefreshInterval
	}
	return CalculateBetweenTime(timer)
}

func GetDenylistRefreshInterval() time.Duration {
	return denylistRefreshInterval.Load().(time.Duration)
}

func DenylistRefreshIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	denylistRefreshListeners = append(denylistRefreshListeners, ch)
	listenersMu.Unlock()

	ch <- GetDenylistRefreshInterval()
	return ch
}

func setDenylistRefreshInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultDenylistRefreshInterval
	}
	current := GetDenylistRefreshInterval()
	if current == interval {
		return
	}
	denylistRefreshInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range denylistRefreshListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateDenylistRefreshInterval(cfg Config) time.Duration {
	timer := cfg.ReporterDenylist.RefreshTimer
	if timerIsZero(timer) {
		return defaultDenylistRefreshInterval
	}
	return CalculateBetweenTime(timer)
}

func GetGeoIPUpdateInterval() time.Duration {
	return geoIPUpdateInterval.Load().(time.Duration)
}

func GeoIPUpdateIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	geoIPUpdateListeners = append(geoIPUpdateListeners, ch)
	listenersMu.Unlock()

	ch <- GetGeoIPUpdateInterval()
	return ch
}

func setGeoIPUpdateInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultGeoIPUpdateInterval
	}
	current := GetGeoIPUpdateInterval()
	if current == interval {
		return
	}
	geoIPUpdateInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range geoIPUpdateListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func calculateGeoIPUpdateInterval(cfg Config) time.Duration {
	timer := cfg.GeoIP.UpdateTimer
	if timerIsZero(timer) {
		return defaultGeoIPUpdateInterval
	}
	return CalculateBetweenTime(timer)
}
