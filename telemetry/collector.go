package telemetry

import (
	"sync"
	"time"
)

// ProgressProvider exposes the wall-clock time of the last advanced optime.
// ok is false until the first optime has been observed.
type ProgressProvider interface {
	LastOptimeTime() (t time.Time, ok bool)
}

// MetricsCollector periodically samples progress and updates lag gauges
type MetricsCollector struct {
	provider ProgressProvider
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(provider ProgressProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

// lag returns the current optime lag, or false when no optime is known yet.
func (mc *MetricsCollector) lag() (time.Duration, bool) {
	if mc.provider == nil {
		return 0, false
	}

	t, ok := mc.provider.LastOptimeTime()
	if !ok {
		return 0, false
	}

	lag := mc.now().Sub(t)
	if lag < 0 {
		lag = 0
	}
	return lag, true
}

func (mc *MetricsCollector) collect() {
	if lag, ok := mc.lag(); ok {
		OptimeLagSeconds.Set(lag.Seconds())
	}
}
