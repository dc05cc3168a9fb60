// Package scheduler runs the Daily Check-in Scheduler: a background loop
// that periodically asks the Interop Bridge to send skills check-ins to
// every configured peer.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/bridge"
)

const defaultWakePeriod = time.Hour

// CheckinScheduler wakes every wakePeriod and asks its Bridge to send
// skills check-ins, gated internally at intervalSeconds per peer.
type CheckinScheduler struct {
	bridge          *bridge.Bridge
	manifest        []bridge.SkillManifestEntry
	wakePeriod      time.Duration
	intervalSeconds int64
	logger          *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New builds a scheduler. wakePeriod defaults to one hour and
// intervalSeconds to 86400 when zero.
func New(b *bridge.Bridge, manifest []bridge.SkillManifestEntry, wakePeriod time.Duration, intervalSeconds int64, logger *slog.Logger) *CheckinScheduler {
	if wakePeriod <= 0 {
		wakePeriod = defaultWakePeriod
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 86400
	}
	return &CheckinScheduler{
		bridge:          b,
		manifest:        manifest,
		wakePeriod:      wakePeriod,
		intervalSeconds: intervalSeconds,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the wake loop in a goroutine. It returns immediately.
func (c *CheckinScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.loop(ctx)
}

// Stop halts the loop. Safe to call more than once.
func (c *CheckinScheduler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
}

func (c *CheckinScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(c.wakePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.wake(ctx)
		}
	}
}

func (c *CheckinScheduler) wake(ctx context.Context) {
	results, err := c.bridge.SendDailySkillsCheckins(ctx, c.intervalSeconds, c.manifest)
	if err != nil {
		c.logger.Error("scheduler: daily checkin wake failed", slog.Any("error", err))
		return
	}
	for _, r := range results {
		if !r.OK {
			c.logger.Warn("scheduler: checkin send failed", slog.String("target", r.Target), slog.String("error", r.Error))
		}
	}
}
