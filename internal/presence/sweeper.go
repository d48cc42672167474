// Package presence runs the background sweep that drops registry entries
// whose connection has already gone away.
package presence

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/metrics"
	"go.uber.org/zap"
)

// Registry is what the sweeper needs from the connection registry.
type Registry interface {
	Snapshot() []*hub.Client
	Unregister(c *hub.Client) bool
}

// Sweeper is a backstop. The read pump unregisters on disconnect; the
// sweeper catches connections that died without reaching that path.
type Sweeper struct {
	registry  Registry
	interval  time.Duration
	scheduler *gocron.Scheduler
	logger    *zap.Logger
}

func NewSweeper(registry Registry, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		registry:  registry,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger.Named("sweeper"),
	}
}

// Start schedules Sweep every interval. The first run is one interval
// after Start.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() { s.Sweep() })
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("presence sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep removes every registered client that reports itself closed and
// returns how many it removed.
func (s *Sweeper) Sweep() int {
	evicted := 0
	for _, c := range s.registry.Snapshot() {
		if c.Connected() {
			continue
		}
		if s.registry.Unregister(c) {
			evicted++
			s.logger.Debug("evicted stale connection",
				zap.String("identity", c.Identity().String()),
				zap.String("conn", c.ID()),
			)
		}
	}
	if evicted > 0 {
		metrics.SweeperEvictions.Add(float64(evicted))
		s.logger.Info("sweep finished", zap.Int("evicted", evicted))
	}
	return evicted
}
