package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultHorizon  = 24 * time.Hour
	DefaultSchedule = "0 0 * * *"
)

type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes transaction records older than the retention horizon.
type Sweeper struct {
	store   Purger
	horizon time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewSweeper(store Purger, horizon time.Duration, log *zap.Logger) *Sweeper {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, horizon: horizon, log: log, now: time.Now}
}

// Run performs one sweep. Failures are logged and returned; callers on a
// schedule ignore them and wait for the next run.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.horizon).UTC()
	n, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	s.log.Info("retention sweep finished", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// Schedule registers the sweep on a new cron scheduler using local time and
// starts it. Stop the returned scheduler on shutdown.
func (s *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithLocation(time.Local))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
