package holds

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/metrics"
)

// Sweeper deletes dead hold rows on a cron schedule. Readers already ignore expired
// holds; the sweep only keeps the table small.
type Sweeper struct {
	Store Store
	Now   func() time.Time
	cron  *cron.Cron
}

func NewSweeper(store Store, spec string) (*Sweeper, error) {
	s := &Sweeper{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
		cron:  cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.RunOnce(ctx)
	if err != nil {
		logger.Error("hold sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.HoldsPurged.Add(float64(n))
		logger.Info("expired holds purged", "count", n)
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.Store.DeleteExpired(ctx, s.Now())
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context that is done once a running sweep returns.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }
