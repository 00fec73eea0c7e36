package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MonsoudZ/Cardly/internal/metrics"
)

// Sweeper periodically expires open offers whose deadline has passed.
// Safe to re-run: records that already moved on fail the expire guard and
// are skipped.
type Sweeper struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a new offer expiration sweeper.
func NewSweeper(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in expiration sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass: each overdue open offer is expired independently, so
// one bad record never blocks the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	metrics.SweepRunsTotal.Inc()

	overdue, err := s.store.ListExpired(ctx, time.Now(), 100)
	if err != nil {
		s.logger.Warn("failed to list overdue offers", "error", err)
		return
	}

	for _, tx := range overdue {
		if _, err := s.service.Expire(ctx, tx.ID); err != nil {
			// Guard failures just mean the offer moved on since the list query
			if errors.Is(err, ErrInvalidStatus) {
				continue
			}
			s.logger.Warn("failed to expire offer",
				"transactionId", tx.ID,
				"error", err,
			)
			continue
		}
		s.logger.Info("expired offer",
			"transactionId", tx.ID,
			"buyer", tx.BuyerID,
			"seller", tx.SellerID,
		)
	}
}
