// Package tasks holds the background jobs that run alongside the store.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"banward/async"
	"banward/model"
)

// SweeperStore is the slice of the store engine the sweeper needs.
type SweeperStore interface {
	AllActivePunishments() *async.Result[[]model.PunishmentRecord]
	DeactivatePunishment(id int64) *async.Result[struct{}]
}

// Sweeper periodically walks every active punishment and deactivates the
// expired ones. It is a safety net behind lazy expiry on reads: without
// it, expired rows for players who never return would stay active
// forever. Sweep failures are logged and retried on the next tick.
type Sweeper struct {
	store    SweeperStore
	interval time.Duration
	log      *zap.SugaredLogger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper builds a sweeper over store ticking at interval.
func NewSweeper(store SweeperStore, interval time.Duration, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start runs an immediate sweep and then one per interval until Stop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Infow("punishment sweeper started", "interval", s.interval)

		s.Sweep()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the ticker loop and waits for it to exit. A sweep already
// submitted to the executor finishes on its own.
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
	s.log.Info("punishment sweeper stopped")
}

// Sweep scans all active punishments once and deactivates every expired
// record it finds. Individual deactivations are fire-and-forget; a
// record that fails to flip stays active and is picked up next tick.
func (s *Sweeper) Sweep() {
	records, err := s.store.AllActivePunishments().Get(context.Background())
	if err != nil {
		s.log.Errorw("sweep scan failed", "error", err)
		return
	}

	expired := 0
	for _, rec := range records {
		if !rec.IsExpired() {
			continue
		}
		expired++
		id := rec.ID
		res := s.store.DeactivatePunishment(id)
		go func() {
			if _, err := res.Get(context.Background()); err != nil {
				s.log.Warnw("failed to deactivate expired punishment", "id", id, "error", err)
			}
		}()
	}
	if expired > 0 {
		s.log.Infow("swept expired punishments", "scanned", len(records), "expired", expired)
	} else {
		s.log.Debugw("sweep found nothing expired", "scanned", len(records))
	}
}
