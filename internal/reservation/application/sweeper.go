package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/notifier"
)

// SweepInterval is how often the background sweep runs.
const SweepInterval = time.Minute

// Sweeper reclaims holds whose TTL has lapsed. It deletes reservation records
// only; an unconfirmed hold never mutated item, lot or warehouse quantities,
// so there is nothing else to undo.
type Sweeper struct {
	log      *slog.Logger
	store    storage.Store
	bus      *notifier.Notifier
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(log *slog.Logger, store storage.Store, bus *notifier.Notifier) *Sweeper {
	return &Sweeper{
		log:      log,
		store:    store,
		bus:      bus,
		interval: SweepInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			if _, err := s.SweepNow(ctx); err != nil {
				s.log.Error("sweep failed", "err", err)
			}
		}
	}
}

// SweepNow deletes every expired hold and reports how many were reclaimed.
// Each deletion frees quantity on its item, announced as a release event.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	now := s.now()
	var events []notifier.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		expired, err := tx.QueryReservations(ctx, storage.ReservationFilter{ExpiredAt: &now})
		if err != nil {
			return err
		}
		for _, r := range expired {
			if err := tx.DeleteReservation(ctx, r.ID); err != nil {
				return err
			}
			ev := notifier.NewEvent(r.ItemID, string(r.ItemType), notifier.ActionReleased)
			ev.Quantity = r.Quantity
			if err := tx.AppendOutbox(ctx, ev.OutboxEvent("reservation")); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, ev := range events {
		s.bus.Emit(ev)
	}
	if len(events) > 0 {
		s.log.Info("expired reservations swept", "count", len(events))
	}
	return len(events), nil
}

// ForceClearAll deletes every reservation, confirmed or not. Operator recovery
// only; the call is audited with the requesting actor.
func (s *Sweeper) ForceClearAll(ctx context.Context, actor string) (int, error) {
	var events []notifier.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.QueryReservations(ctx, storage.ReservationFilter{})
		if err != nil {
			return err
		}
		for _, r := range all {
			if err := tx.DeleteReservation(ctx, r.ID); err != nil {
				return err
			}
			ev := notifier.NewEvent(r.ItemID, string(r.ItemType), notifier.ActionReleased)
			ev.Quantity = r.Quantity
			if err := tx.AppendOutbox(ctx, ev.OutboxEvent("reservation")); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, ev := range events {
		s.bus.Emit(ev)
	}
	s.log.Warn("force-clear of all reservations", "actor", actor, "count", len(events))
	return len(events), nil
}
