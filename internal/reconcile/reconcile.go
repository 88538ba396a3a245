// Package reconcile brings the local leaderboard in line with the authoritative ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"castboard/internal/domain"
	"castboard/internal/leaderboard"
	"castboard/internal/ledger"
	"castboard/internal/observability"
	"castboard/internal/storage"
)

// Diff lists the addresses changed by one reconciliation pass.
type Diff struct {
	Inserted []string `json:"inserted"`
	Updated  []string `json:"updated"`
	Removed  []string `json:"removed"`
}

// Empty reports whether the pass changed nothing.
func (d Diff) Empty() bool {
	return d.Total() == 0
}

// Total returns the number of changed participants.
func (d Diff) Total() int {
	return len(d.Inserted) + len(d.Updated) + len(d.Removed)
}

// Status describes reconciliation progress for health reporting.
type Status struct {
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Skipped     int64     `json:"skipped"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	LastDiff    Diff      `json:"last_diff"`
}

// Options configures a Reconciler.
type Options struct {
	Ledger    ledger.Reader
	Store     *leaderboard.Store
	Snapshots storage.SnapshotStore // optional; receives a ranked snapshot after each change
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Reconciler applies the ledger's active set to the leaderboard store.
type Reconciler struct {
	ledger    ledger.Reader
	store     *leaderboard.Store
	snapshots storage.SnapshotStore
	clock     func() time.Time
	logger    zerolog.Logger

	// runMu serializes passes.
	runMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Reconciler{
		ledger:    opts.Ledger,
		store:     opts.Store,
		snapshots: opts.Snapshots,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

// Reconcile runs one pass, waiting for any pass already in progress.
//
// Ledger-only participants are inserted from ledger values without enrichment.
// Local-only participants are removed. For participants in both, the ledger's
// name and counts win; cached holdings are kept only while the count still matches.
// The whole diff is applied atomically. On a ledger error the store is untouched
// and the error wraps ledger.ErrLedgerUnavailable.
func (r *Reconciler) Reconcile(ctx context.Context) (Diff, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.reconcile(ctx)
}

func (r *Reconciler) reconcile(ctx context.Context) (Diff, error) {
	start := time.Now()
	diff, err := r.apply(ctx)
	elapsed := time.Since(start)
	now := r.clock()

	r.statusMu.Lock()
	r.status.Runs++
	r.status.LastRun = now
	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
	} else {
		r.status.LastSuccess = now
		r.status.LastError = ""
		r.status.LastDiff = diff
	}
	r.statusMu.Unlock()

	if err != nil {
		observability.RecordReconcile("failure", elapsed.Seconds(), 0, 0, 0)
		r.logger.Error().Err(err).Dur("took", elapsed).Msg("reconciliation failed")
		return Diff{}, err
	}

	observability.RecordReconcile("success", elapsed.Seconds(), len(diff.Inserted), len(diff.Updated), len(diff.Removed))
	observability.MarkReconcileSuccess(now.Unix())

	level := zerolog.DebugLevel
	if !diff.Empty() {
		level = zerolog.InfoLevel
	}
	r.logger.WithLevel(level).
		Int("inserted", len(diff.Inserted)).
		Int("updated", len(diff.Updated)).
		Int("removed", len(diff.Removed)).
		Dur("took", elapsed).
		Msg("reconciliation complete")

	if !diff.Empty() {
		r.snapshot(ctx, now)
	}
	return diff, nil
}

func (r *Reconciler) apply(ctx context.Context) (Diff, error) {
	entries, err := r.ledger.ActiveParticipants(ctx)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerUnavailable) {
			return Diff{}, err
		}
		return Diff{}, fmt.Errorf("%w: %v", ledger.ErrLedgerUnavailable, err)
	}

	authoritative := make([]domain.LedgerEntry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		addr, err := domain.NormalizeAddress(e.Address)
		if err != nil {
			r.logger.Warn().Str("address", e.Address).Msg("skipping ledger entry with invalid address")
			continue
		}
		if e.NFTCount < 0 || e.ActivityScore < 0 {
			r.logger.Warn().Str("address", addr).Msg("skipping ledger entry with negative counts")
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		e.Address = addr
		authoritative = append(authoritative, e)
	}

	now := r.clock()
	var diff Diff

	err = r.store.Update(func(tx *leaderboard.Tx) error {
		for _, e := range authoritative {
			local, ok := tx.Get(e.Address)
			if !ok {
				if err := tx.Insert(e.ToParticipant(now)); err != nil {
					return err
				}
				diff.Inserted = append(diff.Inserted, e.Address)
				continue
			}
			if e.Matches(local) {
				continue
			}

			if local.HoldingsTracked() && local.NFTCount != e.NFTCount {
				local.NFTHoldings = nil
			}
			local.DisplayName = e.DisplayName()
			local.NFTCount = e.NFTCount
			local.ActivityScore = e.ActivityScore
			local.LastUpdated = now
			if err := tx.Upsert(local); err != nil {
				return err
			}
			diff.Updated = append(diff.Updated, e.Address)
		}

		for _, addr := range tx.Addresses() {
			if _, ok := seen[addr]; ok {
				continue
			}
			if err := tx.Remove(addr); err != nil {
				return err
			}
			diff.Removed = append(diff.Removed, addr)
		}
		return nil
	})
	if err != nil {
		return Diff{}, fmt.Errorf("apply reconciliation: %w", err)
	}
	return diff, nil
}

// snapshot records the post-reconcile ranking. Failures are logged, not returned.
func (r *Reconciler) snapshot(ctx context.Context, now time.Time) {
	if r.snapshots == nil {
		return
	}

	ranked, err := r.store.SortedView(domain.SortByNFTCount, false)
	if err != nil {
		r.logger.Warn().Err(err).Msg("snapshot view failed")
		return
	}

	snap := domain.NewSnapshot(uuid.NewString(), now, domain.SortByNFTCount, ranked)
	if err := r.snapshots.Save(ctx, snap); err != nil {
		r.logger.Warn().Err(err).Str("snapshot", snap.ID).Msg("snapshot save failed")
		return
	}
	r.logger.Debug().Str("snapshot", snap.ID).Int("rows", len(snap.Rows)).Msg("leaderboard snapshot saved")
}

// Status returns a copy of the current status.
func (r *Reconciler) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// Run reconciles once immediately, then on every interval tick and every
// trigger receive, until ctx is canceled. A tick or trigger arriving while a
// pass is running is skipped. Returns ctx.Err().
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.tryReconcile(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tryReconcile(ctx, "interval")
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			r.tryReconcile(ctx, "ledger_event")
		}
	}
}

func (r *Reconciler) tryReconcile(ctx context.Context, reason string) {
	if !r.runMu.TryLock() {
		r.statusMu.Lock()
		r.status.Skipped++
		r.statusMu.Unlock()
		r.logger.Debug().Str("reason", reason).Msg("reconciliation already running, skipping")
		return
	}
	defer r.runMu.Unlock()

	r.logger.Debug().Str("reason", reason).Msg("reconciliation triggered")
	_, _ = r.reconcile(ctx)
}

// Coalesce forwards ledger events as reconcile triggers, dropping events
// while a trigger is already pending. The returned channel closes when events closes.
func Coalesce(events <-chan ledger.Event) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range events {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out
}
