// Package reconciler sweeps accounts that never received a profile. Such
// accounts are left behind when profile creation fails after signup, most
// often because a concurrent signup won the username.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/auth"
	"github.com/studentfund/studentfund/internal/metrics"
)

const batchSize = 100

// OrphanRepository is the part of auth.AccountRepository the reconciler uses.
type OrphanRepository interface {
	ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]auth.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Config controls the sweep.
type Config struct {
	Interval time.Duration
	// Grace is the minimum account age before a missing profile counts.
	Grace time.Duration
	// Purge deletes orphans instead of only reporting them.
	Purge bool
}

// Reconciler polls for orphaned accounts.
type Reconciler struct {
	repo    OrphanRepository
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a new Reconciler. m may be nil.
func New(repo OrphanRepository, cfg Config, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		repo:    repo,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// Result summarizes one sweep.
type Result struct {
	Found  int
	Purged int
}

// Start begins the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	slog.Info("reconciler started",
		"interval", r.cfg.Interval.String(),
		"grace", r.cfg.Grace.String(),
		"purge", r.cfg.Purge,
	)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and reports what it found.
func (r *Reconciler) Sweep(ctx context.Context) Result {
	var res Result

	cutoff := r.now().Add(-r.cfg.Grace)
	orphans, err := r.repo.ListOrphans(ctx, cutoff, batchSize)
	if err != nil {
		slog.Error("reconciler: failed to list orphaned accounts", "error", err)
		return res
	}

	for _, a := range orphans {
		if ctx.Err() != nil {
			return res
		}
		res.Found++
		if r.metrics != nil {
			r.metrics.OrphansFound.Inc()
		}

		if !r.cfg.Purge {
			slog.Warn("reconciler: account has no profile",
				"account", a.ID,
				"email", a.Email,
				"age", r.now().Sub(a.CreatedAt).Round(time.Second).String(),
			)
			continue
		}

		if r.purge(ctx, &a) {
			res.Purged++
		}
	}

	return res
}

func (r *Reconciler) purge(ctx context.Context, a *auth.Account) bool {
	err := r.repo.Delete(ctx, a.ID)
	if err != nil && !errors.Is(err, auth.ErrAccountNotFound) {
		slog.Error("reconciler: failed to delete orphaned account",
			"account", a.ID,
			"error", err,
		)
		return false
	}

	if r.metrics != nil {
		r.metrics.OrphansPurged.Inc()
	}
	slog.Info("reconciler: orphaned account deleted", "account", a.ID, "email", a.Email)
	return true
}
