package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/models"
)

// Facade is the single entry point the rest of the service calls. It
// composes the rate limiter and capacity guard and converts infrastructure
// faults into ErrStoreUnavailable so the transport layer can map outcomes
// to status codes deterministically.
type Facade struct {
	limiter *Limiter
	guard   *Guard
	usage   UsageStore
	log     *zap.Logger
}

func NewFacade(limiter *Limiter, guard *Guard, usage UsageStore, log *zap.Logger) *Facade {
	return &Facade{
		limiter: limiter,
		guard:   guard,
		usage:   usage,
		log:     log,
	}
}

// Admit runs the rate-limit check for a tenant and kind.
func (f *Facade) Admit(ctx context.Context, tenantID uuid.UUID, kind Kind) (Decision, error) {
	d, err := f.limiter.Admit(ctx, tenantID, kind)
	if err != nil {
		return Decision{}, f.classify(err)
	}
	return d, nil
}

// AdmitProject runs the rate-limit check and, when admitted, bumps the
// project's cumulative counter for the kind. The bump reflects "requests
// accepted" regardless of downstream success; a failed bump is logged but
// never turns an admission into a failure, since the counters are
// reporting-only.
func (f *Facade) AdmitProject(ctx context.Context, tenantID, projectID uuid.UUID, kind Kind) (Decision, error) {
	d, err := f.Admit(ctx, tenantID, kind)
	if err != nil || !d.Admitted {
		return d, err
	}

	var bumpErr error
	switch kind {
	case KindQuery:
		bumpErr = f.usage.AddQueries(ctx, projectID, 1)
	case KindIngest:
		bumpErr = f.usage.AddIngests(ctx, projectID, 1)
	}
	if bumpErr != nil {
		f.log.Warn("usage counter bump failed",
			zap.String("project_id", projectID.String()),
			zap.String("kind", string(kind)),
			zap.Error(bumpErr),
		)
	}
	return d, nil
}

// ReserveCapacity reserves room for delta vectors in the project. Callers
// that reserve ahead of a downstream write are obliged to compensate with
// ReleaseCapacity if that write fails; the guard has no knowledge of
// downstream outcomes.
func (f *Facade) ReserveCapacity(ctx context.Context, projectID uuid.UUID, delta int64) (Reservation, error) {
	r, err := f.guard.Reserve(ctx, projectID, delta)
	if err != nil {
		return Reservation{}, f.classify(err)
	}
	return r, nil
}

// ReleaseCapacity is the compensating call for a reservation whose
// downstream operation failed, and the path deletes take (deletes are not
// rate limited; the plan model has no delete QPS).
func (f *Facade) ReleaseCapacity(ctx context.Context, projectID uuid.UUID, vectors int64) (Reservation, error) {
	if vectors < 0 {
		return Reservation{}, fmt.Errorf("quota: negative release of %d vectors", vectors)
	}
	return f.ReserveCapacity(ctx, projectID, -vectors)
}

// EnsureBuckets provisions both buckets for a tenant, idempotently. Called
// lazily by Admit and eagerly by plan-change handling.
func (f *Facade) EnsureBuckets(ctx context.Context, tenantID uuid.UUID) error {
	if err := f.limiter.EnsureBuckets(ctx, tenantID); err != nil {
		return f.classify(err)
	}
	return nil
}

// ApplyPlanLimits rewrites the tenant's bucket capacities from the plan,
// clamping tokens. Invoked by the billing workflow whenever a plan is
// activated or changed.
func (f *Facade) ApplyPlanLimits(ctx context.Context, tenantID uuid.UUID, plan *models.Plan) error {
	if err := f.limiter.ApplyPlanLimits(ctx, tenantID, plan); err != nil {
		return f.classify(err)
	}
	return nil
}

// UsageReport returns the project's counters for dashboards.
func (f *Facade) UsageReport(ctx context.Context, projectID uuid.UUID) (*models.ProjectUsage, error) {
	u, err := f.usage.Report(ctx, projectID)
	if err != nil {
		return nil, f.classify(err)
	}
	return u, nil
}

// classify keeps taxonomy errors as-is and wraps everything else as a
// store fault. Context cancellation while waiting on a row lock lands here
// too: the transaction rolled back, nothing was debited.
func (f *Facade) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBucketMissing),
		errors.Is(err, ErrProjectMissing),
		errors.Is(err, ErrTenantMissing),
		errors.Is(err, ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
