package quota

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/models"
)

// Limiter admits or denies operations against durable token buckets.
// One admission check is one locked transaction on the bucket row, so
// concurrent checks for the same tenant and kind serialize through the
// store and a token can never be spent twice.
type Limiter struct {
	buckets BucketStore
	plans   PlanSource
	log     *zap.Logger
	now     func() time.Time
}

func NewLimiter(buckets BucketStore, plans PlanSource, log *zap.Logger) *Limiter {
	return &Limiter{
		buckets: buckets,
		plans:   plans,
		log:     log,
		now:     time.Now,
	}
}

// Admit refills and debits the bucket for (tenantID, kind) in one atomic
// step. A missing bucket is created from the tenant's current plan and the
// check retried once; a second miss fails closed.
func (l *Limiter) Admit(ctx context.Context, tenantID uuid.UUID, kind Kind) (Decision, error) {
	var d Decision
	check := func(b *models.RateLimitBucket) error {
		d = admitBucket(b, l.now())
		return nil
	}

	err := l.buckets.Mutate(ctx, tenantID, kind, check)
	if errors.Is(err, ErrBucketMissing) {
		if err := l.EnsureBuckets(ctx, tenantID); err != nil {
			return Decision{}, err
		}
		err = l.buckets.Mutate(ctx, tenantID, kind, check)
	}
	if err != nil {
		return Decision{}, err
	}

	if !d.Admitted {
		l.log.Debug("admission denied",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", string(kind)),
			zap.Duration("retry_after", d.RetryAfter),
		)
	}
	return d, nil
}

// EnsureBuckets creates the query and ingest buckets for a tenant from its
// current plan if either is missing. Idempotent and safe to race: inserts
// are guarded by the unique (tenant, kind) constraint.
func (l *Limiter) EnsureBuckets(ctx context.Context, tenantID uuid.UUID) error {
	plan, err := l.plans.PlanForTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	now := l.now()
	for _, spec := range []struct {
		kind     Kind
		capacity float64
	}{
		{KindQuery, float64(plan.QueryQPSLimit)},
		{KindIngest, float64(plan.IngestQPSLimit)},
	} {
		b := &models.RateLimitBucket{
			TenantID:     tenantID,
			Kind:         string(spec.kind),
			Capacity:     spec.capacity,
			Tokens:       spec.capacity,
			LastRefillAt: now,
		}
		created, err := l.buckets.CreateIfAbsent(ctx, b)
		if err != nil {
			return err
		}
		if created {
			l.log.Info("created rate limit bucket",
				zap.String("tenant_id", tenantID.String()),
				zap.String("kind", string(spec.kind)),
				zap.Float64("capacity", spec.capacity),
			)
		}
	}
	return nil
}

// ApplyPlanLimits rewrites both buckets' capacities to the plan's limits,
// clamping stored tokens to the new capacity. Tokens are never raised: a
// downgrade must not leave an instant burst and an upgrade must not grant
// an unearned backlog. Missing buckets are created eagerly first.
func (l *Limiter) ApplyPlanLimits(ctx context.Context, tenantID uuid.UUID, plan *models.Plan) error {
	now := l.now()
	for _, spec := range []struct {
		kind     Kind
		capacity float64
	}{
		{KindQuery, float64(plan.QueryQPSLimit)},
		{KindIngest, float64(plan.IngestQPSLimit)},
	} {
		b := &models.RateLimitBucket{
			TenantID:     tenantID,
			Kind:         string(spec.kind),
			Capacity:     spec.capacity,
			Tokens:       spec.capacity,
			LastRefillAt: now,
		}
		if _, err := l.buckets.CreateIfAbsent(ctx, b); err != nil {
			return err
		}
		if err := l.buckets.UpdateLimits(ctx, tenantID, spec.kind, spec.capacity); err != nil {
			return err
		}
	}
	l.log.Info("applied plan limits",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan", plan.Slug),
	)
	return nil
}

// admitBucket runs the token-bucket step against a locked row. The burst
// ceiling equals capacity: the plan sells "N per second" literally, so a
// bucket never accrues more than one second's worth of tokens.
func admitBucket(b *models.RateLimitBucket, now time.Time) Decision {
	if b.Capacity <= 0 {
		// Unlimited plan: pin the bucket and admit.
		b.Tokens = b.Capacity
		b.LastRefillAt = now
		return Decision{Admitted: true, Limit: b.Capacity}
	}

	refillBucket(b, now)

	if b.Tokens >= 1 {
		b.Tokens--
		return Decision{Admitted: true, Remaining: b.Tokens, Limit: b.Capacity}
	}

	// Denied: the refreshed tokens/timestamp are still written back so the
	// next call refills from the correct baseline.
	retry := time.Duration((1 - b.Tokens) / b.Capacity * float64(time.Second))
	return Decision{RetryAfter: retry, Remaining: b.Tokens, Limit: b.Capacity}
}

// refillBucket credits tokens for the elapsed wall-clock time, capped at
// capacity. Negative elapsed from clock skew is clamped to zero.
func refillBucket(b *models.RateLimitBucket, now time.Time) {
	elapsed := now.Sub(b.LastRefillAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.Tokens = math.Min(b.Capacity, b.Tokens+elapsed*b.Capacity)
	b.LastRefillAt = now
}
