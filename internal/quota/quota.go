// Package quota implements admission control for tenant-scoped operations:
// durable token buckets for per-plan QPS ceilings and a per-project vector
// capacity guard. All shared state lives in the backing store; correctness
// across replicas relies on the store executing each mutation as one atomic
// locked read-modify-write.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/models"
)

// Kind is the operation class a token bucket governs.
type Kind string

const (
	KindQuery  Kind = "query"
	KindIngest Kind = "ingest"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindQuery:
		return KindQuery, nil
	case KindIngest:
		return KindIngest, nil
	}
	return "", fmt.Errorf("quota: unknown bucket kind %q", s)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	// RetryAfter is how long the caller should wait before retrying.
	// Only set when the request was denied.
	RetryAfter time.Duration
	// Remaining is the token count left in the bucket after this check.
	Remaining float64
	// Limit is the bucket capacity in tokens per second. Zero or negative
	// means the plan is unlimited for this kind.
	Limit float64
}

// Reservation is the outcome of a capacity check.
type Reservation struct {
	Reserved bool
	// Limit is the plan's per-project vector cap. Only meaningful when the
	// reservation was rejected; a rejection always carries a non-nil cap.
	Limit int64
	// Current is the project's vector count after the call.
	Current int64
}

// BucketStore persists token-bucket rows. Implementations must run Mutate
// as a single transaction holding an exclusive lock on the row: load, apply
// fn, persist. Two concurrent Mutate calls for the same (tenant, kind) must
// serialize; calls for different pairs must not block each other.
type BucketStore interface {
	// Mutate returns ErrBucketMissing when no row exists for the pair.
	Mutate(ctx context.Context, tenantID uuid.UUID, kind Kind, fn func(b *models.RateLimitBucket) error) error

	// CreateIfAbsent inserts the bucket unless a row for its (tenant, kind)
	// already exists, relying on the unique constraint rather than a
	// pre-check. Reports whether a row was created.
	CreateIfAbsent(ctx context.Context, b *models.RateLimitBucket) (bool, error)

	// UpdateLimits rewrites the bucket's capacity and clamps its tokens to
	// the new capacity in one atomic statement.
	UpdateLimits(ctx context.Context, tenantID uuid.UUID, kind Kind, capacity float64) error
}

// UsageStore persists per-project counters. MutateUsage carries the same
// transactional obligation as BucketStore.Mutate and additionally resolves
// the owning plan's per-project vector cap inside the same transaction
// (nil cap means unlimited).
type UsageStore interface {
	// MutateUsage returns ErrProjectMissing when no usage row exists.
	MutateUsage(ctx context.Context, projectID uuid.UUID, fn func(u *models.ProjectUsage, vectorLimit *int64) error) error

	// AddQueries and AddIngests bump the cumulative reporting counters.
	// They are plain atomic increments, not admission state.
	AddQueries(ctx context.Context, projectID uuid.UUID, n int64) error
	AddIngests(ctx context.Context, projectID uuid.UUID, n int64) error

	Report(ctx context.Context, projectID uuid.UUID) (*models.ProjectUsage, error)
}

// PlanSource resolves the plan currently attached to a tenant. Plans are
// immutable values; fetching fresh per call is what lets limit changes
// propagate without cache invalidation.
type PlanSource interface {
	// PlanForTenant returns ErrTenantMissing when the tenant does not exist.
	PlanForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Plan, error)
}
