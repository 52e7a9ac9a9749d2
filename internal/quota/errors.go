package quota

import "errors"

// The admission boundary reports outcomes as Decision/Reservation values.
// Errors are reserved for states where no decision could be made; callers
// must fail the request on any of them, never admit ("fail closed").
var (
	// ErrBucketMissing means the bucket row was absent even after the
	// self-healing bootstrap ran. Seen mid-request when a tenant is being
	// deleted concurrently.
	ErrBucketMissing = errors.New("quota: rate limit bucket missing")

	// ErrProjectMissing means the project has no usage row (deleted or
	// never provisioned).
	ErrProjectMissing = errors.New("quota: project usage missing")

	// ErrTenantMissing means the tenant or its plan could not be resolved.
	ErrTenantMissing = errors.New("quota: tenant missing")

	// ErrStoreUnavailable wraps infrastructure faults below the transaction
	// boundary (lock timeout, connection loss). Retryable, distinct from a
	// denial, and never to be interpreted as admitted.
	ErrStoreUnavailable = errors.New("quota: store unavailable")
)
