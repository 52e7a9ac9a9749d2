package quota

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/models"
)

// MemoryStore is an in-memory implementation of BucketStore, UsageStore and
// PlanSource. A single mutex stands in for the database's row locks, which
// satisfies the one-atomic-unit contract within one process only: it is for
// tests and local development, never for multi-replica deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[bucketKey]*models.RateLimitBucket
	usage   map[uuid.UUID]*models.ProjectUsage
	limits  map[uuid.UUID]*int64
	plans   map[uuid.UUID]*models.Plan
	nextID  uint

	// FailNext makes the next store call return the given error. Lets
	// tests exercise the fail-closed paths.
	FailNext error
}

var (
	_ BucketStore = (*MemoryStore)(nil)
	_ UsageStore  = (*MemoryStore)(nil)
	_ PlanSource  = (*MemoryStore)(nil)
)

type bucketKey struct {
	tenantID uuid.UUID
	kind     Kind
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[bucketKey]*models.RateLimitBucket),
		usage:   make(map[uuid.UUID]*models.ProjectUsage),
		limits:  make(map[uuid.UUID]*int64),
		plans:   make(map[uuid.UUID]*models.Plan),
	}
}

// SetPlan attaches a plan to a tenant.
func (s *MemoryStore) SetPlan(tenantID uuid.UUID, plan *models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[tenantID] = plan
}

// AddProject provisions a zeroed usage row with the given vector cap
// (nil = unlimited).
func (s *MemoryStore) AddProject(projectID uuid.UUID, vectorLimit *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[projectID] = &models.ProjectUsage{ProjectID: projectID}
	s.limits[projectID] = vectorLimit
}

func (s *MemoryStore) Mutate(_ context.Context, tenantID uuid.UUID, kind Kind, fn func(b *models.RateLimitBucket) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	b, ok := s.buckets[bucketKey{tenantID, kind}]
	if !ok {
		return ErrBucketMissing
	}
	return fn(b)
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, b *models.RateLimitBucket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}

	key := bucketKey{b.TenantID, Kind(b.Kind)}
	if _, ok := s.buckets[key]; ok {
		return false, nil
	}
	s.nextID++
	stored := *b
	stored.ID = s.nextID
	s.buckets[key] = &stored
	return true, nil
}

func (s *MemoryStore) UpdateLimits(_ context.Context, tenantID uuid.UUID, kind Kind, capacity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	b, ok := s.buckets[bucketKey{tenantID, kind}]
	if !ok {
		return ErrBucketMissing
	}
	b.Capacity = capacity
	if b.Tokens > capacity {
		b.Tokens = capacity
	}
	return nil
}

func (s *MemoryStore) MutateUsage(_ context.Context, projectID uuid.UUID, fn func(u *models.ProjectUsage, vectorLimit *int64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	u, ok := s.usage[projectID]
	if !ok {
		return ErrProjectMissing
	}
	return fn(u, s.limits[projectID])
}

func (s *MemoryStore) AddQueries(_ context.Context, projectID uuid.UUID, n int64) error {
	return s.add(projectID, n, 0)
}

func (s *MemoryStore) AddIngests(_ context.Context, projectID uuid.UUID, n int64) error {
	return s.add(projectID, 0, n)
}

func (s *MemoryStore) add(projectID uuid.UUID, queries, ingests int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	u, ok := s.usage[projectID]
	if !ok {
		return ErrProjectMissing
	}
	u.TotalQueries += queries
	u.TotalIngestRequests += ingests
	return nil
}

func (s *MemoryStore) Report(_ context.Context, projectID uuid.UUID) (*models.ProjectUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	u, ok := s.usage[projectID]
	if !ok {
		return nil, ErrProjectMissing
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) PlanForTenant(_ context.Context, tenantID uuid.UUID) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	plan, ok := s.plans[tenantID]
	if !ok {
		return nil, ErrTenantMissing
	}
	return plan, nil
}

// Bucket returns a copy of the stored bucket, for assertions.
func (s *MemoryStore) Bucket(tenantID uuid.UUID, kind Kind) (models.RateLimitBucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey{tenantID, kind}]
	if !ok {
		return models.RateLimitBucket{}, false
	}
	return *b, true
}

func (s *MemoryStore) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}
