package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestReserve_IncrementsWithinLimit(t *testing.T) {
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, int64Ptr(10_000))

	guard := NewGuard(store, zap.NewNop())

	r, err := guard.Reserve(context.Background(), projectID, 500)
	require.NoError(t, err)
	assert.True(t, r.Reserved)
	assert.Equal(t, int64(500), r.Current)
	assert.Equal(t, int64(10_000), r.Limit)
}

func TestReserve_RejectsWhenBatchWouldOvershoot(t *testing.T) {
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, int64Ptr(10_000))

	guard := NewGuard(store, zap.NewNop())
	ctx := context.Background()

	_, err := guard.Reserve(ctx, projectID, 9_999)
	require.NoError(t, err)

	// One slot left; a batch of three must be rejected whole.
	r, err := guard.Reserve(ctx, projectID, 3)
	require.NoError(t, err)
	assert.False(t, r.Reserved)
	assert.Equal(t, int64(9_999), r.Current)
	assert.Equal(t, int64(10_000), r.Limit)

	// A batch of one still fits.
	r, err = guard.Reserve(ctx, projectID, 1)
	require.NoError(t, err)
	assert.True(t, r.Reserved)
	assert.Equal(t, int64(10_000), r.Current)
}

func TestReserve_OneSlotLeftGrantsExactlyOne(t *testing.T) {
	// Project at 9999 of 10000: three racing single-vector reserves yield
	// exactly one grant and two rejections, each rejection reporting the cap.
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, int64Ptr(10_000))

	guard := NewGuard(store, zap.NewNop())
	ctx := context.Background()

	_, err := guard.Reserve(ctx, projectID, 9_999)
	require.NoError(t, err)

	var mu sync.Mutex
	var results []Reservation

	g := new(errgroup.Group)
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			r, err := guard.Reserve(ctx, projectID, 1)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	granted := 0
	for _, r := range results {
		if r.Reserved {
			granted++
		} else {
			assert.Equal(t, int64(10_000), r.Limit)
			assert.Equal(t, int64(10_000), r.Current)
		}
	}
	assert.Equal(t, 1, granted)
}

func TestReserve_ConcurrentReservesNeverOvershoot(t *testing.T) {
	// With 5 slots left and 20 concurrent single-vector reserves, exactly 5
	// succeed and the count lands exactly on the cap.
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, int64Ptr(100))

	guard := NewGuard(store, zap.NewNop())
	ctx := context.Background()

	_, err := guard.Reserve(ctx, projectID, 95)
	require.NoError(t, err)

	var mu sync.Mutex
	reserved := 0

	g := new(errgroup.Group)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			r, err := guard.Reserve(ctx, projectID, 1)
			if err != nil {
				return err
			}
			if r.Reserved {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 5, reserved)

	r, err := guard.Reserve(ctx, projectID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.Current)
}

func TestReserve_ReleaseFloorsAtZero(t *testing.T) {
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, int64Ptr(100))

	guard := NewGuard(store, zap.NewNop())
	ctx := context.Background()

	_, err := guard.Reserve(ctx, projectID, 3)
	require.NoError(t, err)

	// Releasing more than was counted clamps instead of going negative.
	r, err := guard.Reserve(ctx, projectID, -10)
	require.NoError(t, err)
	assert.True(t, r.Reserved)
	assert.Equal(t, int64(0), r.Current)

	r, err = guard.Reserve(ctx, projectID, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Current)
}

func TestReserve_NilLimitIsUnlimited(t *testing.T) {
	store := NewMemoryStore()
	projectID := uuid.New()
	store.AddProject(projectID, nil)

	guard := NewGuard(store, zap.NewNop())

	r, err := guard.Reserve(context.Background(), projectID, 50_000_000)
	require.NoError(t, err)
	assert.True(t, r.Reserved)
	assert.Equal(t, int64(50_000_000), r.Current)
	assert.Equal(t, int64(0), r.Limit)
}

func TestReserve_MissingProjectFailsClosed(t *testing.T) {
	store := NewMemoryStore()
	guard := NewGuard(store, zap.NewNop())

	_, err := guard.Reserve(context.Background(), uuid.New(), 1)
	require.ErrorIs(t, err, ErrProjectMissing)
}
