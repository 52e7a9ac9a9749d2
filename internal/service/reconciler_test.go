package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/quota"
)

type fakeLister struct {
	ids []uuid.UUID
	err error
}

func (f *fakeLister) ListActiveIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.ids, f.err
}

type fakeCounts struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int64
	errs   map[uuid.UUID]error
}

func (f *fakeCounts) VectorCount(_ context.Context, projectID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[projectID]; err != nil {
		return 0, err
	}
	return f.counts[projectID], nil
}

func vectorCount(t *testing.T, store *quota.MemoryStore, projectID uuid.UUID) int64 {
	t.Helper()
	u, err := store.Report(context.Background(), projectID)
	require.NoError(t, err)
	return u.VectorCount
}

func TestSweep_CorrectsDrift(t *testing.T) {
	store := quota.NewMemoryStore()
	leaked := uuid.New()
	clean := uuid.New()
	store.AddProject(leaked, nil)
	store.AddProject(clean, nil)

	guard := quota.NewGuard(store, zap.NewNop())
	ctx := context.Background()

	// The leaked project reserved 50 but the downstream write landed only 30
	// and its caller crashed before compensating.
	_, err := guard.Reserve(ctx, leaked, 50)
	require.NoError(t, err)
	_, err = guard.Reserve(ctx, clean, 10)
	require.NoError(t, err)

	source := &fakeCounts{counts: map[uuid.UUID]int64{leaked: 30, clean: 10}}
	lister := &fakeLister{ids: []uuid.UUID{leaked, clean}}

	r := NewReconciler(lister, store, source, time.Minute, zap.NewNop())
	require.NoError(t, r.Sweep(ctx))

	assert.Equal(t, int64(30), vectorCount(t, store, leaked))
	assert.Equal(t, int64(10), vectorCount(t, store, clean))
}

func TestSweep_OneBadProjectDoesNotStopTheRest(t *testing.T) {
	store := quota.NewMemoryStore()
	broken := uuid.New()
	healthy := uuid.New()
	store.AddProject(broken, nil)
	store.AddProject(healthy, nil)

	guard := quota.NewGuard(store, zap.NewNop())
	ctx := context.Background()
	_, err := guard.Reserve(ctx, healthy, 99)
	require.NoError(t, err)

	source := &fakeCounts{
		counts: map[uuid.UUID]int64{healthy: 42},
		errs:   map[uuid.UUID]error{broken: errors.New("shard offline")},
	}
	lister := &fakeLister{ids: []uuid.UUID{broken, healthy}}

	r := NewReconciler(lister, store, source, time.Minute, zap.NewNop())
	require.NoError(t, r.Sweep(ctx))

	assert.Equal(t, int64(42), vectorCount(t, store, healthy))
}

func TestSweep_SkipsProjectsDeletedMidSweep(t *testing.T) {
	store := quota.NewMemoryStore()
	existing := uuid.New()
	store.AddProject(existing, nil)

	// Listed but already gone from the usage table.
	gone := uuid.New()

	source := &fakeCounts{counts: map[uuid.UUID]int64{existing: 7, gone: 1}}
	lister := &fakeLister{ids: []uuid.UUID{gone, existing}}

	r := NewReconciler(lister, store, source, time.Minute, zap.NewNop())
	require.NoError(t, r.Sweep(context.Background()))

	assert.Equal(t, int64(7), vectorCount(t, store, existing))
}

func TestSweep_ListFailureIsFatal(t *testing.T) {
	store := quota.NewMemoryStore()
	lister := &fakeLister{err: errors.New("db gone")}
	source := &fakeCounts{counts: map[uuid.UUID]int64{}}

	r := NewReconciler(lister, store, source, time.Minute, zap.NewNop())
	require.Error(t, r.Sweep(context.Background()))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := quota.NewMemoryStore()
	lister := &fakeLister{}
	source := &fakeCounts{counts: map[uuid.UUID]int64{}}

	r := NewReconciler(lister, store, source, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}

func TestHTTPCountSource_ParsesCount(t *testing.T) {
	projectID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/projects/"+projectID.String()+"/vector-count", req.URL.Path)
		json.NewEncoder(w).Encode(map[string]int64{"count": 12345})
	}))
	defer srv.Close()

	source := NewHTTPCountSource(srv.URL)
	n, err := source.VectorCount(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)
}

func TestHTTPCountSource_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	source := NewHTTPCountSource(srv.URL)
	_, err := source.VectorCount(context.Background(), uuid.New())
	require.Error(t, err)
}
