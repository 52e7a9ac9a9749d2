package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/quota"
)

// CountSource answers how many live vectors a project actually holds,
// according to the authoritative document store.
type CountSource interface {
	VectorCount(ctx context.Context, projectID uuid.UUID) (int64, error)
}

// ProjectLister enumerates the projects to reconcile.
type ProjectLister interface {
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Reconciler periodically re-derives each project's vector count from the
// authoritative store. Capacity reservations are compensated by callers on
// downstream failure, but a crashed caller can leak a reservation; the
// sweep makes such drift self-correcting instead of permanent.
type Reconciler struct {
	projects ProjectLister
	usage    quota.UsageStore
	source   CountSource
	interval time.Duration
	log      *zap.Logger
}

func NewReconciler(projects ProjectLister, usage quota.UsageStore, source CountSource, interval time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		projects: projects,
		usage:    usage,
		source:   source,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep reconciles every active project once.
func (r *Reconciler) Sweep(ctx context.Context) error {
	ids, err := r.projects.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			if err := r.reconcileProject(ctx, id); err != nil {
				// One bad project should not stop the sweep.
				r.log.Warn("project reconcile failed",
					zap.String("project_id", id.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) reconcileProject(ctx context.Context, projectID uuid.UUID) error {
	actual, err := r.source.VectorCount(ctx, projectID)
	if err != nil {
		return err
	}

	err = r.usage.MutateUsage(ctx, projectID, func(u *models.ProjectUsage, _ *int64) error {
		if u.VectorCount != actual {
			r.log.Info("corrected vector count drift",
				zap.String("project_id", projectID.String()),
				zap.Int64("stored", u.VectorCount),
				zap.Int64("actual", actual),
			)
			u.VectorCount = actual
		}
		return nil
	})
	if errors.Is(err, quota.ErrProjectMissing) {
		// Deleted between listing and sweeping.
		return nil
	}
	return err
}

// HTTPCountSource asks the search-engine collaborator for live counts.
type HTTPCountSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCountSource(baseURL string) *HTTPCountSource {
	return &HTTPCountSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPCountSource) VectorCount(ctx context.Context, projectID uuid.UUID) (int64, error) {
	url := fmt.Sprintf("%s/projects/%s/vector-count", s.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count source returned status %d", resp.StatusCode)
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Count, nil
}
