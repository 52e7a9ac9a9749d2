package quota

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/models"
)

// Guard enforces the per-project vector cap. The check and the increment
// are one locked read-modify-write: checking in one statement and
// incrementing in another would let two concurrent ingests both pass the
// check and jointly overshoot the cap.
type Guard struct {
	usage UsageStore
	log   *zap.Logger
}

func NewGuard(usage UsageStore, log *zap.Logger) *Guard {
	return &Guard{usage: usage, log: log}
}

// Reserve adjusts the project's vector count by delta. Positive deltas are
// rejected when they would push the count past the plan's per-project cap;
// negative deltas are always permitted and floor the count at zero, so the
// counter cannot go negative even if it briefly disagrees with the engine.
func (g *Guard) Reserve(ctx context.Context, projectID uuid.UUID, delta int64) (Reservation, error) {
	var r Reservation
	err := g.usage.MutateUsage(ctx, projectID, func(u *models.ProjectUsage, vectorLimit *int64) error {
		if delta > 0 && vectorLimit != nil && u.VectorCount+delta > *vectorLimit {
			r = Reservation{Reserved: false, Limit: *vectorLimit, Current: u.VectorCount}
			return nil
		}

		u.VectorCount += delta
		if u.VectorCount < 0 {
			u.VectorCount = 0
		}

		r = Reservation{Reserved: true, Current: u.VectorCount}
		if vectorLimit != nil {
			r.Limit = *vectorLimit
		}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	if !r.Reserved {
		g.log.Debug("capacity rejected",
			zap.String("project_id", projectID.String()),
			zap.Int64("limit", r.Limit),
			zap.Int64("current", r.Current),
			zap.Int64("delta", delta),
		)
	}
	return r, nil
}
