package coordination

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/model"
)

// SweepResult counts what a sweep did.
type SweepResult struct {
	Evaluated  int             `json:"evaluated"`
	Created    int             `json:"created"`
	Suppressed int             `json:"suppressed"`
	Triggers   []model.Trigger `json:"triggers,omitempty"`
}

// RunScheduledCoordinationSweep re-evaluates every open trigger as if its
// source event had aged to now. An empty projectID sweeps all projects.
// The aging events are fed straight to the evaluator and never stored.
func (e *Engine) RunScheduledCoordinationSweep(ctx context.Context, projectID string) (*SweepResult, error) {
	now := e.now().UTC()

	events, err := e.store.GetPendingTriggerAges(ctx, projectID, now)
	if err != nil {
		return nil, fmt.Errorf("loading open triggers: %w", err)
	}

	res := &SweepResult{}
	for _, ev := range events {
		if err := e.evaluate(ctx, ev, now, &res.Created, &res.Suppressed, &res.Triggers); err != nil {
			return res, fmt.Errorf("sweeping %s: %w", ev.ID, err)
		}
		res.Evaluated++
	}

	e.logger.Info("sweep finished",
		zap.String("project_id", projectID),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("created", res.Created),
		zap.Int("suppressed", res.Suppressed),
	)
	return res, nil
}
