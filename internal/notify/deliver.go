package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/model"
	"github.com/nhle/coordination/internal/store"
)

// Pacer throttles gate evaluations per project.
type Pacer interface {
	Wait(ctx context.Context, projectID string) error
}

// DeliveryResult summarizes a DeliverPending pass.
type DeliveryResult struct {
	Evaluated  int            `json:"evaluated"`
	Sent       int            `json:"sent"`
	Suppressed map[Reason]int `json:"suppressed"`
}

// DeliverPending runs every PENDING trigger through the gate, oldest first.
// An empty projectID covers all projects. pacer may be nil.
func (g *Gate) DeliverPending(ctx context.Context, projectID string, pacer Pacer) (*DeliveryResult, error) {
	pending, err := g.store.ListTriggers(ctx, store.TriggerFilter{
		ProjectID: projectID,
		Statuses:  []model.TriggerStatus{model.TriggerPending},
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending triggers: %w", err)
	}

	res := &DeliveryResult{Suppressed: make(map[Reason]int)}
	for _, t := range pending {
		if pacer != nil {
			if err := pacer.Wait(ctx, t.ProjectID); err != nil {
				return res, err
			}
		}

		r, err := g.CreateNotificationForTrigger(ctx, t)
		if err != nil {
			return res, fmt.Errorf("delivering trigger %s: %w", t.ID, err)
		}
		res.Evaluated++
		if r.Sent {
			res.Sent++
		} else {
			res.Suppressed[r.Reason]++
		}
	}

	if res.Evaluated > 0 {
		g.logger.Info("pending triggers delivered",
			zap.String("project_id", projectID),
			zap.Int("evaluated", res.Evaluated),
			zap.Int("sent", res.Sent),
		)
	}
	return res, nil
}
