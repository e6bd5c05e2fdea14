package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/models"
)

// RequeueFailed moves failed sends of a campaign back to encolado so the next
// scheduled run retries them. Persons known to have no WhatsApp stay put.
func (d *Dispatcher) RequeueFailed(ctx context.Context, campaignID string) (int, error) {
	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign == nil {
		return 0, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}

	failed, err := d.persons.List(ctx, models.PersonFilter{
		CampaignID:       campaign.ID,
		States:           []contact.State{contact.StateDispatchErr},
		ExcludeNoChannel: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to select failed persons: %w", err)
	}

	if d.cfg.DryRun {
		return len(failed), nil
	}

	var errs []error
	requeued := 0
	for i := range failed {
		p := &failed[i].Person
		if err := d.apply(ctx, p, contact.Event{Kind: contact.EventQueued, At: d.now()}); err != nil {
			errs = append(errs, fmt.Errorf("person %s: %w", p.ID, err))
			continue
		}
		requeued++
	}

	d.logger.Info("failed sends requeued", "campaign_id", campaign.ID, "requeued", requeued, "errors", len(errs))
	return requeued, errors.Join(errs...)
}
