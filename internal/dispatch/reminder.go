package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/kapso"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/models"
	"github.com/foxzi/recupero/internal/phone"
	"github.com/foxzi/recupero/internal/window"
)

// ReminderReport describes one reminder run over all active campaigns
type ReminderReport struct {
	Timestamp time.Time     `json:"timestamp"`
	Mode      string        `json:"modo"`
	Campaigns int           `json:"campanas_procesadas"`
	Summary   Summary       `json:"resumen"`
	Errors    []PersonError `json:"errores"`
}

// RunReminders sends the reminder workflow to every confirmed person whose
// commitment date is today in the campaign timezone. Persons already flagged
// are skipped, so repeated runs on the same day send nothing new. A failed
// send leaves the person untouched for the next run.
func (d *Dispatcher) RunReminders(ctx context.Context) (*ReminderReport, error) {
	campaigns, err := d.campaigns.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	mode := modeProduction
	if d.cfg.DryRun {
		mode = modeDryRun
	}
	report := &ReminderReport{
		Timestamp: d.now(),
		Mode:      mode,
	}

	var all []outcome
	for i := range campaigns {
		if ctx.Err() != nil {
			break
		}
		c := &campaigns[i]
		logger := d.logger.With("campaign_id", c.ID, "job", "reminder")

		outcomes, err := d.remindCampaign(ctx, logger, c)
		if err != nil {
			logger.Error("reminder run failed", "error", err)
			continue
		}
		report.Campaigns++
		all = append(all, outcomes...)
	}

	report.Summary, report.Errors = summarize(all, d.cfg.MaxErrors)

	d.logger.Info("reminder run finished",
		"campaigns", report.Campaigns,
		"total", report.Summary.Total,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
		"dry_run", d.cfg.DryRun,
	)
	return report, nil
}

func (d *Dispatcher) remindCampaign(ctx context.Context, logger *slog.Logger, c *models.Campaign) ([]outcome, error) {
	loc := c.Location(d.cfg.Location)
	today := window.LocalDate(d.now(), loc)

	due, err := d.persons.List(ctx, models.PersonFilter{
		CampaignID:      c.ID,
		States:          []contact.State{contact.StateConfirmed},
		CommitmentDate:  today,
		ReminderPending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select reminder recipients: %w", err)
	}
	if len(due) == 0 {
		logger.Debug("no reminders due", "date", today)
		return nil, nil
	}

	if !d.cfg.DryRun && c.ReminderWorkflowID == "" {
		return nil, fmt.Errorf("%w: reminder workflow for campaign %s", ErrMissingWorkflow, c.ID)
	}

	logger.Info("sending reminders", "due", len(due), "date", today)

	outcomes, err := runBatches(ctx, due, d.cfg.BatchSize, d.cfg.BatchDelay, d.sleep,
		func(ctx context.Context, p models.PersonWithPoint) outcome {
			return d.remindOne(ctx, logger, c, &p)
		})
	if err != nil {
		logger.Warn("reminder run interrupted", "processed", len(outcomes), "error", err)
	}
	return outcomes, nil
}

func (d *Dispatcher) remindOne(ctx context.Context, logger *slog.Logger, c *models.Campaign, p *models.PersonWithPoint) outcome {
	out := outcome{personID: p.ID}

	if d.cfg.DryRun {
		logger.Info("dry run: simulated reminder", "person_id", p.ID, "phone", p.Phone)
		metrics.IncReminder(metrics.OutcomeSimulated)
		return out
	}

	start := time.Now()
	_, err := d.executor.ExecuteWorkflow(ctx, c.ReminderWorkflowID, kapso.ExecutionRequest{
		PhoneNumber:   phone.Normalize(p.Phone),
		PhoneNumberID: c.PhoneNumberID,
		Variables:     kapso.ReminderVariables(p),
		Context: kapso.ExecutionContext{
			Source:     kapso.SourceReminder,
			CampaignID: c.ID,
			PersonID:   p.ID,
		},
	})
	metrics.ObserveKapsoRequest(time.Since(start).Seconds())
	if err != nil {
		metrics.IncReminder(metrics.OutcomeFailed)
		logger.Warn("reminder failed", "person_id", p.ID, "error", err)
		out.err = err
		return out
	}

	metrics.IncReminder(metrics.OutcomeSent)
	if err := d.apply(ctx, &p.Person, contact.Event{Kind: contact.EventReminderSent, At: d.now()}); err != nil {
		logger.Error("failed to flag reminder", "person_id", p.ID, "error", err)
		out.err = err
	}
	return out
}
