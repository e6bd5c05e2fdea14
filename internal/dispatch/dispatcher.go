// Package dispatch runs the outbound side of a campaign: the initial-contact
// batcher, the reminder job and the requeue of failed sends.
package dispatch

import (
	"context"
	"errors"
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

var (
	// ErrCampaignNotFound is returned for an unknown campaign id
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrMissingWorkflow is a configuration error: the campaign has no workflow bound
	ErrMissingWorkflow = kapso.ErrMissingWorkflow
)

// Executor starts upstream workflow runs
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, req kapso.ExecutionRequest) (*kapso.Execution, error)
}

// CampaignStore is the campaign persistence the dispatcher needs
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	ListActive(ctx context.Context) ([]models.Campaign, error)
	UpdateCounters(ctx context.Context, id string, c models.CampaignCounters) error
}

// PersonStore is the person persistence the dispatcher needs
type PersonStore interface {
	List(ctx context.Context, f models.PersonFilter) ([]models.PersonWithPoint, error)
	ApplyPatch(ctx context.Context, id string, patch contact.Patch) error
	Counters(ctx context.Context, campaignID string) (models.CampaignCounters, error)
}

// Config holds dispatcher settings
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	// DryRun selects and batches as usual but never calls upstream and never
	// writes person state
	DryRun    bool
	MaxErrors int
	// Location is used for campaigns without a valid timezone
	Location *time.Location
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:  10,
		BatchDelay: time.Second,
		MaxErrors:  10,
		Location:   time.UTC,
	}
}

// Dispatcher sends initial-contact and reminder workflows
type Dispatcher struct {
	cfg       Config
	campaigns CampaignStore
	persons   PersonStore
	executor  Executor
	logger    *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a new dispatcher
func New(cfg Config, campaigns CampaignStore, persons PersonStore, executor Executor, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		cfg:       cfg,
		campaigns: campaigns,
		persons:   persons,
		executor:  executor,
		logger:    logger.With("component", "dispatch"),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run executes one dispatch for a campaign. Partial failures are reported in
// the returned report; only an unknown campaign or a configuration problem
// yields an error.
func (d *Dispatcher) Run(ctx context.Context, campaignID string, trigger Trigger) (*Report, error) {
	campaign, err := d.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}

	loc := campaign.Location(d.cfg.Location)
	now := d.now().In(loc)
	today := window.LocalDate(now, loc)
	report := newReport(campaign.ID, trigger, d.cfg.DryRun, now)

	logger := d.logger.With("campaign_id", campaign.ID, "trigger", trigger.String(), "dry_run", d.cfg.DryRun)

	if campaign.ContactEndDate.Valid && campaign.ContactEndDate.String != "" && today > campaign.ContactEndDate.String {
		report.Result = ResultEndDatePassed
		report.Message = fmt.Sprintf("contact period ended on %s", campaign.ContactEndDate.String)
		return d.finish(logger, report), nil
	}

	if trigger == TriggerManual && window.LocalDate(campaign.CreatedAt, loc) == today {
		report.Result = ResultSameDay
		report.Message = "first contact is not allowed on the campaign creation day"
		return d.finish(logger, report), nil
	}

	if trigger == TriggerManual && !window.IsWithinContactWindow(campaign.Schedule(d.cfg.Location), now) {
		queued, err := d.queuePending(ctx, campaign, report)
		if err != nil {
			return nil, err
		}
		report.Result = ResultQueued
		report.Queued = queued
		report.Message = fmt.Sprintf("outside contact window, %d persons queued for the next window", queued)
		return d.finish(logger, report), nil
	}

	if !d.cfg.DryRun && campaign.WorkflowID == "" {
		return nil, fmt.Errorf("%w: campaign %s", ErrMissingWorkflow, campaign.ID)
	}

	states := []contact.State{contact.StateQueued}
	if trigger == TriggerManual {
		states = []contact.State{contact.StatePending, contact.StateQueued}
	}
	eligible, err := d.persons.List(ctx, models.PersonFilter{
		CampaignID:       campaign.ID,
		States:           states,
		InRangeOnly:      true,
		ExcludeNoChannel: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible persons: %w", err)
	}

	if len(eligible) == 0 {
		report.Result = ResultNoPersons
		report.Message = "no eligible persons"
		return d.finish(logger, report), nil
	}

	logger.Info("dispatch started", "eligible", len(eligible), "batch_size", d.cfg.BatchSize)

	outcomes, err := runBatches(ctx, eligible, d.cfg.BatchSize, d.cfg.BatchDelay, d.sleep,
		func(ctx context.Context, p models.PersonWithPoint) outcome {
			return d.dispatchOne(ctx, logger, campaign, &p)
		})
	if err != nil {
		logger.Warn("dispatch interrupted", "processed", len(outcomes), "error", err)
	}

	report.tally(outcomes, d.cfg.MaxErrors)
	report.Result = ResultCompleted
	report.Message = fmt.Sprintf("%d of %d sent", report.Summary.Succeeded, report.Summary.Total)

	if !d.cfg.DryRun {
		d.refreshCounters(ctx, logger, campaign.ID)
	}

	return d.finish(logger, report), nil
}

// dispatchOne starts the initial workflow for one person and applies the
// resulting transition. Failures are returned, never propagated.
func (d *Dispatcher) dispatchOne(ctx context.Context, logger *slog.Logger, campaign *models.Campaign, p *models.PersonWithPoint) outcome {
	out := outcome{personID: p.ID}

	if d.cfg.DryRun {
		logger.Info("dry run: simulated workflow execution", "person_id", p.ID, "phone", p.Phone, "workflow_id", campaign.WorkflowID)
		metrics.IncDispatchAttempt(metrics.OutcomeSimulated)
		return out
	}

	start := time.Now()
	exec, execErr := d.executor.ExecuteWorkflow(ctx, campaign.WorkflowID, kapso.ExecutionRequest{
		PhoneNumber:   phone.Normalize(p.Phone),
		PhoneNumberID: campaign.PhoneNumberID,
		Variables:     kapso.InitialVariables(p),
		Context: kapso.ExecutionContext{
			Source:     kapso.SourceInitial,
			CampaignID: campaign.ID,
			PersonID:   p.ID,
		},
	})
	metrics.ObserveKapsoRequest(time.Since(start).Seconds())

	ev := contact.Event{Kind: contact.EventDispatched, At: d.now(), TrackingID: exec.Tracking()}
	if execErr != nil {
		ev = contact.Event{
			Kind:        contact.EventDispatchFailed,
			At:          d.now(),
			Error:       execErr.Error(),
			Unreachable: kapso.IsUnreachable(execErr),
		}
		out.err = execErr

		switch {
		case ev.Unreachable:
			metrics.IncDispatchAttempt(metrics.OutcomeUnreachable)
		default:
			metrics.IncDispatchAttempt(metrics.OutcomeFailed)
		}
		logger.Warn("workflow execution failed", "person_id", p.ID, "unreachable", ev.Unreachable, "error", execErr)
	} else {
		metrics.IncDispatchAttempt(metrics.OutcomeSent)
		logger.Debug("workflow execution started", "person_id", p.ID, "tracking_id", ev.TrackingID)
	}

	if err := d.apply(ctx, &p.Person, ev); err != nil {
		logger.Error("failed to record dispatch outcome", "person_id", p.ID, "error", err)
		if out.err == nil {
			out.err = err
		}
	}

	return out
}

// queuePending moves eligible pendiente persons to encolado for the next window
func (d *Dispatcher) queuePending(ctx context.Context, campaign *models.Campaign, report *Report) (int, error) {
	pending, err := d.persons.List(ctx, models.PersonFilter{
		CampaignID:       campaign.ID,
		States:           []contact.State{contact.StatePending},
		InRangeOnly:      true,
		ExcludeNoChannel: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to select pending persons: %w", err)
	}

	if d.cfg.DryRun {
		return len(pending), nil
	}

	queued := 0
	for i := range pending {
		p := &pending[i].Person
		if err := d.apply(ctx, p, contact.Event{Kind: contact.EventQueued, At: d.now()}); err != nil {
			if len(report.Errors) < d.cfg.MaxErrors || d.cfg.MaxErrors <= 0 {
				report.Errors = append(report.Errors, PersonError{PersonID: p.ID, Error: err.Error()})
			}
			continue
		}
		queued++
	}
	return queued, nil
}

// apply runs the shared transition function and persists the patch
func (d *Dispatcher) apply(ctx context.Context, p *models.Person, ev contact.Event) error {
	patch, err := contact.Transition(p.ContactView(), ev)
	if err != nil {
		return err
	}
	return d.persons.ApplyPatch(ctx, p.ID, patch)
}

func (d *Dispatcher) refreshCounters(ctx context.Context, logger *slog.Logger, campaignID string) {
	counters, err := d.persons.Counters(ctx, campaignID)
	if err != nil {
		logger.Warn("failed to recompute counters", "error", err)
		return
	}
	if err := d.campaigns.UpdateCounters(ctx, campaignID, counters); err != nil {
		logger.Warn("failed to store counters", "error", err)
	}
}

func (d *Dispatcher) finish(logger *slog.Logger, report *Report) *Report {
	metrics.IncDispatchRun(report.Trigger, string(report.Result))
	logger.Info("dispatch finished",
		"result", report.Result,
		"total", report.Summary.Total,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
		"queued", report.Queued,
	)
	return report
}

// RunScheduled runs the scheduled dispatch for every active campaign. Errors
// are logged per campaign; the run never stops early.
func (d *Dispatcher) RunScheduled(ctx context.Context) []*Report {
	campaigns, err := d.campaigns.ListActive(ctx)
	if err != nil {
		d.logger.Error("failed to list active campaigns", "error", err)
		return nil
	}

	var reports []*Report
	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		report, err := d.Run(ctx, c.ID, TriggerScheduled)
		if err != nil {
			d.logger.Error("scheduled dispatch failed", "campaign_id", c.ID, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports
}
