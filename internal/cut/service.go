package cut

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/models"
	"github.com/foxzi/recupero/internal/window"
)

// ErrCampaignNotFound is returned for an unknown campaign id
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignStore is the campaign persistence the cut needs
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	ListActive(ctx context.Context) ([]models.Campaign, error)
	SetLastCut(ctx context.Context, id string, at time.Time) error
}

// PersonStore is the person persistence the cut needs
type PersonStore interface {
	List(ctx context.Context, f models.PersonFilter) ([]models.PersonWithPoint, error)
}

// Result describes one cut
type Result struct {
	Success      bool   `json:"success"`
	CampaignID   string `json:"campana_id"`
	CampaignName string `json:"campana_nombre"`
	Date         string `json:"fecha_corte"`
	Rows         int    `json:"total_filas"`
	Persons      int    `json:"total_personas"`
	FileName     string `json:"file_name,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	Message      string `json:"message"`
}

// Service produces daily cuts
type Service struct {
	campaigns CampaignStore
	persons   PersonStore
	sink      Sink
	location  *time.Location
	logger    *slog.Logger

	now func() time.Time
}

// NewService creates a cut service. loc is used for campaigns without a
// valid timezone.
func NewService(campaigns CampaignStore, persons PersonStore, sink Sink, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		campaigns: campaigns,
		persons:   persons,
		sink:      sink,
		location:  loc,
		logger:    logger.With("component", "cut"),
		now:       time.Now,
	}
}

// Run snapshots the commitments captured since the campaign's last cut,
// stores the workbook and advances the watermark. An empty selection writes
// nothing and leaves the watermark where it was.
func (s *Service) Run(ctx context.Context, campaignID string) (*Result, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}

	cutAt := s.now()
	date := window.LocalDate(cutAt, c.Location(s.location))
	result := &Result{
		Success:      true,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Date:         date,
	}

	filter := models.PersonFilter{
		CampaignID:    c.ID,
		States:        []contact.State{contact.StateConfirmed},
		HasCommitment: true,
	}
	if c.LastCutAt.Valid {
		since := c.LastCutAt.Time
		filter.CapturedAfter = &since
	}

	persons, err := s.persons.List(ctx, filter)
	if err != nil {
		metrics.IncCut("error", 0)
		return nil, fmt.Errorf("failed to select confirmed persons: %w", err)
	}

	rows := BuildRows(persons)
	result.Persons = len(persons)
	result.Rows = len(rows)

	logger := s.logger.With("campaign_id", c.ID, "date", date)

	if len(rows) == 0 {
		result.Message = "No new confirmed persons with a commitment date"
		metrics.IncCut("empty", 0)
		logger.Info("daily cut skipped, nothing new")
		return result, nil
	}

	data, err := Workbook(rows)
	if err != nil {
		metrics.IncCut("error", 0)
		return nil, err
	}

	result.FileName = fmt.Sprintf("corte-diario-%s-%s.xlsx", c.ID, date)
	location, err := s.sink.Put(ctx, c.ID+"/cortes-diarios/"+result.FileName, data)
	if err != nil {
		metrics.IncCut("error", 0)
		return nil, err
	}
	result.FilePath = location

	if err := s.campaigns.SetLastCut(ctx, c.ID, watermark(persons, cutAt)); err != nil {
		metrics.IncCut("error", len(rows))
		return nil, fmt.Errorf("failed to advance last cut: %w", err)
	}

	result.Message = "Daily cut generated"
	metrics.IncCut("ok", len(rows))
	logger.Info("daily cut generated", "rows", len(rows), "persons", len(persons), "path", location)
	return result, nil
}

// watermark is the newest capture time among the cut rows. Captures that land
// while the cut runs stay after it and go to the next cut.
func watermark(persons []models.PersonWithPoint, fallback time.Time) time.Time {
	var newest time.Time
	for _, p := range persons {
		if p.CommitmentCapturedAt.Valid && p.CommitmentCapturedAt.Time.After(newest) {
			newest = p.CommitmentCapturedAt.Time
		}
	}
	if newest.IsZero() {
		return fallback
	}
	return newest
}

// RunAll cuts every active campaign. Failures are logged per campaign.
func (s *Service) RunAll(ctx context.Context) []*Result {
	campaigns, err := s.campaigns.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active campaigns", "error", err)
		return nil
	}

	var results []*Result
	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		res, err := s.Run(ctx, c.ID)
		if err != nil {
			s.logger.Error("daily cut failed", "campaign_id", c.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results
}
