// Package campaign maintains the derived fields of a campaign: its aggregate
// counters and the in-range flags that follow from its max distance.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/foxzi/recupero/internal/models"
)

var (
	// ErrNotFound is returned for an unknown campaign id
	ErrNotFound = errors.New("campaign not found")
	// ErrInvalidDistance is returned for a max distance that is not positive
	ErrInvalidDistance = errors.New("distancia_max must be greater than 0")
	// ErrNoPersons is returned when a recompute finds an empty campaign
	ErrNoPersons = errors.New("no persons in campaign")
)

// CampaignStore is the campaign persistence the service needs
type CampaignStore interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	UpdateCounters(ctx context.Context, id string, c models.CampaignCounters) error
	SetDistance(ctx context.Context, id string, maxMeters float64, inRange int) error
}

// PersonStore is the person persistence the service needs
type PersonStore interface {
	Counters(ctx context.Context, campaignID string) (models.CampaignCounters, error)
	RecomputeRange(ctx context.Context, campaignID string, maxMeters float64) (int64, error)
}

// Service recomputes campaign aggregates
type Service struct {
	campaigns CampaignStore
	persons   PersonStore
	logger    *slog.Logger
}

// NewService creates a new campaign service
func NewService(campaigns CampaignStore, persons PersonStore, logger *slog.Logger) *Service {
	return &Service{
		campaigns: campaigns,
		persons:   persons,
		logger:    logger.With("component", "campaign"),
	}
}

// Get returns a campaign with counters recomputed from its persons
func (s *Service) Get(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	counters, err := s.RefreshCounters(ctx, id)
	if err != nil {
		return nil, err
	}
	c.TotalPersons = counters.Total
	c.ContactedPersons = counters.Contacted
	c.ConfirmedPersons = counters.Confirmed
	c.InRangePersons = counters.InRange
	return c, nil
}

// RefreshCounters recomputes the aggregates over every person of the campaign
// and stores them. Concurrent refreshes may interleave; the last write wins.
func (s *Service) RefreshCounters(ctx context.Context, id string) (models.CampaignCounters, error) {
	counters, err := s.persons.Counters(ctx, id)
	if err != nil {
		return models.CampaignCounters{}, err
	}
	if err := s.campaigns.UpdateCounters(ctx, id, counters); err != nil {
		return models.CampaignCounters{}, fmt.Errorf("failed to store counters: %w", err)
	}
	s.logger.Debug("counters refreshed", "campaign_id", id,
		"total", counters.Total, "contacted", counters.Contacted, "confirmed", counters.Confirmed)
	return counters, nil
}

// DistanceResult summarizes a range recompute
type DistanceResult struct {
	Success      bool    `json:"success"`
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	MaxDistance  float64 `json:"distancia_max"`
	Total        int     `json:"total_personas"`
	InRange      int     `json:"personas_dentro_rango"`
	OutOfRange   int     `json:"personas_fuera_rango"`
	Percentage   string  `json:"porcentaje_en_rango"`
	Updated      int64   `json:"updated_count"`
	Message      string  `json:"message"`
}

// RecomputeDistance sets a new max distance for the campaign and rederives
// the in-range flag of every person from their stored distance
func (s *Service) RecomputeDistance(ctx context.Context, id string, maxMeters float64) (*DistanceResult, error) {
	if maxMeters <= 0 || math.IsNaN(maxMeters) || math.IsInf(maxMeters, 0) {
		return nil, ErrInvalidDistance
	}

	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated, err := s.persons.RecomputeRange(ctx, id, maxMeters)
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPersons, id)
	}

	counters, err := s.persons.Counters(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.campaigns.SetDistance(ctx, id, maxMeters, counters.InRange); err != nil {
		return nil, fmt.Errorf("failed to store distance: %w", err)
	}

	result := &DistanceResult{
		Success:      true,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		MaxDistance:  maxMeters,
		Total:        counters.Total,
		InRange:      counters.InRange,
		OutOfRange:   counters.Total - counters.InRange,
		Percentage:   percentage(counters.InRange, counters.Total),
		Updated:      updated,
		Message:      "Distances recalculated successfully",
	}

	s.logger.Info("distances recalculated", "campaign_id", id, "distancia_max", maxMeters,
		"in_range", result.InRange, "total", result.Total)
	return result, nil
}

func percentage(part, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", float64(part)*100/float64(total))
}
