package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/recupero/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by updates that matched no row
var ErrNotFound = errors.New("not found")

type CampaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a campaign. Campaigns are normally created by the UI; this is
// used by seeding and tests.
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.CampaignActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO campaigns (id, nombre, estado, timezone, contactar_domingo,
			horario_sabado_inicio, horario_sabado_fin,
			horario_ventana_1_inicio, horario_ventana_1_fin,
			horario_ventana_2_inicio, horario_ventana_2_fin,
			horario_corte_diario, fecha_fin_contactacion,
			kapso_workflow_id, kapso_workflow_id_recordatorio, kapso_phone_number_id,
			distancia_max, created_at, updated_at)
		VALUES (:id, :nombre, :estado, :timezone, :contactar_domingo,
			:horario_sabado_inicio, :horario_sabado_fin,
			:horario_ventana_1_inicio, :horario_ventana_1_fin,
			:horario_ventana_2_inicio, :horario_ventana_2_fin,
			:horario_corte_diario, :fecha_fin_contactacion,
			:kapso_workflow_id, :kapso_workflow_id_recordatorio, :kapso_phone_number_id,
			:distancia_max, :created_at, :updated_at)`, c)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign, or nil when it does not exist
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := r.db.GetContext(ctx, c, `SELECT * FROM campaigns WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListActive returns campaigns in the active state
func (r *CampaignRepository) ListActive(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.SelectContext(ctx, &campaigns,
		`SELECT * FROM campaigns WHERE estado = ? ORDER BY created_at, id`, models.CampaignActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCounters stores recomputed aggregates
func (r *CampaignRepository) UpdateCounters(ctx context.Context, id string, c models.CampaignCounters) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET personas_total = ?, personas_contactadas = ?,
			personas_confirmadas = ?, personas_dentro_rango = ?, updated_at = ?
		WHERE id = ?`,
		c.Total, c.Contacted, c.Confirmed, c.InRange, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update campaign counters: %w", err)
	}
	return expectRow(res)
}

// SetDistance stores a new max distance and the in-range count derived from it
func (r *CampaignRepository) SetDistance(ctx context.Context, id string, maxMeters float64, inRange int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET distancia_max = ?, personas_dentro_rango = ?, updated_at = ?
		WHERE id = ?`,
		maxMeters, inRange, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update campaign distance: %w", err)
	}
	return expectRow(res)
}

// SetLastCut advances the daily-cut watermark
func (r *CampaignRepository) SetLastCut(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET ultimo_corte_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update last cut: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
