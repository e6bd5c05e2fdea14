package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PersonRepository struct {
	db *sqlx.DB
}

func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// Create inserts a person. Persons are produced by ingestion; this is used by
// seeding and tests.
func (r *PersonRepository) Create(ctx context.Context, p *models.Person) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.State == "" {
		p.State = contact.StatePending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO personas_contactar (id, campana_id, nro_cliente, nros_cliente, nro_wo, nros_wo,
			cantidad_decos, apellido_nombre, dni, telefono_principal, direccion_completa, cp,
			localidad, provincia, punto_pickit_id, distancia_metros, dentro_rango, estado_contacto,
			tiene_whatsapp, error_envio_kapso, intentos_envio, fecha_envio_whatsapp, fecha_respuesta,
			respuesta_texto, fecha_compromiso, fecha_captura_compromiso, motivo_negativo,
			solicita_retiro_domicilio, recordatorio_enviado, fecha_envio_recordatorio,
			kapso_tracking_id, created_at, updated_at)
		VALUES (:id, :campana_id, :nro_cliente, :nros_cliente, :nro_wo, :nros_wo,
			:cantidad_decos, :apellido_nombre, :dni, :telefono_principal, :direccion_completa, :cp,
			:localidad, :provincia, :punto_pickit_id, :distancia_metros, :dentro_rango, :estado_contacto,
			:tiene_whatsapp, :error_envio_kapso, :intentos_envio, :fecha_envio_whatsapp, :fecha_respuesta,
			:respuesta_texto, :fecha_compromiso, :fecha_captura_compromiso, :motivo_negativo,
			:solicita_retiro_domicilio, :recordatorio_enviado, :fecha_envio_recordatorio,
			:kapso_tracking_id, :created_at, :updated_at)`, p)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// GetByID returns a person, or nil when it does not exist
func (r *PersonRepository) GetByID(ctx context.Context, id string) (*models.Person, error) {
	p := &models.Person{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM personas_contactar WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

const selectWithPoint = `
	SELECT p.*, pp.nombre AS punto_nombre, pp.direccion AS punto_direccion, pp.horario AS punto_horario
	FROM personas_contactar p
	LEFT JOIN puntos_pickit pp ON pp.id = p.punto_pickit_id`

// GetWithPoint returns a person joined with its pickup point, or nil
func (r *PersonRepository) GetWithPoint(ctx context.Context, id string) (*models.PersonWithPoint, error) {
	p := &models.PersonWithPoint{}
	err := r.db.GetContext(ctx, p, selectWithPoint+` WHERE p.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// List returns persons matching the filter, oldest first
func (r *PersonRepository) List(ctx context.Context, f models.PersonFilter) ([]models.PersonWithPoint, error) {
	where := []string{"p.campana_id = ?"}
	args := []any{f.CampaignID}

	if len(f.States) > 0 {
		where = append(where, "p.estado_contacto IN (?)")
		args = append(args, f.States)
	}
	if f.InRangeOnly {
		where = append(where, "p.dentro_rango = 1")
	}
	if f.ExcludeNoChannel {
		where = append(where, "(p.tiene_whatsapp IS NULL OR p.tiene_whatsapp = 1)")
	}
	if f.CommitmentDate != "" {
		where = append(where, "p.fecha_compromiso = ?")
		args = append(args, f.CommitmentDate)
	}
	if f.HasCommitment {
		where = append(where, "p.fecha_compromiso IS NOT NULL")
	}
	if f.ReminderPending {
		where = append(where, "p.recordatorio_enviado = 0")
	}
	if f.CapturedAfter != nil {
		where = append(where, "p.fecha_captura_compromiso > ?")
		args = append(args, f.CapturedAfter.UTC())
	}

	query := selectWithPoint + " WHERE " + strings.Join(where, " AND ") + " ORDER BY p.created_at, p.id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build person query: %w", err)
	}

	var persons []models.PersonWithPoint
	if err := r.db.SelectContext(ctx, &persons, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	return persons, nil
}

// FindByPhones returns the most recently created person whose stored phone
// equals any of the candidates, or nil
func (r *PersonRepository) FindByPhones(ctx context.Context, candidates []string) (*models.Person, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM personas_contactar
		WHERE telefono_principal IN (?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to build phone query: %w", err)
	}

	p := &models.Person{}
	err = r.db.GetContext(ctx, p, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by phone: %w", err)
	}
	return p, nil
}

// ApplyPatch writes the fields set in a state-machine patch to one person
func (r *PersonRepository) ApplyPatch(ctx context.Context, id string, patch contact.Patch) error {
	var sets []string
	var args []any

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.State != nil {
		set("estado_contacto", *patch.State)
	}
	if patch.HasWhatsApp != nil {
		set("tiene_whatsapp", *patch.HasWhatsApp)
	}
	if patch.SendError != nil {
		set("error_envio_kapso", nullString(*patch.SendError))
	}
	if patch.IncrementAttempts {
		sets = append(sets, "intentos_envio = intentos_envio + 1")
	}
	if patch.SentAt != nil {
		set("fecha_envio_whatsapp", patch.SentAt.UTC())
	}
	if patch.TrackingID != nil {
		set("kapso_tracking_id", nullString(*patch.TrackingID))
	}
	if patch.RespondedAt != nil {
		set("fecha_respuesta", patch.RespondedAt.UTC())
	}
	if patch.ReplyText != nil {
		set("respuesta_texto", *patch.ReplyText)
	}
	if patch.CommitmentDate != nil {
		set("fecha_compromiso", nullString(*patch.CommitmentDate))
	}
	if patch.CommitmentCapturedAt != nil {
		set("fecha_captura_compromiso", patch.CommitmentCapturedAt.UTC())
	}
	if patch.NegativeReason != nil {
		set("motivo_negativo", *patch.NegativeReason)
	}
	if patch.HomePickup != nil {
		set("solicita_retiro_domicilio", *patch.HomePickup)
	}
	if patch.ReminderSent != nil {
		set("recordatorio_enviado", *patch.ReminderSent)
	}
	if patch.ReminderSentAt != nil {
		set("fecha_envio_recordatorio", patch.ReminderSentAt.UTC())
	}

	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE personas_contactar SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update person %s: %w", id, err)
	}
	return expectRow(res)
}

// Counters recomputes a campaign's aggregates over all of its persons
func (r *PersonRepository) Counters(ctx context.Context, campaignID string) (models.CampaignCounters, error) {
	var contacted []contact.State
	for _, s := range contact.AllStates {
		if s.Contacted() {
			contacted = append(contacted, s)
		}
	}

	query, args, err := sqlx.In(`
		SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN estado_contacto IN (?) THEN 1 ELSE 0 END), 0) AS contacted,
			COALESCE(SUM(CASE WHEN estado_contacto = ? THEN 1 ELSE 0 END), 0) AS confirmed,
			COALESCE(SUM(CASE WHEN dentro_rango = 1 THEN 1 ELSE 0 END), 0) AS in_range
		FROM personas_contactar WHERE campana_id = ?`,
		contacted, contact.StateConfirmed, campaignID)
	if err != nil {
		return models.CampaignCounters{}, fmt.Errorf("failed to build counters query: %w", err)
	}

	var row struct {
		Total     int `db:"total"`
		Contacted int `db:"contacted"`
		Confirmed int `db:"confirmed"`
		InRange   int `db:"in_range"`
	}
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		return models.CampaignCounters{}, fmt.Errorf("failed to compute counters: %w", err)
	}

	return models.CampaignCounters{
		Total:     row.Total,
		Contacted: row.Contacted,
		Confirmed: row.Confirmed,
		InRange:   row.InRange,
	}, nil
}

// CountByState returns person counts per contact state across all campaigns
func (r *PersonRepository) CountByState(ctx context.Context) (map[contact.State]int, error) {
	var rows []struct {
		State contact.State `db:"estado_contacto"`
		Count int           `db:"n"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT estado_contacto, COUNT(*) AS n FROM personas_contactar GROUP BY estado_contacto`)
	if err != nil {
		return nil, fmt.Errorf("failed to count persons by state: %w", err)
	}

	counts := make(map[contact.State]int, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// RecomputeRange rederives dentro_rango for every person of a campaign from
// the stored distance. Persons without a distance are out of range.
func (r *PersonRepository) RecomputeRange(ctx context.Context, campaignID string, maxMeters float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE personas_contactar
		SET dentro_rango = (distancia_metros IS NOT NULL AND distancia_metros <= ?), updated_at = ?
		WHERE campana_id = ?`,
		maxMeters, time.Now().UTC(), campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute range: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
