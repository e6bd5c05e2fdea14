package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/recupero/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateCall is returned when a call with the same external id exists
var ErrDuplicateCall = errors.New("call already recorded")

type CallRepository struct {
	db *sqlx.DB
}

func NewCallRepository(db *sqlx.DB) *CallRepository {
	return &CallRepository{db: db}
}

// ExistsByExternalID reports whether a call was already recorded
func (r *CallRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM llamadas WHERE external_id = ?`, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to check call: %w", err)
	}
	return n > 0, nil
}

// Create records a call. A concurrent insert of the same external id yields
// ErrDuplicateCall.
func (r *CallRepository) Create(ctx context.Context, c *models.Call) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	c.CalledAt = c.CalledAt.UTC()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llamadas (id, persona_id, external_id, fecha_llamada, duracion_segundos,
			transcript, recording_url, resultado, created_at)
		VALUES (:id, :persona_id, :external_id, :fecha_llamada, :duracion_segundos,
			:transcript, :recording_url, :resultado, :created_at)`, c)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateCall
		}
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

// ListByPerson returns a person's calls, newest first
func (r *CallRepository) ListByPerson(ctx context.Context, personID string) ([]models.Call, error) {
	var calls []models.Call
	err := r.db.SelectContext(ctx, &calls,
		`SELECT * FROM llamadas WHERE persona_id = ? ORDER BY fecha_llamada DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return calls, nil
}
