package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/foxzi/recupero/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PointRepository struct {
	db *sqlx.DB
}

func NewPointRepository(db *sqlx.DB) *PointRepository {
	return &PointRepository{db: db}
}

// Create inserts a pickup point
func (r *PointRepository) Create(ctx context.Context, p *models.PickupPoint) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO puntos_pickit (id, nombre, direccion, horario) VALUES (:id, :nombre, :direccion, :horario)`, p)
	if err != nil {
		return fmt.Errorf("failed to create pickup point: %w", err)
	}
	return nil
}

// GetByID returns a pickup point, or nil when it does not exist
func (r *PointRepository) GetByID(ctx context.Context, id string) (*models.PickupPoint, error) {
	p := &models.PickupPoint{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM puntos_pickit WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pickup point: %w", err)
	}
	return p, nil
}
