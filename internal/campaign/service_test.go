package campaign

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/db"
	"github.com/foxzi/recupero/internal/models"
	"github.com/foxzi/recupero/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *repository.CampaignRepository, *repository.PersonRepository) {
	t.Helper()

	database, err := db.NewMemory()
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { database.Close() })

	campaigns := repository.NewCampaignRepository(database.DB)
	persons := repository.NewPersonRepository(database.DB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(campaigns, persons, logger), campaigns, persons
}

func addPerson(t *testing.T, repo *repository.PersonRepository, campaignID string, meters float64, state contact.State) {
	t.Helper()
	p := &models.Person{
		CampaignID:     campaignID,
		Phone:          "+5491100000000",
		State:          state,
		DistanceMeters: sql.NullFloat64{Float64: meters, Valid: meters > 0},
		InRange:        meters > 0 && meters <= 2000,
	}
	require.NoError(t, repo.Create(context.Background(), p))
}

func TestGetRefreshesCounters(t *testing.T) {
	svc, campaigns, persons := setup(t)
	ctx := context.Background()

	c := &models.Campaign{Name: "Junio"}
	require.NoError(t, campaigns.Create(ctx, c))

	addPerson(t, persons, c.ID, 500, contact.StatePending)
	addPerson(t, persons, c.ID, 1500, contact.StateSent)
	addPerson(t, persons, c.ID, 1800, contact.StateConfirmed)
	addPerson(t, persons, c.ID, 3500, contact.StateDispatchErr)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalPersons)
	assert.Equal(t, 2, got.ContactedPersons)
	assert.Equal(t, 1, got.ConfirmedPersons)
	assert.Equal(t, 3, got.InRangePersons)

	stored, err := campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalPersons)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecomputeDistance(t *testing.T) {
	svc, campaigns, persons := setup(t)
	ctx := context.Background()

	c := &models.Campaign{Name: "Junio", MaxDistance: 2000}
	require.NoError(t, campaigns.Create(ctx, c))

	addPerson(t, persons, c.ID, 500, contact.StatePending)
	addPerson(t, persons, c.ID, 1500, contact.StatePending)
	addPerson(t, persons, c.ID, 2900, contact.StatePending)

	result, err := svc.RecomputeDistance(ctx, c.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.InRange)
	assert.Equal(t, 2, result.OutOfRange)
	assert.Equal(t, "33.33", result.Percentage)
	assert.EqualValues(t, 3, result.Updated)

	stored, err := campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, stored.MaxDistance)
	assert.Equal(t, 1, stored.InRangePersons)

	result, err = svc.RecomputeDistance(ctx, c.ID, 3000)
	require.NoError(t, err)
	assert.Equal(t, 3, result.InRange)
	assert.Equal(t, "100.00", result.Percentage)
}

func TestRecomputeDistanceErrors(t *testing.T) {
	svc, campaigns, _ := setup(t)
	ctx := context.Background()

	empty := &models.Campaign{Name: "Vacia"}
	require.NoError(t, campaigns.Create(ctx, empty))

	tests := []struct {
		name string
		id   string
		max  float64
		want error
	}{
		{"zero distance", empty.ID, 0, ErrInvalidDistance},
		{"negative distance", empty.ID, -10, ErrInvalidDistance},
		{"unknown campaign", "missing", 1000, ErrNotFound},
		{"empty campaign", empty.ID, 1000, ErrNoPersons},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecomputeDistance(ctx, tt.id, tt.max)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
