package campaign

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/db"
	"github.com/foxzi/recupero/internal/models"
	"github.com/foxzi/recupero/internal/repository"
)

func TestPersonDetail(t *testing.T) {
	database, err := db.NewMemory()
	require.NoError(t, err)
	require.NoError(t, database.Migrate())
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	campaigns := repository.NewCampaignRepository(database.DB)
	persons := repository.NewPersonRepository(database.DB)
	calls := repository.NewCallRepository(database.DB)
	svc := NewPersonService(persons, calls)

	c := &models.Campaign{Name: "Junio"}
	require.NoError(t, campaigns.Create(ctx, c))

	p := &models.Person{
		CampaignID:     c.ID,
		Phone:          "+5491139099780",
		State:          contact.StateConfirmed,
		CommitmentDate: sql.NullString{String: "2025-06-05", Valid: true},
	}
	require.NoError(t, persons.Create(ctx, p))

	detail, err := svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detail.ID)
	require.NotNil(t, detail.Commitment)
	assert.Equal(t, "2025-06-05", *detail.Commitment)
	assert.Empty(t, detail.Calls)
	assert.NotNil(t, detail.Calls)

	first := time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC)
	require.NoError(t, calls.Create(ctx, &models.Call{PersonID: p.ID, ExternalID: "call-1", CalledAt: first, Outcome: models.CallNotAnswered}))
	require.NoError(t, calls.Create(ctx, &models.Call{PersonID: p.ID, ExternalID: "call-2", CalledAt: first.Add(time.Hour), Outcome: models.CallAnswered}))

	detail, err = svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Calls, 2)
	assert.Equal(t, "call-2", detail.Calls[0].ExternalID)

	_, err = svc.Detail(ctx, "missing")
	assert.True(t, errors.Is(err, ErrPersonNotFound))
}
