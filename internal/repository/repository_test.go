package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/db"
	"github.com/foxzi/recupero/internal/models"
	"github.com/jmoiron/sqlx"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.NewMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database.DB
}

func createCampaign(t *testing.T, repo *CampaignRepository) *models.Campaign {
	t.Helper()
	c := &models.Campaign{Name: "Recupero Junio", Timezone: "America/Argentina/Buenos_Aires", WorkflowID: "wf-1"}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}

func TestCampaignRepository(t *testing.T) {
	database := setupTestDB(t)
	repo := NewCampaignRepository(database)
	ctx := context.Background()

	c := createCampaign(t, repo)

	got, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil || got.Name != "Recupero Junio" {
		t.Fatalf("unexpected campaign: %+v", got)
	}
	if got.Status != models.CampaignActive {
		t.Errorf("expected active status, got %s", got.Status)
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing campaign, got %v, %v", missing, err)
	}

	paused := &models.Campaign{Name: "Pausada", Status: models.CampaignPaused}
	if err := repo.Create(ctx, paused); err != nil {
		t.Fatalf("failed to create paused campaign: %v", err)
	}
	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != c.ID {
		t.Errorf("expected only the active campaign, got %d", len(active))
	}

	cut := time.Date(2025, 6, 3, 20, 0, 0, 0, time.UTC)
	if err := repo.SetLastCut(ctx, c.ID, cut); err != nil {
		t.Fatalf("SetLastCut failed: %v", err)
	}
	got, _ = repo.GetByID(ctx, c.ID)
	if !got.LastCutAt.Valid || !got.LastCutAt.Time.Equal(cut) {
		t.Errorf("expected last cut %v, got %v", cut, got.LastCutAt)
	}

	if err := repo.SetDistance(ctx, "nope", 100, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPersonApplyPatch(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	persons := NewPersonRepository(database)
	ctx := context.Background()

	c := createCampaign(t, campaigns)
	p := &models.Person{CampaignID: c.ID, FullName: "Perez Juan", Phone: "+5491139099780", InRange: true}
	if err := persons.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Date(2025, 6, 3, 16, 0, 0, 0, time.UTC)
	patch, err := contact.Transition(p.ContactView(), contact.Event{Kind: contact.EventDispatched, At: at, TrackingID: "trk-9"})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := persons.ApplyPatch(ctx, p.ID, patch); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}

	got, err := persons.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.State != contact.StateSent {
		t.Errorf("expected %s, got %s", contact.StateSent, got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.TrackingID.String != "trk-9" {
		t.Errorf("expected tracking id, got %q", got.TrackingID.String)
	}
	if !got.SentAt.Valid || !got.SentAt.Time.Equal(at) {
		t.Errorf("expected sent at %v, got %v", at, got.SentAt)
	}

	// confirm with a date, then reject to clear it
	patch, _ = contact.Transition(got.ContactView(), contact.Event{Kind: contact.EventReply, At: at, Reply: contact.Reply{CommitmentDate: "12/06/2025"}})
	if err := persons.ApplyPatch(ctx, p.ID, patch); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	got, _ = persons.GetByID(ctx, p.ID)
	if got.State != contact.StateConfirmed || got.CommitmentDate.String != "2025-06-12" {
		t.Errorf("expected confirmed 2025-06-12, got %s %v", got.State, got.CommitmentDate)
	}

	no := false
	patch, _ = contact.Transition(got.ContactView(), contact.Event{Kind: contact.EventReply, At: at, Reply: contact.Reply{Confirmed: &no}})
	if err := persons.ApplyPatch(ctx, p.ID, patch); err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	got, _ = persons.GetByID(ctx, p.ID)
	if got.State != contact.StateRejected {
		t.Errorf("expected rejected, got %s", got.State)
	}
	if got.CommitmentDate.Valid {
		t.Errorf("expected commitment date cleared, got %v", got.CommitmentDate)
	}

	if err := persons.ApplyPatch(ctx, "nope", patch); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPersonList(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	persons := NewPersonRepository(database)
	points := NewPointRepository(database)
	ctx := context.Background()

	c := createCampaign(t, campaigns)
	point := &models.PickupPoint{Name: "Kiosco Centro", Address: "Av. Corrientes 1234", OpenHours: "9 a 18"}
	if err := points.Create(ctx, point); err != nil {
		t.Fatalf("failed to create point: %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seed := []*models.Person{
		{CampaignID: c.ID, FullName: "A", State: contact.StatePending, InRange: true, PickupPointID: sql.NullString{String: point.ID, Valid: true}},
		{CampaignID: c.ID, FullName: "B", State: contact.StateQueued, InRange: true},
		{CampaignID: c.ID, FullName: "C", State: contact.StatePending, InRange: false},
		{CampaignID: c.ID, FullName: "D", State: contact.StatePending, InRange: true, HasWhatsApp: sql.NullBool{Bool: false, Valid: true}},
		{CampaignID: c.ID, FullName: "E", State: contact.StateSent, InRange: true},
	}
	for i, p := range seed {
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := persons.Create(ctx, p); err != nil {
			t.Fatalf("failed to create person: %v", err)
		}
	}

	eligible, err := persons.List(ctx, models.PersonFilter{
		CampaignID:       c.ID,
		States:           []contact.State{contact.StatePending, contact.StateQueued},
		InRangeOnly:      true,
		ExcludeNoChannel: true,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible persons, got %d", len(eligible))
	}
	if eligible[0].FullName != "A" || eligible[1].FullName != "B" {
		t.Errorf("unexpected order: %s, %s", eligible[0].FullName, eligible[1].FullName)
	}
	if eligible[0].PointName.String != "Kiosco Centro" {
		t.Errorf("expected joined point name, got %q", eligible[0].PointName.String)
	}
	if eligible[1].PointName.Valid {
		t.Errorf("expected no point for B")
	}

	limited, err := persons.List(ctx, models.PersonFilter{CampaignID: c.ID, Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 person, got %d", len(limited))
	}
}

func TestPersonFindByPhones(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	persons := NewPersonRepository(database)
	ctx := context.Background()

	c := createCampaign(t, campaigns)
	older := &models.Person{CampaignID: c.ID, FullName: "Old", Phone: "+5491139099780", CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	newer := &models.Person{CampaignID: c.ID, FullName: "New", Phone: "+5491139099780", CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	for _, p := range []*models.Person{older, newer} {
		if err := persons.Create(ctx, p); err != nil {
			t.Fatalf("failed to create person: %v", err)
		}
	}

	got, err := persons.FindByPhones(ctx, []string{"+541139099780", "+5491139099780"})
	if err != nil {
		t.Fatalf("FindByPhones failed: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Errorf("expected newest match, got %+v", got)
	}

	got, err = persons.FindByPhones(ctx, []string{"+5491100000000"})
	if err != nil || got != nil {
		t.Errorf("expected no match, got %v, %v", got, err)
	}
}

func TestPersonCountersAndRange(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	persons := NewPersonRepository(database)
	ctx := context.Background()

	c := createCampaign(t, campaigns)
	seed := []*models.Person{
		{CampaignID: c.ID, State: contact.StatePending, DistanceMeters: sql.NullFloat64{Float64: 1500, Valid: true}},
		{CampaignID: c.ID, State: contact.StateSent, DistanceMeters: sql.NullFloat64{Float64: 2500, Valid: true}},
		{CampaignID: c.ID, State: contact.StateConfirmed, DistanceMeters: sql.NullFloat64{Float64: 2000, Valid: true}},
		{CampaignID: c.ID, State: contact.StateDispatchErr},
	}
	for _, p := range seed {
		if err := persons.Create(ctx, p); err != nil {
			t.Fatalf("failed to create person: %v", err)
		}
	}

	updated, err := persons.RecomputeRange(ctx, c.ID, 2000)
	if err != nil {
		t.Fatalf("RecomputeRange failed: %v", err)
	}
	if updated != 4 {
		t.Errorf("expected 4 updated rows, got %d", updated)
	}

	counters, err := persons.Counters(ctx, c.ID)
	if err != nil {
		t.Fatalf("Counters failed: %v", err)
	}
	want := models.CampaignCounters{Total: 4, Contacted: 2, Confirmed: 1, InRange: 2}
	if counters != want {
		t.Errorf("expected %+v, got %+v", want, counters)
	}

	byState, err := persons.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState failed: %v", err)
	}
	if byState[contact.StatePending] != 1 || byState[contact.StateDispatchErr] != 1 {
		t.Errorf("unexpected state counts: %v", byState)
	}
}

func TestCallRepository(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	persons := NewPersonRepository(database)
	calls := NewCallRepository(database)
	ctx := context.Background()

	c := createCampaign(t, campaigns)
	p := &models.Person{CampaignID: c.ID}
	if err := persons.Create(ctx, p); err != nil {
		t.Fatalf("failed to create person: %v", err)
	}

	call := &models.Call{PersonID: p.ID, ExternalID: "call_123", CalledAt: time.Now(), DurationSeconds: 42, Outcome: models.CallAnswered}
	if err := calls.Create(ctx, call); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exists, err := calls.ExistsByExternalID(ctx, "call_123")
	if err != nil || !exists {
		t.Errorf("expected call to exist, got %v, %v", exists, err)
	}

	dup := &models.Call{PersonID: p.ID, ExternalID: "call_123", CalledAt: time.Now()}
	if err := calls.Create(ctx, dup); !errors.Is(err, ErrDuplicateCall) {
		t.Errorf("expected ErrDuplicateCall, got %v", err)
	}

	list, err := calls.ListByPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByPerson failed: %v", err)
	}
	if len(list) != 1 || list[0].Outcome != models.CallAnswered {
		t.Errorf("unexpected calls: %+v", list)
	}
}
