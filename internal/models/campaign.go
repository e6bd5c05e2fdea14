package models

import (
	"database/sql"
	"time"

	"github.com/foxzi/recupero/internal/window"
)

// CampaignStatus is the lifecycle state of a campaign. Only the UI changes it.
type CampaignStatus string

const (
	CampaignActive   CampaignStatus = "activa"
	CampaignPaused   CampaignStatus = "pausada"
	CampaignFinished CampaignStatus = "finalizada"
)

// Campaign represents one recovery effort
type Campaign struct {
	ID       string         `db:"id" json:"id"`
	Name     string         `db:"nombre" json:"nombre"`
	Status   CampaignStatus `db:"estado" json:"estado"`
	Timezone string         `db:"timezone" json:"timezone"`

	ContactSunday bool   `db:"contactar_domingo" json:"contactar_domingo"`
	SaturdayStart string `db:"horario_sabado_inicio" json:"horario_sabado_inicio"`
	SaturdayEnd   string `db:"horario_sabado_fin" json:"horario_sabado_fin"`
	Window1Start  string `db:"horario_ventana_1_inicio" json:"horario_ventana_1_inicio"`
	Window1End    string `db:"horario_ventana_1_fin" json:"horario_ventana_1_fin"`
	Window2Start  string `db:"horario_ventana_2_inicio" json:"horario_ventana_2_inicio"`
	Window2End    string `db:"horario_ventana_2_fin" json:"horario_ventana_2_fin"`
	DailyCutTime  string `db:"horario_corte_diario" json:"horario_corte_diario"`

	ContactEndDate sql.NullString `db:"fecha_fin_contactacion" json:"-"` // YYYY-MM-DD

	WorkflowID         string `db:"kapso_workflow_id" json:"kapso_workflow_id"`
	ReminderWorkflowID string `db:"kapso_workflow_id_recordatorio" json:"kapso_workflow_id_recordatorio"`
	PhoneNumberID      string `db:"kapso_phone_number_id" json:"kapso_phone_number_id"`

	MaxDistance float64 `db:"distancia_max" json:"distancia_max"`

	TotalPersons     int `db:"personas_total" json:"personas_total"`
	ContactedPersons int `db:"personas_contactadas" json:"personas_contactadas"`
	ConfirmedPersons int `db:"personas_confirmadas" json:"personas_confirmadas"`
	InRangePersons   int `db:"personas_dentro_rango" json:"personas_dentro_rango"`

	LastCutAt sql.NullTime `db:"ultimo_corte_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Schedule returns the campaign's contact windows for the evaluator
func (c *Campaign) Schedule(fallback *time.Location) window.Schedule {
	return window.Schedule{
		Location:      c.Location(fallback),
		ContactSunday: c.ContactSunday,
		Saturday:      window.Interval{Start: c.SaturdayStart, End: c.SaturdayEnd},
		Window1:       window.Interval{Start: c.Window1Start, End: c.Window1End},
		Window2:       window.Interval{Start: c.Window2Start, End: c.Window2End},
	}
}

// Location returns the campaign timezone, or fallback when unset or unknown
func (c *Campaign) Location(fallback *time.Location) *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// CampaignCounters are derived aggregates, recomputed on demand
type CampaignCounters struct {
	Total     int `json:"personas_total"`
	Contacted int `json:"personas_contactadas"`
	Confirmed int `json:"personas_confirmadas"`
	InRange   int `json:"personas_dentro_rango"`
}

// PickupPoint is a logistics partner location
type PickupPoint struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"nombre" json:"nombre"`
	Address   string `db:"direccion" json:"direccion"`
	OpenHours string `db:"horario" json:"horario"`
}
