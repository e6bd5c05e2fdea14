package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foxzi/recupero/internal/contact"
)

// StringList is a list of strings stored as a JSON array column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Person is one deduplicated customer within a campaign
type Person struct {
	ID         string `db:"id" json:"id"`
	CampaignID string `db:"campana_id" json:"campana_id"`

	CustomerNumber  string     `db:"nro_cliente" json:"nro_cliente"`
	CustomerNumbers StringList `db:"nros_cliente" json:"nros_cliente"`
	OrderNumber     string     `db:"nro_wo" json:"nro_wo"`
	OrderNumbers    StringList `db:"nros_wo" json:"nros_wo"`
	DeviceCount     int        `db:"cantidad_decos" json:"cantidad_decos"`

	FullName   string `db:"apellido_nombre" json:"apellido_nombre"`
	DNI        string `db:"dni" json:"dni"`
	Phone      string `db:"telefono_principal" json:"telefono_principal"`
	Address    string `db:"direccion_completa" json:"direccion_completa"`
	PostalCode string `db:"cp" json:"cp"`
	City       string `db:"localidad" json:"localidad"`
	Province   string `db:"provincia" json:"provincia"`

	PickupPointID  sql.NullString  `db:"punto_pickit_id" json:"-"`
	DistanceMeters sql.NullFloat64 `db:"distancia_metros" json:"-"`
	InRange        bool            `db:"dentro_rango" json:"dentro_rango"`

	State contact.State `db:"estado_contacto" json:"estado_contacto"`

	HasWhatsApp sql.NullBool   `db:"tiene_whatsapp" json:"-"`
	SendError   sql.NullString `db:"error_envio_kapso" json:"-"`
	Attempts    int            `db:"intentos_envio" json:"intentos_envio"`

	SentAt               sql.NullTime   `db:"fecha_envio_whatsapp" json:"-"`
	RespondedAt          sql.NullTime   `db:"fecha_respuesta" json:"-"`
	ReplyText            sql.NullString `db:"respuesta_texto" json:"-"`
	CommitmentDate       sql.NullString `db:"fecha_compromiso" json:"-"` // YYYY-MM-DD
	CommitmentCapturedAt sql.NullTime   `db:"fecha_captura_compromiso" json:"-"`
	NegativeReason       sql.NullString `db:"motivo_negativo" json:"-"`
	HomePickup           bool           `db:"solicita_retiro_domicilio" json:"solicita_retiro_domicilio"`

	ReminderSent   bool         `db:"recordatorio_enviado" json:"recordatorio_enviado"`
	ReminderSentAt sql.NullTime `db:"fecha_envio_recordatorio" json:"-"`

	TrackingID sql.NullString `db:"kapso_tracking_id" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ContactView is the slice of the person the state machine reads
func (p *Person) ContactView() contact.Person {
	return contact.Person{
		State:           p.State,
		CommitmentDate:  p.CommitmentDate.String,
		ReminderWasSent: p.ReminderSent,
	}
}

// Orders returns the person's work order numbers, consolidated list first
func (p *Person) Orders() []string {
	if len(p.OrderNumbers) > 0 {
		return p.OrderNumbers
	}
	if p.OrderNumber != "" {
		return []string{p.OrderNumber}
	}
	return nil
}

// Customers returns the person's customer numbers, consolidated list first
func (p *Person) Customers() []string {
	if len(p.CustomerNumbers) > 0 {
		return p.CustomerNumbers
	}
	if p.CustomerNumber != "" {
		return []string{p.CustomerNumber}
	}
	return nil
}

// Devices returns the equipment count, at least one
func (p *Person) Devices() int {
	if p.DeviceCount < 1 {
		return 1
	}
	return p.DeviceCount
}

// PersonWithPoint is a person joined with its nearest pickup point
type PersonWithPoint struct {
	Person
	PointName      sql.NullString `db:"punto_nombre"`
	PointAddress   sql.NullString `db:"punto_direccion"`
	PointOpenHours sql.NullString `db:"punto_horario"`
}

// PersonFilter selects persons of one campaign
type PersonFilter struct {
	CampaignID       string
	States           []contact.State
	InRangeOnly      bool
	ExcludeNoChannel bool   // skip persons known to have no working WhatsApp
	CommitmentDate   string // exact YYYY-MM-DD
	ReminderPending  bool   // recordatorio_enviado = false
	CapturedAfter    *time.Time
	HasCommitment    bool
	Limit            int
}
