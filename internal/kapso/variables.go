package kapso

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/foxzi/recupero/internal/models"
)

const notAvailable = "N/A"

// InitialVariables builds the template variables of the first-contact workflow
func InitialVariables(p *models.PersonWithPoint) map[string]string {
	devices := p.Devices()
	deviceText := "el decodificador"
	if devices > 1 {
		deviceText = "los decodificadores"
	}

	distance := ""
	if p.DistanceMeters.Valid {
		distance = fmt.Sprintf("%d metros", int(math.Round(p.DistanceMeters.Float64)))
	}

	return map[string]string{
		"nombre_cliente":  p.FullName,
		"nro_cliente":     p.CustomerNumber,
		"nros_cliente":    strings.Join(p.Customers(), ", "),
		"cantidad_decos":  strconv.Itoa(devices),
		"texto_deco":      deviceText,
		"punto_pickit":    orNA(p.PointName.String),
		"direccion_punto": orNA(p.PointAddress.String),
		"distancia":       distance,
		"persona_id":      p.ID,
		"horarios_punto":  orNA(p.PointOpenHours.String),
	}
}

// ReminderVariables builds the template variables of the reminder workflow
func ReminderVariables(p *models.PersonWithPoint) map[string]string {
	return map[string]string{
		"nombre_cliente":  p.FullName,
		"punto_pickit":    orNA(p.PointName.String),
		"direccion_punto": orNA(p.PointAddress.String),
		"nros_wo":         strings.Join(p.Orders(), ", "),
		"persona_id":      p.ID,
	}
}

// FollowUpVariables carries the commitment captured on a voice call
func FollowUpVariables(p *models.PersonWithPoint, commitmentDate string) map[string]string {
	vars := ReminderVariables(p)
	vars["fecha_compromiso"] = commitmentDate
	vars["horarios_punto"] = orNA(p.PointOpenHours.String)
	return vars
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
