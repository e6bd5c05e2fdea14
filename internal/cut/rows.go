// Package cut builds the daily cut artifact for the logistics partner: one
// spreadsheet row per work order of every person who committed to a return
// date since the previous cut.
package cut

import (
	"strings"

	"github.com/foxzi/recupero/internal/contact"
	"github.com/foxzi/recupero/internal/models"
)

const notAvailable = "N/A"

// SheetName is the worksheet the partner expects
const SheetName = "Corte Diario Pickit"

// Headers are the artifact columns, in order
var Headers = []string{
	"Nro Cliente",
	"Nro WO",
	"Apellido y Nombre",
	"DNI",
	"Teléfono",
	"Dirección",
	"CP",
	"Localidad",
	"Provincia",
	"Cantidad Decodificadores",
	"Fecha Compromiso",
	"Punto Pickit",
	"Dirección Punto Pickit",
}

// Row is one line of the daily cut
type Row struct {
	CustomerNumbers string
	OrderNumber     string
	FullName        string
	DNI             string
	Phone           string
	Address         string
	PostalCode      string
	City            string
	Province        string
	Devices         int
	CommitmentDate  string // DD/MM/YYYY
	PointName       string
	PointAddress    string
}

// values returns the row in column order
func (r Row) values() []any {
	return []any{
		r.CustomerNumbers, r.OrderNumber, r.FullName, r.DNI, r.Phone,
		r.Address, r.PostalCode, r.City, r.Province, r.Devices,
		r.CommitmentDate, r.PointName, r.PointAddress,
	}
}

// BuildRows expands persons into cut rows. Only confirmed persons with a
// commitment date produce rows; a person with several work orders produces
// one row per order and a person with none produces a single N/A row.
func BuildRows(persons []models.PersonWithPoint) []Row {
	var rows []Row
	for i := range persons {
		p := &persons[i]
		if p.State != contact.StateConfirmed || !p.CommitmentDate.Valid || p.CommitmentDate.String == "" {
			continue
		}

		base := Row{
			CustomerNumbers: strings.Join(p.Customers(), ", "),
			FullName:        p.FullName,
			DNI:             p.DNI,
			Phone:           p.Phone,
			Address:         p.Address,
			PostalCode:      p.PostalCode,
			City:            p.City,
			Province:        p.Province,
			Devices:         p.Devices(),
			CommitmentDate:  displayDate(p.CommitmentDate.String),
			PointName:       p.PointName.String,
			PointAddress:    p.PointAddress.String,
		}

		orders := p.Orders()
		if len(orders) == 0 {
			if base.CustomerNumbers == "" {
				base.CustomerNumbers = notAvailable
			}
			base.OrderNumber = notAvailable
			rows = append(rows, base)
			continue
		}
		for _, wo := range orders {
			row := base
			row.OrderNumber = wo
			rows = append(rows, row)
		}
	}
	return rows
}

// displayDate turns YYYY-MM-DD into DD/MM/YYYY, leaving anything else as is
func displayDate(iso string) string {
	parts := strings.Split(iso, "-")
	if len(parts) != 3 || len(parts[0]) != 4 {
		return iso
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}
