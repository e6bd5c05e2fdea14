package dispatch

import (
	"fmt"
	"math"
	"time"
)

// Trigger says who started a run
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerScheduled
)

func (t Trigger) String() string {
	if t == TriggerScheduled {
		return "cron"
	}
	return "manual"
}

// Result is the outcome of a dispatch run
type Result string

const (
	ResultEndDatePassed Result = "fecha_fin_contactacion_pasada"
	ResultSameDay       Result = "mismo_dia_creacion"
	ResultQueued        Result = "encolado"
	ResultNoPersons     Result = "sin_personas"
	ResultCompleted     Result = "completado"
)

const (
	modeDryRun     = "DRY_RUN"
	modeProduction = "PRODUCCION"
)

// PersonError is one failed execution in a report
type PersonError struct {
	PersonID string `json:"persona_id"`
	Error    string `json:"error"`
}

// Summary aggregates per-person outcomes
type Summary struct {
	Total       int    `json:"total_procesadas"`
	Succeeded   int    `json:"exitosas"`
	Failed      int    `json:"con_error"`
	SuccessRate string `json:"tasa_exito"`
}

// Report describes one dispatch run
type Report struct {
	Timestamp  time.Time     `json:"timestamp"`
	CampaignID string        `json:"campana_id"`
	Mode       string        `json:"modo"`
	Trigger    string        `json:"tipo_ejecucion"`
	Result     Result        `json:"resultado"`
	Message    string        `json:"mensaje"`
	Queued     int           `json:"encolados,omitempty"`
	Summary    Summary       `json:"resumen"`
	Errors     []PersonError `json:"errores"`
}

func newReport(campaignID string, trigger Trigger, dryRun bool, now time.Time) *Report {
	mode := modeProduction
	if dryRun {
		mode = modeDryRun
	}
	return &Report{
		Timestamp:  now,
		CampaignID: campaignID,
		Mode:       mode,
		Trigger:    trigger.String(),
		Summary:    Summary{SuccessRate: "0%"},
		Errors:     []PersonError{},
	}
}

// tally fills the summary from per-person outcomes
func (r *Report) tally(outcomes []outcome, maxErrors int) {
	r.Summary, r.Errors = summarize(outcomes, maxErrors)
}

// summarize counts outcomes, keeping at most maxErrors errors
func summarize(outcomes []outcome, maxErrors int) (Summary, []PersonError) {
	s := Summary{Total: len(outcomes)}
	errs := []PersonError{}
	for _, o := range outcomes {
		if o.err == nil {
			s.Succeeded++
			continue
		}
		s.Failed++
		if maxErrors <= 0 || len(errs) < maxErrors {
			errs = append(errs, PersonError{PersonID: o.personID, Error: o.err.Error()})
		}
	}
	s.SuccessRate = successRate(s.Succeeded, s.Total)
	return s, errs
}

func successRate(ok, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Round(float64(ok)*100/float64(total))))
}

// outcome is the result of one workflow execution
type outcome struct {
	personID string
	err      error
}
