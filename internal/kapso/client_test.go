package kapso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxzi/recupero/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWorkflow(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"exec-1","tracking_id":"trk-1","status":"running"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", PhoneNumberID: "pn-default"})
	exec, err := c.ExecuteWorkflow(context.Background(), "wf-1", ExecutionRequest{
		PhoneNumber: "+5491139099780",
		Variables:   map[string]string{"persona_id": "p-1"},
		Context:     ExecutionContext{Source: SourceInitial, CampaignID: "c-1", PersonID: "p-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/platform/v1/workflows/wf-1/executions", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "trk-1", exec.Tracking())

	wfe := gotBody["workflow_execution"]
	assert.Equal(t, "+5491139099780", wfe["phone_number"])
	assert.Equal(t, "pn-default", wfe["phone_number_id"])
	ctxBody := wfe["context"].(map[string]any)
	assert.Equal(t, SourceInitial, ctxBody["source"])
	assert.Equal(t, "c-1", ctxBody["campana_id"])
}

func TestExecuteWorkflowTrackingFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"exec-7"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, PhoneNumberID: "pn"})
	exec, err := c.ExecuteWorkflow(context.Background(), "wf", ExecutionRequest{PhoneNumber: "+1", PhoneNumberID: "override"})
	require.NoError(t, err)
	assert.Equal(t, "exec-7", exec.Tracking())
}

func TestExecuteWorkflowMissingID(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.ExecuteWorkflow(context.Background(), "", ExecutionRequest{})
	assert.True(t, errors.Is(err, ErrMissingWorkflow))
}

func TestExecuteWorkflowErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unreachable bool
		message     string
	}{
		{"meta undeliverable", http.StatusForbidden, `{"error":{"message":"Message undeliverable","code":131026}}`, true, "Message undeliverable"},
		{"nested code", http.StatusConflict, `{"error":"failed","details":{"errors":[{"code":1357045}]}}`, true, "failed"},
		{"bad request", http.StatusBadRequest, `{"error":"invalid phone_number"}`, true, "invalid phone_number"},
		{"not found", http.StatusNotFound, `not json`, true, "not json"},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"bad number"}`, true, "bad number"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid api key"}`, false, "invalid api key"},
		{"rate limited", http.StatusTooManyRequests, `{}`, false, ""},
		{"server error", http.StatusInternalServerError, `{"error":{"code":131026}}`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL})
			_, err := c.ExecuteWorkflow(context.Background(), "wf", ExecutionRequest{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.unreachable, IsUnreachable(err))
		})
	}
}

func TestExecuteWorkflowTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.ExecuteWorkflow(context.Background(), "wf", ExecutionRequest{})
	require.Error(t, err)
	assert.False(t, IsUnreachable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInitialVariables(t *testing.T) {
	p := &models.PersonWithPoint{
		Person: models.Person{
			ID:             "p-1",
			FullName:       "Perez Juan",
			CustomerNumber: "C-1",
			OrderNumbers:   models.StringList{"WO-1", "WO-2"},
			DeviceCount:    2,
			DistanceMeters: sql.NullFloat64{Float64: 1499.6, Valid: true},
		},
		PointName:    sql.NullString{String: "Kiosco Centro", Valid: true},
		PointAddress: sql.NullString{String: "Av. Corrientes 1234", Valid: true},
	}

	vars := InitialVariables(p)
	assert.Equal(t, "Perez Juan", vars["nombre_cliente"])
	assert.Equal(t, "C-1", vars["nros_cliente"])
	assert.Equal(t, "2", vars["cantidad_decos"])
	assert.Equal(t, "los decodificadores", vars["texto_deco"])
	assert.Equal(t, "1500 metros", vars["distancia"])
	assert.Equal(t, "Kiosco Centro", vars["punto_pickit"])
	assert.Equal(t, "N/A", vars["horarios_punto"])

	single := &models.PersonWithPoint{Person: models.Person{ID: "p-2", OrderNumber: "WO-9"}}
	vars = InitialVariables(single)
	assert.Equal(t, "el decodificador", vars["texto_deco"])
	assert.Equal(t, "1", vars["cantidad_decos"])
	assert.Equal(t, "N/A", vars["punto_pickit"])
	assert.Equal(t, "", vars["distancia"])

	reminder := ReminderVariables(single)
	assert.Equal(t, "WO-9", reminder["nros_wo"])
	assert.Equal(t, "p-2", reminder["persona_id"])
}

func TestInitialVariablesCustomerNumbers(t *testing.T) {
	p := &models.PersonWithPoint{
		Person: models.Person{
			ID:              "p-1",
			CustomerNumber:  "C-0",
			CustomerNumbers: models.StringList{"C-1", "C-2"},
			OrderNumbers:    models.StringList{"WO-9", "WO-8"},
		},
	}

	vars := InitialVariables(p)
	assert.Equal(t, "C-1, C-2", vars["nros_cliente"])
	assert.Equal(t, "C-0", vars["nro_cliente"])
	assert.Equal(t, "WO-9, WO-8", ReminderVariables(p)["nros_wo"])
}
