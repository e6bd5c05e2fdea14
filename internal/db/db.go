package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sqlx.DB
}

func New(path string) (*DB, error) {
	if path == ":memory:" {
		return NewMemory()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// NewMemory opens a private in-memory database, used by tests and dry runs.
// A single connection keeps every query on the same database.
func NewMemory() (*DB, error) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationCampaigns,
		migrationPickupPoints,
		migrationPersons,
		migrationPersonsIndexes,
		migrationCalls,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    nombre TEXT NOT NULL,
    estado TEXT NOT NULL DEFAULT 'activa',
    timezone TEXT NOT NULL DEFAULT '',
    contactar_domingo BOOLEAN NOT NULL DEFAULT 0,
    horario_sabado_inicio TEXT NOT NULL DEFAULT '',
    horario_sabado_fin TEXT NOT NULL DEFAULT '',
    horario_ventana_1_inicio TEXT NOT NULL DEFAULT '',
    horario_ventana_1_fin TEXT NOT NULL DEFAULT '',
    horario_ventana_2_inicio TEXT NOT NULL DEFAULT '',
    horario_ventana_2_fin TEXT NOT NULL DEFAULT '',
    horario_corte_diario TEXT NOT NULL DEFAULT '',
    fecha_fin_contactacion TEXT,
    kapso_workflow_id TEXT NOT NULL DEFAULT '',
    kapso_workflow_id_recordatorio TEXT NOT NULL DEFAULT '',
    kapso_phone_number_id TEXT NOT NULL DEFAULT '',
    distancia_max REAL NOT NULL DEFAULT 0,
    personas_total INTEGER NOT NULL DEFAULT 0,
    personas_contactadas INTEGER NOT NULL DEFAULT 0,
    personas_confirmadas INTEGER NOT NULL DEFAULT 0,
    personas_dentro_rango INTEGER NOT NULL DEFAULT 0,
    ultimo_corte_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationPickupPoints = `
CREATE TABLE IF NOT EXISTS puntos_pickit (
    id TEXT PRIMARY KEY,
    nombre TEXT NOT NULL,
    direccion TEXT NOT NULL DEFAULT '',
    horario TEXT NOT NULL DEFAULT ''
);
`

const migrationPersons = `
CREATE TABLE IF NOT EXISTS personas_contactar (
    id TEXT PRIMARY KEY,
    campana_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    nro_cliente TEXT NOT NULL DEFAULT '',
    nros_cliente JSON NOT NULL DEFAULT '[]',
    nro_wo TEXT NOT NULL DEFAULT '',
    nros_wo JSON NOT NULL DEFAULT '[]',
    cantidad_decos INTEGER NOT NULL DEFAULT 1,
    apellido_nombre TEXT NOT NULL DEFAULT '',
    dni TEXT NOT NULL DEFAULT '',
    telefono_principal TEXT NOT NULL DEFAULT '',
    direccion_completa TEXT NOT NULL DEFAULT '',
    cp TEXT NOT NULL DEFAULT '',
    localidad TEXT NOT NULL DEFAULT '',
    provincia TEXT NOT NULL DEFAULT '',
    punto_pickit_id TEXT REFERENCES puntos_pickit(id),
    distancia_metros REAL,
    dentro_rango BOOLEAN NOT NULL DEFAULT 0,
    estado_contacto TEXT NOT NULL DEFAULT 'pendiente',
    tiene_whatsapp BOOLEAN,
    error_envio_kapso TEXT,
    intentos_envio INTEGER NOT NULL DEFAULT 0,
    fecha_envio_whatsapp TIMESTAMP,
    fecha_respuesta TIMESTAMP,
    respuesta_texto TEXT,
    fecha_compromiso TEXT,
    fecha_captura_compromiso TIMESTAMP,
    motivo_negativo TEXT,
    solicita_retiro_domicilio BOOLEAN NOT NULL DEFAULT 0,
    recordatorio_enviado BOOLEAN NOT NULL DEFAULT 0,
    fecha_envio_recordatorio TIMESTAMP,
    kapso_tracking_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationPersonsIndexes = `
CREATE INDEX IF NOT EXISTS idx_personas_campana_estado ON personas_contactar(campana_id, estado_contacto);
CREATE INDEX IF NOT EXISTS idx_personas_telefono ON personas_contactar(telefono_principal);
CREATE INDEX IF NOT EXISTS idx_personas_compromiso ON personas_contactar(campana_id, fecha_compromiso);
`

const migrationCalls = `
CREATE TABLE IF NOT EXISTS llamadas (
    id TEXT PRIMARY KEY,
    persona_id TEXT NOT NULL REFERENCES personas_contactar(id) ON DELETE CASCADE,
    external_id TEXT UNIQUE NOT NULL,
    fecha_llamada TIMESTAMP NOT NULL,
    duracion_segundos INTEGER NOT NULL DEFAULT 0,
    transcript TEXT NOT NULL DEFAULT '',
    recording_url TEXT NOT NULL DEFAULT '',
    resultado TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
