package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS printers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	equipment_id VARCHAR(50) NOT NULL UNIQUE,
	model_name VARCHAR(100) NOT NULL,
	serial_number VARCHAR(50) NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_number INTEGER NOT NULL UNIQUE,
	job_kind VARCHAR(20) NOT NULL,
	job_name VARCHAR(200) NOT NULL,
	job_result VARCHAR(10) NOT NULL,
	job_result_detail INTEGER NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	account_name VARCHAR(100) NOT NULL DEFAULT '',
	account_code VARCHAR(100) NOT NULL DEFAULT '',
	pages INTEGER NOT NULL,
	user_name VARCHAR(100) NOT NULL DEFAULT '',
	login_id VARCHAR(100) NOT NULL DEFAULT '',
	operation_executioner_login_id VARCHAR(100) NOT NULL DEFAULT '',
	operation_executioner_domain_name VARCHAR(100) NOT NULL DEFAULT '',
	print_color_mode VARCHAR(20) NOT NULL DEFAULT '',
	complete_copies INTEGER NOT NULL DEFAULT 0,
	copies INTEGER NOT NULL DEFAULT 0,
	complete_pages INTEGER NOT NULL DEFAULT 0,
	printer_id INTEGER NOT NULL REFERENCES printers(id),
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_printer_id ON jobs(printer_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS printers (
	id SERIAL PRIMARY KEY,
	equipment_id VARCHAR(50) NOT NULL UNIQUE,
	model_name VARCHAR(100) NOT NULL,
	serial_number VARCHAR(50) NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id SERIAL PRIMARY KEY,
	job_number INTEGER NOT NULL UNIQUE,
	job_kind VARCHAR(20) NOT NULL,
	job_name VARCHAR(200) NOT NULL,
	job_result VARCHAR(10) NOT NULL,
	job_result_detail INTEGER NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	account_name VARCHAR(100) NOT NULL DEFAULT '',
	account_code VARCHAR(100) NOT NULL DEFAULT '',
	pages INTEGER NOT NULL,
	user_name VARCHAR(100) NOT NULL DEFAULT '',
	login_id VARCHAR(100) NOT NULL DEFAULT '',
	operation_executioner_login_id VARCHAR(100) NOT NULL DEFAULT '',
	operation_executioner_domain_name VARCHAR(100) NOT NULL DEFAULT '',
	print_color_mode VARCHAR(20) NOT NULL DEFAULT '',
	complete_copies INTEGER NOT NULL DEFAULT 0,
	copies INTEGER NOT NULL DEFAULT 0,
	complete_pages INTEGER NOT NULL DEFAULT 0,
	printer_id INTEGER NOT NULL REFERENCES printers(id),
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_printer_id ON jobs(printer_id);
`

// Migrate applies the idempotent schema for the active driver. The
// uniqueness constraints on equipment_id and job_number are what the
// ingestion path's idempotence relies on.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	schema := sqliteSchema
	if db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
