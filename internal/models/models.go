// Package models defines the persisted entities shared across the service.
package models

import "time"

// Printer is one known device that emails usage reports. Rows are
// created lazily the first time a report is attributed to the device
// and are never deleted by the ingestion path.
type Printer struct {
	ID           int    `db:"id" json:"id"`
	EquipmentID  string `db:"equipment_id" json:"equipment_id"`
	ModelName    string `db:"model_name" json:"model_name"`
	SerialNumber string `db:"serial_number" json:"serial_number"`
}

// Job is one completed operation reported by a device. JobNumber is
// globally unique and acts as the idempotency key for re-ingestion.
type Job struct {
	ID                             int       `db:"id" json:"id"`
	JobNumber                      int       `db:"job_number" json:"job_number"`
	JobKind                        string    `db:"job_kind" json:"job_kind"`
	JobName                        string    `db:"job_name" json:"job_name"`
	JobResult                      string    `db:"job_result" json:"job_result"`
	JobResultDetail                int       `db:"job_result_detail" json:"job_result_detail"`
	StartTime                      time.Time `db:"start_time" json:"start_time"`
	EndTime                        time.Time `db:"end_time" json:"end_time"`
	AccountName                    string    `db:"account_name" json:"account_name"`
	AccountCode                    string    `db:"account_code" json:"account_code"`
	Pages                          int       `db:"pages" json:"pages"`
	UserName                       string    `db:"user_name" json:"user_name"`
	LoginID                        string    `db:"login_id" json:"login_id"`
	OperationExecutionerLoginID    string    `db:"operation_executioner_login_id" json:"operation_executioner_login_id"`
	OperationExecutionerDomainName string    `db:"operation_executioner_domain_name" json:"operation_executioner_domain_name"`
	PrintColorMode                 string    `db:"print_color_mode" json:"print_color_mode"`
	CompleteCopies                 int       `db:"complete_copies" json:"complete_copies"`
	Copies                         int       `db:"copies" json:"copies"`
	CompletePages                  int       `db:"complete_pages" json:"complete_pages"`
	PrinterID                      int       `db:"printer_id" json:"printer_id"`
	CreatedAt                      time.Time `db:"created_at" json:"created_at"`
}
