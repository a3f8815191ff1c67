package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/printwatch-io/printwatch/internal/database"
	"github.com/printwatch-io/printwatch/internal/joblog"
	"github.com/printwatch-io/printwatch/internal/models"
	"github.com/printwatch-io/printwatch/internal/registry"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func testDevice() registry.Device {
	return registry.Device{EquipmentID: "prn-hq-01-mfp", ModelName: "ECOSYS M5521cdn", SerialNumber: "AAA111"}
}

func makeRecord(jobNumber int) joblog.JobRecord {
	start := time.Date(2026, time.February, 3, 9, 0, 0, 0, time.UTC)
	return joblog.JobRecord{
		JobNumber:       jobNumber,
		JobKind:         "PRINT",
		JobName:         fmt.Sprintf("document-%d.pdf", jobNumber),
		JobResult:       "OK",
		JobResultDetail: 0,
		StartTime:       start,
		EndTime:         start.Add(30 * time.Second),
		UserName:        "msmith",
		Pages:           4,
		PrintColorMode:  "FULL_COLOR",
		CompleteCopies:  1,
		Copies:          1,
		CompletePages:   4,
	}
}

func TestPersistCreatesDeviceAndJobs(t *testing.T) {
	db := openTestDB(t)
	ingestedAt := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)
	store := NewIngestStore(db, WithIngestStoreClock(func() time.Time { return ingestedAt }))
	ctx := context.Background()

	records := []joblog.JobRecord{makeRecord(101), makeRecord(102), makeRecord(103)}
	res, err := store.Persist(ctx, testDevice(), records)
	require.NoError(t, err)
	require.Equal(t, IngestResult{Created: 3}, res)

	var printerCount int
	require.NoError(t, db.Get(&printerCount, `SELECT COUNT(*) FROM printers`))
	require.Equal(t, 1, printerCount)

	jobCount, err := store.CountJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, jobCount)

	printer, err := store.FindPrinter(ctx, "prn-hq-01-mfp")
	require.NoError(t, err)
	require.NotNil(t, printer)
	require.Equal(t, "ECOSYS M5521cdn", printer.ModelName)
	require.Equal(t, "AAA111", printer.SerialNumber)

	var job models.Job
	require.NoError(t, db.Get(&job, db.Rebind(`SELECT * FROM jobs WHERE job_number = ?`), 101))
	require.Equal(t, "document-101.pdf", job.JobName)
	require.Equal(t, printer.ID, job.PrinterID)
	require.Equal(t, 4, job.Pages)
	require.Equal(t, "FULL_COLOR", job.PrintColorMode)
	require.True(t, job.CreatedAt.Equal(ingestedAt))
}

func TestPersistIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := NewIngestStore(db)
	ctx := context.Background()

	records := []joblog.JobRecord{makeRecord(201), makeRecord(202)}
	first, err := store.Persist(ctx, testDevice(), records)
	require.NoError(t, err)
	require.Equal(t, IngestResult{Created: 2}, first)

	second, err := store.Persist(ctx, testDevice(), records)
	require.NoError(t, err)
	require.Equal(t, IngestResult{Duplicates: 2}, second)

	var printerCount int
	require.NoError(t, db.Get(&printerCount, `SELECT COUNT(*) FROM printers`))
	require.Equal(t, 1, printerCount)

	jobCount, err := store.CountJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, jobCount)
}

func TestPersistMixedNewAndKnownRecords(t *testing.T) {
	db := openTestDB(t)
	store := NewIngestStore(db)
	ctx := context.Background()

	_, err := store.Persist(ctx, testDevice(), []joblog.JobRecord{makeRecord(301)})
	require.NoError(t, err)

	res, err := store.Persist(ctx, testDevice(), []joblog.JobRecord{makeRecord(301), makeRecord(302)})
	require.NoError(t, err)
	require.Equal(t, IngestResult{Created: 1, Duplicates: 1}, res)
}

func TestPersistEmptyPayloadStillCreatesDevice(t *testing.T) {
	db := openTestDB(t)
	store := NewIngestStore(db)
	ctx := context.Background()

	res, err := store.Persist(ctx, testDevice(), nil)
	require.NoError(t, err)
	require.Equal(t, IngestResult{}, res)

	printer, err := store.FindPrinter(ctx, "prn-hq-01-mfp")
	require.NoError(t, err)
	require.NotNil(t, printer)
}

func TestPersistRejectsDeviceWithoutEquipmentID(t *testing.T) {
	db := openTestDB(t)
	store := NewIngestStore(db)

	_, err := store.Persist(context.Background(), registry.Device{}, []joblog.JobRecord{makeRecord(1)})
	require.ErrorIs(t, err, ErrPersistence)
}

func TestFindPrinterUnknownReturnsNil(t *testing.T) {
	db := openTestDB(t)
	store := NewIngestStore(db)

	printer, err := store.FindPrinter(context.Background(), "prn-nope")
	require.NoError(t, err)
	require.Nil(t, printer)
}
