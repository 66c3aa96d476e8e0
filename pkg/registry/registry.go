// Package registry is the durable de-duplication store for acquired
// cases. One row per case number, inserted once on a successful
// acquisition; only the processing status mutates afterwards.
//
// The registry never surfaces storage errors to callers: lookups degrade
// to "unknown" and writes report plain failure, so a broken database can
// at worst cause a redundant acquisition, never a false skip.
package registry

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Processing statuses recorded for a case. UpdateStatus accepts any
// non-empty string; these are the values the application itself uses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// CaseRecord is one case's acquisition history.
type CaseRecord struct {
	ID               int64
	CaseNumber       string
	FileName         string
	AcquiredAt       time.Time
	ProcessingStatus string
	ExtractedText    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Registry wraps the SQLite store. A single instance is shared by all
// acquisition runs in a process; every operation is independently atomic.
type Registry struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the registry database at path.
func Open(path string, log *slog.Logger) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db, log: log.With("component", "registry")}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS cases (
		  id                INTEGER PRIMARY KEY AUTOINCREMENT,
		  case_number       TEXT NOT NULL UNIQUE,
		  file_name         TEXT NOT NULL,
		  acquired_at       INTEGER NOT NULL,
		  processing_status TEXT NOT NULL DEFAULT 'pending',
		  extracted_text    TEXT,
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cases_acquired_at
		ON cases(acquired_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", 1)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// Exists reports whether a case number is already registered. Storage
// faults degrade to false so an unreadable registry triggers a redundant
// acquisition instead of a false skip.
func (r *Registry) Exists(caseNumber string) bool {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM cases WHERE case_number = ?",
		strings.TrimSpace(caseNumber),
	).Scan(&count)
	if err != nil {
		r.log.Error("existence check failed, treating case as unknown", "case", caseNumber, "error", err)
		return false
	}
	return count > 0
}

// Get returns the record for a case number, or false when absent or
// unreadable.
func (r *Registry) Get(caseNumber string) (*CaseRecord, bool) {
	row := r.db.QueryRow(`
		SELECT id, case_number, file_name, acquired_at, processing_status,
			extracted_text, created_at, updated_at
		FROM cases WHERE case_number = ?`,
		strings.TrimSpace(caseNumber),
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		r.log.Error("record lookup failed", "case", caseNumber, "error", err)
		return nil, false
	}
	return rec, true
}

// Save inserts a new case record, stamping the acquisition time. It
// returns false without touching the store when the case number or file
// name is empty, and false when the case number already exists; existing
// rows are never overwritten. The uniqueness check is the INSERT itself,
// so two concurrent saves for one case admit exactly one winner.
func (r *Registry) Save(caseNumber, fileName, status string) bool {
	caseNumber = strings.TrimSpace(caseNumber)
	fileName = strings.TrimSpace(fileName)

	if caseNumber == "" {
		r.log.Error("case number cannot be empty")
		return false
	}
	if fileName == "" {
		r.log.Error("file name cannot be empty", "case", caseNumber)
		return false
	}
	if status == "" {
		status = StatusCompleted
	}

	now := time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO cases (case_number, file_name, acquired_at, processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		caseNumber, fileName, now, status, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			r.log.Warn("case already registered, skipping save", "case", caseNumber)
		} else {
			r.log.Error("save failed", "case", caseNumber, "error", err)
		}
		return false
	}

	r.log.Info("case registered", "case", caseNumber, "file", fileName, "status", status)
	return true
}

// UpdateStatus sets the processing status for an existing case and
// refreshes its updated_at stamp. Returns false when the status is
// empty or no row matches.
func (r *Registry) UpdateStatus(caseNumber, status string) bool {
	if strings.TrimSpace(status) == "" {
		r.log.Error("status cannot be empty", "case", caseNumber)
		return false
	}

	res, err := r.db.Exec(`
		UPDATE cases SET processing_status = ?, updated_at = ?
		WHERE case_number = ?`,
		status, time.Now().Unix(), strings.TrimSpace(caseNumber),
	)
	if err != nil {
		r.log.Error("status update failed", "case", caseNumber, "error", err)
		return false
	}

	n, err := res.RowsAffected()
	if err != nil {
		r.log.Error("status update failed", "case", caseNumber, "error", err)
		return false
	}
	if n == 0 {
		r.log.Warn("case not found for status update", "case", caseNumber)
		return false
	}

	r.log.Info("status updated", "case", caseNumber, "status", status)
	return true
}

// ListAll returns every registered case, most recently acquired first.
// Returns an empty slice on storage faults.
func (r *Registry) ListAll() []CaseRecord {
	rows, err := r.db.Query(`
		SELECT id, case_number, file_name, acquired_at, processing_status,
			extracted_text, created_at, updated_at
		FROM cases
		ORDER BY acquired_at DESC, id DESC`,
	)
	if err != nil {
		r.log.Error("listing cases failed", "error", err)
		return []CaseRecord{}
	}
	defer rows.Close()

	records := []CaseRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			r.log.Error("scanning case row failed", "error", err)
			return []CaseRecord{}
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		r.log.Error("listing cases failed", "error", err)
		return []CaseRecord{}
	}
	return records
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*CaseRecord, error) {
	var (
		rec       CaseRecord
		acquired  int64
		created   int64
		updated   int64
		extracted sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.CaseNumber, &rec.FileName, &acquired,
		&rec.ProcessingStatus, &extracted, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	rec.AcquiredAt = time.Unix(acquired, 0)
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	if extracted.Valid {
		rec.ExtractedText = extracted.String
	}
	return &rec, nil
}

// isUniqueConstraintError checks for a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
