package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coaching-console/internal/models"
)

// AttendanceRepository persists attendance records keyed by (student_id, date).
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns a student's records within the range, oldest first.
func (r *AttendanceRepository) List(ctx context.Context, studentID string, period models.DateRange) ([]models.AttendanceRecord, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if !period.From.IsZero() {
		args = append(args, models.Day(period.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !period.To.IsZero() {
		args = append(args, models.Day(period.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT id, student_id, date, status, created_at, updated_at
        FROM attendance_records WHERE %s ORDER BY date ASC`, strings.Join(where, " AND "))

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, translateError(err, "list attendance")
	}
	return records, nil
}

// ListByDate returns every record of one calendar day.
func (r *AttendanceRepository) ListByDate(ctx context.Context, day time.Time) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, status, created_at, updated_at
        FROM attendance_records WHERE date = $1 ORDER BY student_id ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, models.Day(day)); err != nil {
		return nil, translateError(err, "list attendance by date")
	}
	return records, nil
}

// Upsert writes records in one transaction, overwriting the status of existing
// (student_id, date) rows. The stored rows are returned in input order.
func (r *AttendanceRepository) Upsert(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translateError(err, "begin attendance upsert")
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendance_records (id, student_id, date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id, date)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, date, status, created_at, updated_at`
	now := time.Now().UTC()
	stored := make([]models.AttendanceRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		var row models.AttendanceRecord
		if err := tx.GetContext(ctx, &row, query, rec.ID, rec.StudentID, models.Day(rec.Date), rec.Status, now, now); err != nil {
			return nil, translateError(err, "upsert attendance")
		}
		stored = append(stored, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateError(err, "commit attendance upsert")
	}
	commit = true
	return stored, nil
}
