package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coaching-console/internal/models"
)

// TestRepository persists tests and their results.
type TestRepository struct {
	db *sqlx.DB
}

// NewTestRepository constructs a TestRepository.
func NewTestRepository(db *sqlx.DB) *TestRepository {
	return &TestRepository{db: db}
}

// ListTests returns tests, most recent first.
func (r *TestRepository) ListTests(ctx context.Context) ([]models.Test, error) {
	const query = `SELECT id, name, subject, class, test_date, total_marks, created_at
        FROM tests ORDER BY test_date DESC, created_at DESC`
	var tests []models.Test
	if err := r.db.SelectContext(ctx, &tests, query); err != nil {
		return nil, translateError(err, "list tests")
	}
	return tests, nil
}

// CreateTest inserts a test definition.
func (r *TestRepository) CreateTest(ctx context.Context, test *models.Test) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO tests (id, name, subject, class, test_date, total_marks, created_at)
        VALUES (:id, :name, :subject, :class, :test_date, :total_marks, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, test); err != nil {
		return translateError(err, "create test")
	}
	return nil
}

// ListResults returns the results of one test.
func (r *TestRepository) ListResults(ctx context.Context, testID string) ([]models.TestResult, error) {
	const query = `SELECT id, test_id, student_id, marks_obtained, percentage, created_at
        FROM test_results WHERE test_id = $1 ORDER BY percentage DESC, student_id ASC`
	var results []models.TestResult
	if err := r.db.SelectContext(ctx, &results, query, testID); err != nil {
		return nil, translateError(err, "list test results")
	}
	return results, nil
}

// ListResultsByStudent returns every result recorded for a student.
func (r *TestRepository) ListResultsByStudent(ctx context.Context, studentID string) ([]models.TestResult, error) {
	const query = `SELECT id, test_id, student_id, marks_obtained, percentage, created_at
        FROM test_results WHERE student_id = $1 ORDER BY created_at DESC`
	var results []models.TestResult
	if err := r.db.SelectContext(ctx, &results, query, studentID); err != nil {
		return nil, translateError(err, "list student results")
	}
	return results, nil
}

// UpsertResult stores one student's result for a test, replacing an earlier one.
func (r *TestRepository) UpsertResult(ctx context.Context, result *models.TestResult) (*models.TestResult, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO test_results (id, test_id, student_id, marks_obtained, percentage, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (test_id, student_id)
DO UPDATE SET marks_obtained = EXCLUDED.marks_obtained, percentage = EXCLUDED.percentage
RETURNING id, test_id, student_id, marks_obtained, percentage, created_at`
	var stored models.TestResult
	if err := r.db.GetContext(ctx, &stored, query, result.ID, result.TestID, result.StudentID, result.MarksObtained, result.Percentage, result.CreatedAt); err != nil {
		return nil, translateError(err, "upsert test result")
	}
	return &stored, nil
}
