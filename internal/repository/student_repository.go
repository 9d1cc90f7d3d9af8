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

const studentColumns = `id, name, class, father_name, mother_name, contact_number, alternate_contact, address,
        total_fees, paid_fees, fee_status, attendance_percentage, join_date, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns every student ordered by name.
func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students ORDER BY name ASC, id ASC"
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, translateError(err, "list students")
	}
	return students, nil
}

// Get fetches a student by ID.
func (r *StudentRepository) Get(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, translateError(err, "get student")
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	if student.JoinDate.IsZero() {
		student.JoinDate = models.Day(now)
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, class, father_name, mother_name, contact_number, alternate_contact, address,
        total_fees, paid_fees, fee_status, attendance_percentage, join_date, created_at, updated_at)
        VALUES (:id, :name, :class, :father_name, :mother_name, :contact_number, :alternate_contact, :address,
        :total_fees, :paid_fees, :fee_status, :attendance_percentage, :join_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return translateError(err, "create student")
	}
	return nil
}

// Update applies the non-nil fields of patch and returns the stored record.
func (r *StudentRepository) Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error) {
	sets := make([]string, 0, 11)
	args := make([]interface{}, 0, 12)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Class != nil {
		add("class", *patch.Class)
	}
	if patch.FatherName != nil {
		add("father_name", *patch.FatherName)
	}
	if patch.MotherName != nil {
		add("mother_name", *patch.MotherName)
	}
	if patch.ContactNumber != nil {
		add("contact_number", *patch.ContactNumber)
	}
	if patch.AlternateContact != nil {
		add("alternate_contact", *patch.AlternateContact)
	}
	if patch.Address != nil {
		add("address", *patch.Address)
	}
	if patch.TotalFees != nil {
		add("total_fees", *patch.TotalFees)
	}
	if patch.PaidFees != nil {
		add("paid_fees", *patch.PaidFees)
	}
	if patch.FeeStatus != nil {
		add("fee_status", *patch.FeeStatus)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d RETURNING %s", strings.Join(sets, ", "), len(args), studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, args...); err != nil {
		return nil, translateError(err, "update student")
	}
	return &student, nil
}

// Delete removes a student record.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return translateError(err, "delete student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("delete student")
	}
	return nil
}

// UpdateAttendancePercentage persists the derived attendance percentage of a student.
func (r *StudentRepository) UpdateAttendancePercentage(ctx context.Context, id string, percentage int) error {
	res, err := r.db.ExecContext(ctx, "UPDATE students SET attendance_percentage = $1, updated_at = $2 WHERE id = $3", percentage, time.Now().UTC(), id)
	if err != nil {
		return translateError(err, "update attendance percentage")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("update attendance percentage")
	}
	return nil
}
