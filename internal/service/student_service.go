package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/aggregate"
	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context) ([]models.Student, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error)
	Delete(ctx context.Context, id string) error
}

// StudentsKey caches the full student roster.
const StudentsKey = "students"

// StudentKey caches a single student.
func StudentKey(id string) string { return query.Key("student", id) }

// StudentService exposes the student roster and its derived classes.
type StudentService struct {
	core      Core
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(core Core, repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = newValidator()
	}
	return &StudentService{core: core, repo: repo, validator: validate, logger: logger}
}

// List returns the cached roster, fetching it when missing.
func (s *StudentService) List(ctx context.Context) (View[[]models.Student], error) {
	return load(ctx, s.core, StudentsKey, s.repo.List)
}

// Watch delivers every change of the roster to fn until the returned func is called.
func (s *StudentService) Watch(fn func(View[[]models.Student])) (View[[]models.Student], func()) {
	return watch(s.core, StudentsKey, s.repo.List, fn)
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (View[models.Student], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View[models.Student]{}, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	return load(ctx, s.core, StudentKey(id), func(ctx context.Context) (models.Student, error) {
		student, err := s.repo.Get(ctx, id)
		if err != nil {
			return models.Student{}, err
		}
		return *student, nil
	})
}

// Classes derives the class list from the roster.
func (s *StudentService) Classes(ctx context.Context) (View[[]models.Class], error) {
	roster, err := s.List(ctx)
	if err != nil {
		return View[[]models.Class]{}, err
	}
	return derive(roster, aggregate.GroupByClass), nil
}

// Create registers a student. The roster is refetched once the write is confirmed.
func (s *StudentService) Create(ctx context.Context, input models.StudentInput) (*models.Student, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalid(err, "invalid student payload")
	}
	status := input.FeeStatus
	if status == "" {
		status = aggregate.DeriveFeeStatus(input.TotalFees, input.PaidFees)
	}
	student := &models.Student{
		Name:             strings.TrimSpace(input.Name),
		Class:            models.ClassLabel(strings.TrimSpace(string(input.Class))),
		FatherName:       input.FatherName,
		MotherName:       input.MotherName,
		ContactNumber:    input.ContactNumber,
		AlternateContact: input.AlternateContact,
		Address:          input.Address,
		TotalFees:        input.TotalFees,
		PaidFees:         input.PaidFees,
		FeeStatus:        status,
		JoinDate:         input.JoinDate,
	}
	created, err := mutation.Run(ctx, s.core.Pipeline, mutation.OpCreateStudent, nil,
		func(ctx context.Context) (*models.Student, error) {
			if err := s.repo.Create(ctx, student); err != nil {
				return nil, err
			}
			return student, nil
		})
	if err != nil {
		return nil, err
	}
	s.logger.Info("student created", zap.String("student_id", created.ID), zap.String("class", created.Class.Key()))
	return created, nil
}

// Update applies patch to a student.
func (s *StudentService) Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, invalid(err, "invalid student payload")
	}
	return mutation.Run(ctx, s.core.Pipeline, mutation.OpUpdateStudent, map[string]string{"id": id},
		func(ctx context.Context) (*models.Student, error) {
			return s.repo.Update(ctx, id, patch)
		})
}

// Delete removes a student together with the cached views that reference it.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	start := time.Now()
	_, err := mutation.Run(ctx, s.core.Pipeline, mutation.OpDeleteStudent, map[string]string{"id": id},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.Delete(ctx, id)
		})
	if err != nil {
		return err
	}
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Duration("duration", time.Since(start)))
	return nil
}
