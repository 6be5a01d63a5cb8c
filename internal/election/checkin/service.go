// Package checkin manages the student roster for the check-in station.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/platform/id"
)

// Service marks students present as they arrive to vote.
type Service struct {
	students    storage.StudentStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds a check-in service.
func NewService(students storage.StudentStore) *Service {
	return &Service{students: students, clock: time.Now, idGenerator: id.NewID}
}

func (s *Service) ready() error {
	if s == nil || s.students == nil {
		return fmt.Errorf("checkin storage is not configured")
	}
	return nil
}

// Add puts a student on the roster.
func (s *Service) Add(ctx context.Context, studentNumber, name, grade string) (domain.Student, error) {
	if err := s.ready(); err != nil {
		return domain.Student{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Student{}, fmt.Errorf("student name is required")
	}

	studentID, err := s.idGenerator()
	if err != nil {
		return domain.Student{}, fmt.Errorf("create student id: %w", err)
	}
	student := domain.Student{
		ID:        studentID,
		StudentID: strings.TrimSpace(studentNumber),
		Name:      name,
		Grade:     strings.TrimSpace(grade),
	}
	if err := s.students.PutStudent(ctx, student); err != nil {
		return domain.Student{}, fmt.Errorf("store student: %w", err)
	}
	return student, nil
}

// Remove takes a student off the roster.
func (s *Service) Remove(ctx context.Context, studentID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return fmt.Errorf("student id is required")
	}
	if err := s.students.DeleteStudent(ctx, studentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "student not found")
		}
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// List returns the roster sorted by name.
func (s *Service) List(ctx context.Context) ([]domain.Student, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

// Search filters the roster by a case-insensitive match on name or student
// number.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Student, error) {
	students, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return students, nil
	}
	matched := students[:0]
	for _, student := range students {
		if strings.Contains(strings.ToLower(student.Name), query) ||
			strings.Contains(strings.ToLower(student.StudentID), query) {
			matched = append(matched, student)
		}
	}
	return matched, nil
}

// CheckIn marks a student present. Checking in an already-present student is
// a no-op.
func (s *Service) CheckIn(ctx context.Context, studentID string) error {
	return s.setCheckedIn(ctx, studentID, true)
}

// Undo reverses an accidental check-in.
func (s *Service) Undo(ctx context.Context, studentID string) error {
	return s.setCheckedIn(ctx, studentID, false)
}

func (s *Service) setCheckedIn(ctx context.Context, studentID string, checkedIn bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return fmt.Errorf("student id is required")
	}
	if err := s.students.SetCheckedIn(ctx, studentID, checkedIn, s.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "student not found")
		}
		return fmt.Errorf("set checked in: %w", err)
	}
	return nil
}
