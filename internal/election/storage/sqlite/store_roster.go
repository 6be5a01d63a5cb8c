package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
)

// PutStudent inserts or updates a check-in roster entry.
func (s *Store) PutStudent(ctx context.Context, student domain.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(student.ID) == "" {
		return fmt.Errorf("student record id is required")
	}
	if strings.TrimSpace(student.StudentID) == "" {
		return fmt.Errorf("student id is required")
	}
	if strings.TrimSpace(student.Name) == "" {
		return fmt.Errorf("student name is required")
	}

	var checkedInAt sql.NullInt64
	if student.CheckedInAt != nil {
		checkedInAt = sql.NullInt64{Int64: toMillis(*student.CheckedInAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO students (id, student_id, name, grade, checked_in, checked_in_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	student_id = excluded.student_id,
	name = excluded.name,
	grade = excluded.grade,
	checked_in = excluded.checked_in,
	checked_in_at = excluded.checked_in_at
`,
		student.ID,
		student.StudentID,
		student.Name,
		student.Grade,
		boolToInt(student.CheckedIn),
		checkedInAt,
	)
	if err != nil {
		return fmt.Errorf("put student: %w", err)
	}
	return nil
}

// GetStudent fetches a roster entry by record id.
func (s *Store) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	if err := ctx.Err(); err != nil {
		return domain.Student{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Student{}, fmt.Errorf("storage is not configured")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return domain.Student{}, fmt.Errorf("student record id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, student_id, name, grade, checked_in, checked_in_at
FROM students
WHERE id = ?
`, studentID)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Student{}, storage.ErrNotFound
		}
		return domain.Student{}, fmt.Errorf("get student: %w", err)
	}
	return student, nil
}

// ListStudents returns the roster ordered by name.
func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, student_id, name, grade, checked_in, checked_in_at
FROM students
ORDER BY name, id
`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// DeleteStudent removes a roster entry.
func (s *Store) DeleteStudent(ctx context.Context, studentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return fmt.Errorf("student record id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, studentID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetCheckedIn updates check-in state for a roster entry.
func (s *Store) SetCheckedIn(ctx context.Context, studentID string, checkedIn bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return fmt.Errorf("student record id is required")
	}

	var checkedInAt sql.NullInt64
	if checkedIn {
		checkedInAt = sql.NullInt64{Int64: toMillis(at), Valid: true}
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE students SET checked_in = ?, checked_in_at = ? WHERE id = ?
`, boolToInt(checkedIn), checkedInAt, studentID)
	if err != nil {
		return fmt.Errorf("set checked in: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set checked in rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutPosition inserts or updates a ballot position.
func (s *Store) PutPosition(ctx context.Context, position domain.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(position.ID) == "" {
		return fmt.Errorf("position id is required")
	}
	if strings.TrimSpace(position.Name) == "" {
		return fmt.Errorf("position name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO positions (id, name, ord)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	ord = excluded.ord
`, position.ID, position.Name, position.Order)
	if err != nil {
		return fmt.Errorf("put position: %w", err)
	}
	return nil
}

// ListPositions returns positions in ballot order.
func (s *Store) ListPositions(ctx context.Context) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, ord FROM positions ORDER BY ord, id
`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var position domain.Position
		if err := rows.Scan(&position.ID, &position.Name, &position.Order); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return positions, nil
}

// DeletePosition removes a ballot position.
func (s *Store) DeletePosition(ctx context.Context, positionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return fmt.Errorf("position id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete position rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutCandidate inserts or updates a candidate.
func (s *Store) PutCandidate(ctx context.Context, candidate domain.Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(candidate.ID) == "" {
		return fmt.Errorf("candidate id is required")
	}
	if strings.TrimSpace(candidate.PositionID) == "" {
		return fmt.Errorf("candidate position id is required")
	}
	if strings.TrimSpace(candidate.Name) == "" {
		return fmt.Errorf("candidate name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO candidates (id, position_id, name, bio, photo_url)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	position_id = excluded.position_id,
	name = excluded.name,
	bio = excluded.bio,
	photo_url = excluded.photo_url
`, candidate.ID, candidate.PositionID, candidate.Name, candidate.Bio, candidate.PhotoURL)
	if err != nil {
		return fmt.Errorf("put candidate: %w", err)
	}
	return nil
}

// ListCandidates returns all candidates ordered by name.
func (s *Store) ListCandidates(ctx context.Context) ([]domain.Candidate, error) {
	return s.listCandidates(ctx, "")
}

// ListCandidatesByPosition returns candidates running for one position.
func (s *Store) ListCandidatesByPosition(ctx context.Context, positionID string) ([]domain.Candidate, error) {
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return nil, fmt.Errorf("position id is required")
	}
	return s.listCandidates(ctx, positionID)
}

func (s *Store) listCandidates(ctx context.Context, positionID string) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var (
		rows *sql.Rows
		err  error
	)
	if positionID == "" {
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT id, position_id, name, bio, photo_url FROM candidates ORDER BY name, id
`)
	} else {
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT id, position_id, name, bio, photo_url FROM candidates WHERE position_id = ? ORDER BY name, id
`, positionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var candidate domain.Candidate
		if err := rows.Scan(&candidate.ID, &candidate.PositionID, &candidate.Name, &candidate.Bio, &candidate.PhotoURL); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// DeleteCandidate removes a candidate.
func (s *Store) DeleteCandidate(ctx context.Context, candidateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return fmt.Errorf("candidate id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, candidateID)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete candidate rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanStudent(row rowScanner) (domain.Student, error) {
	var (
		student     domain.Student
		checkedIn   int64
		checkedInAt sql.NullInt64
	)
	if err := row.Scan(
		&student.ID,
		&student.StudentID,
		&student.Name,
		&student.Grade,
		&checkedIn,
		&checkedInAt,
	); err != nil {
		return domain.Student{}, err
	}
	student.CheckedIn = checkedIn != 0
	if checkedInAt.Valid {
		at := fromMillis(checkedInAt.Int64)
		student.CheckedInAt = &at
	}
	return student, nil
}
