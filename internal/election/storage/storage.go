// Package storage defines the persistence contracts consumed by the
// election services.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// PinStore persists PIN access entries.
type PinStore interface {
	PutPin(ctx context.Context, pin domain.PinAccess) error
	GetPin(ctx context.Context, pinID string) (domain.PinAccess, error)
	ListPins(ctx context.Context) ([]domain.PinAccess, error)
	DeletePin(ctx context.Context, pinID string) error
}

// UserStore persists authorized user records.
type UserStore interface {
	PutUser(ctx context.Context, user domain.AuthorizedUser) error
	GetUser(ctx context.Context, userID string) (domain.AuthorizedUser, error)
	GetUserByEmail(ctx context.Context, email string) (domain.AuthorizedUser, error)
	ListUsers(ctx context.Context) ([]domain.AuthorizedUser, error)
	DeleteUser(ctx context.Context, userID string) error
	// ClearAssignedPin removes the pin back-reference from every user
	// pointing at pinID.
	ClearAssignedPin(ctx context.Context, pinID string) error
}

// CredentialStore persists security-key credentials.
type CredentialStore interface {
	PutCredential(ctx context.Context, credential domain.SecurityKeyCredential) error
	GetCredential(ctx context.Context, credentialID string) (domain.SecurityKeyCredential, error)
	// ListCredentials returns credentials that have not been removed.
	ListCredentials(ctx context.Context) ([]domain.SecurityKeyCredential, error)
	MarkCredentialRemoved(ctx context.Context, credentialID string) error
}

// CeremonyKind distinguishes the two security-key ceremony halves.
type CeremonyKind string

const (
	CeremonyKindRegistration   CeremonyKind = "registration"
	CeremonyKindAuthentication CeremonyKind = "authentication"
)

// Ceremony is an in-flight security-key challenge awaiting its response.
type Ceremony struct {
	ID          string
	Kind        CeremonyKind
	UserID      string
	KeyName     string
	Purpose     domain.Purpose
	SessionJSON string
	ExpiresAt   time.Time
}

// CeremonyStore persists in-flight ceremonies.
type CeremonyStore interface {
	PutCeremony(ctx context.Context, ceremony Ceremony) error
	GetCeremony(ctx context.Context, ceremonyID string) (Ceremony, error)
	DeleteCeremony(ctx context.Context, ceremonyID string) error
}

// StudentStore persists the check-in roster.
type StudentStore interface {
	PutStudent(ctx context.Context, student domain.Student) error
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
	ListStudents(ctx context.Context) ([]domain.Student, error)
	DeleteStudent(ctx context.Context, studentID string) error
	SetCheckedIn(ctx context.Context, studentID string, checkedIn bool, at time.Time) error
}

// PositionStore persists ballot positions.
type PositionStore interface {
	PutPosition(ctx context.Context, position domain.Position) error
	ListPositions(ctx context.Context) ([]domain.Position, error)
	DeletePosition(ctx context.Context, positionID string) error
}

// CandidateStore persists candidates.
type CandidateStore interface {
	PutCandidate(ctx context.Context, candidate domain.Candidate) error
	ListCandidates(ctx context.Context) ([]domain.Candidate, error)
	ListCandidatesByPosition(ctx context.Context, positionID string) ([]domain.Candidate, error)
	DeleteCandidate(ctx context.Context, candidateID string) error
}

// VoteCount is the tallied count for one candidate in one position.
type VoteCount struct {
	PositionID  string
	CandidateID string
	Count       int
}

// VoteStore persists cast votes. PutBallot lands one voter's votes
// atomically; a partial ballot is never recorded.
type VoteStore interface {
	PutVote(ctx context.Context, vote domain.Vote) error
	PutBallot(ctx context.Context, votes []domain.Vote) error
	CountVotes(ctx context.Context) ([]VoteCount, error)
}

// SettingsStore persists the election-wide settings row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (domain.ElectionSettings, error)
	PutSettings(ctx context.Context, settings domain.ElectionSettings) error
}

// AuditEvent records one committed privileged action.
type AuditEvent struct {
	ID        string
	Action    string
	ActorID   string
	SubjectID string
	Detail    string
	Timestamp time.Time
}

// AuditStore persists audit events.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
}
