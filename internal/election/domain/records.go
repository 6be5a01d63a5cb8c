package domain

import "time"

// PinAccess is a named, independently toggleable shared code that unlocks
// the voting kiosk. The code is stored as entered; see the admin surface for
// display rules.
type PinAccess struct {
	ID        string
	Name      string
	PIN       string
	Active    bool
	CreatedAt time.Time
}

// AuthorizedUser is an account known to the election system.
type AuthorizedUser struct {
	ID            string
	Email         string
	Name          string
	Role          Role
	AssignedPinID string // weak reference; cleared when the PIN is deleted
	CreatedAt     time.Time
}

// SecurityKeyCredential is a registered hardware credential. Credentials are
// soft-deleted so a removed key can still be audited.
type SecurityKeyCredential struct {
	CredentialID   string
	UserID         string
	Name           string
	Purpose        Purpose
	CredentialJSON string
	CreatedAt      time.Time
	Removed        bool
}

// Student is a check-in roster entry.
type Student struct {
	ID          string
	StudentID   string
	Name        string
	Grade       string
	CheckedIn   bool
	CheckedInAt *time.Time
}

// Position is an elected office on the ballot.
type Position struct {
	ID    string
	Name  string
	Order int
}

// Candidate runs for exactly one position.
type Candidate struct {
	ID         string
	PositionID string
	Name       string
	Bio        string
	PhotoURL   string
}

// Vote is one recorded choice for one position. Votes carry no voter
// identity.
type Vote struct {
	ID          string
	PositionID  string
	CandidateID string
	CastAt      time.Time
}

// ElectionSettings holds election-wide switches. PinCode is the legacy
// single kiosk code kept alongside the PIN registry for compatibility.
type ElectionSettings struct {
	Active           bool
	PinCode          string
	ResultsPublic    bool
	VoteDisplayDelay time.Duration
	UpdatedAt        time.Time
}
