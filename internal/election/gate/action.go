package gate

import (
	"fmt"
	"strings"

	"github.com/openschool/ballotbox/internal/election/domain"
)

// Kind tags a privileged action awaiting verification.
type Kind string

const (
	KindAddPin        Kind = "add-pin"
	KindRemovePin     Kind = "remove-pin"
	KindTogglePin     Kind = "toggle-pin"
	KindEditPin       Kind = "edit-pin"
	KindUnassignPin   Kind = "unassign-pin"
	KindAddUser       Kind = "add-user"
	KindRemoveUser    Kind = "remove-user"
	KindRoleChange    Kind = "role-change"
	KindRemoveKey     Kind = "remove-key"
	KindStartElection Kind = "start-election"
	KindStopElection  Kind = "stop-election"
	KindViewResults   Kind = "view-results"
)

// Action carries the data needed to replay a privileged action once the
// operator has been verified. It lives only between gate entry and gate
// resolution and is never persisted.
type Action struct {
	Kind    Kind
	ActorID string

	// Pin actions.
	PinID   string
	PinName string
	PinCode string

	// User actions.
	UserID string
	Email  string
	Name   string
	Role   domain.Role

	// Key actions.
	CredentialID string
}

// Purpose is the verification purpose the action demands. Election control
// and results viewing are gated by election-purpose keys; registry and user
// administration by general-purpose keys, matching the purposes key naming
// can produce.
func (a Action) Purpose() domain.Purpose {
	switch a.Kind {
	case KindStartElection, KindStopElection, KindViewResults:
		return domain.PurposeElection
	default:
		return domain.PurposeGeneral
	}
}

// Subject identifies what the action mutates, for the audit log.
func (a Action) Subject() string {
	switch a.Kind {
	case KindAddPin:
		return a.PinName
	case KindRemovePin, KindTogglePin, KindEditPin:
		return a.PinID
	case KindAddUser:
		return a.Email
	case KindUnassignPin, KindRemoveUser, KindRoleChange:
		return a.UserID
	case KindRemoveKey:
		return a.CredentialID
	default:
		return ""
	}
}

func (a Action) validate() error {
	switch a.Kind {
	case KindAddPin:
		if strings.TrimSpace(a.PinName) == "" || strings.TrimSpace(a.PinCode) == "" {
			return fmt.Errorf("pin name and code are required")
		}
	case KindRemovePin, KindTogglePin:
		if strings.TrimSpace(a.PinID) == "" {
			return fmt.Errorf("pin id is required")
		}
	case KindEditPin:
		if strings.TrimSpace(a.PinID) == "" {
			return fmt.Errorf("pin id is required")
		}
		if strings.TrimSpace(a.PinName) == "" || strings.TrimSpace(a.PinCode) == "" {
			return fmt.Errorf("pin name and code are required")
		}
	case KindUnassignPin, KindRemoveUser:
		if strings.TrimSpace(a.UserID) == "" {
			return fmt.Errorf("user id is required")
		}
	case KindAddUser:
		if strings.TrimSpace(a.Email) == "" {
			return fmt.Errorf("email is required")
		}
	case KindRoleChange:
		if strings.TrimSpace(a.UserID) == "" {
			return fmt.Errorf("user id is required")
		}
	case KindRemoveKey:
		if strings.TrimSpace(a.CredentialID) == "" {
			return fmt.Errorf("credential id is required")
		}
	case KindStartElection, KindStopElection, KindViewResults:
		// No payload beyond the kind.
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}
