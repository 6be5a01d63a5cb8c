package domain

import (
	"fmt"
	"strings"
)

// Purpose partitions verification sessions and security-key credentials so a
// verification obtained for one workflow cannot satisfy a gate in another.
type Purpose int

const (
	// PurposeUnspecified marks a session or credential with no recorded
	// purpose. A stored unspecified purpose satisfies any requested one.
	PurposeUnspecified Purpose = iota
	// PurposeElection covers election control and results access.
	PurposeElection
	// PurposeGeneral covers day-to-day privileged administration,
	// including the PIN registry and user management.
	PurposeGeneral
)

// String returns the wire name for the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeElection:
		return "election"
	case PurposeGeneral:
		return "general"
	default:
		return "unspecified"
	}
}

// ParsePurpose maps a wire name to a Purpose. Empty input is unspecified.
func ParsePurpose(value string) (Purpose, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "unspecified":
		return PurposeUnspecified, nil
	case "election":
		return PurposeElection, nil
	case "general":
		return PurposeGeneral, nil
	default:
		return PurposeUnspecified, fmt.Errorf("unknown purpose %q", value)
	}
}

// PurposeForKeyName infers a credential purpose from its display name.
// Names mentioning the election are election keys; everything else is general.
func PurposeForKeyName(name string) Purpose {
	if strings.Contains(strings.ToLower(name), "election") {
		return PurposeElection
	}
	return PurposeGeneral
}

// Satisfies reports whether a stored purpose satisfies a requested one.
// An unspecified stored purpose satisfies any request; an unspecified
// request is satisfied by any stored purpose.
func (p Purpose) Satisfies(requested Purpose) bool {
	if p == PurposeUnspecified || requested == PurposeUnspecified {
		return true
	}
	return p == requested
}
