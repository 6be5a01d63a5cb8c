package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Verification and ceremony errors
	CodeVerificationTimeout       Code = "VERIFICATION_TIMEOUT"
	CodeVerificationCancelled     Code = "VERIFICATION_CANCELLED"
	CodeVerificationRequired      Code = "VERIFICATION_REQUIRED"
	CodeUnknownCredential         Code = "UNKNOWN_CREDENTIAL"
	CodeRegistrationUnauthorized  Code = "REGISTRATION_UNAUTHORIZED"
	CodeCeremonyResponseMalformed Code = "CEREMONY_RESPONSE_MALFORMED"

	// PIN errors
	CodePinMismatch  Code = "PIN_MISMATCH"
	CodePinNameEmpty Code = "PIN_NAME_EMPTY"
	CodePinCodeEmpty Code = "PIN_CODE_EMPTY"

	// Gate errors
	CodeActionReplayFailure Code = "ACTION_REPLAY_FAILURE"
	CodeNoPendingAction     Code = "NO_PENDING_ACTION"

	// Kiosk errors
	CodeElectionInactive Code = "ELECTION_INACTIVE"
	CodeBallotIncomplete Code = "BALLOT_INCOMPLETE"
	CodeKioskLocked      Code = "KIOSK_LOCKED"

	// Identity errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeRoleInvalid  Code = "ROLE_INVALID"
	CodeForbidden    Code = "FORBIDDEN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodePinMismatch,
		CodePinNameEmpty,
		CodePinCodeEmpty,
		CodeCeremonyResponseMalformed,
		CodeBallotIncomplete,
		CodeRoleInvalid:
		return http.StatusBadRequest

	case CodeTokenInvalid:
		return http.StatusUnauthorized

	case CodeVerificationRequired,
		CodeRegistrationUnauthorized,
		CodeUnknownCredential,
		CodeForbidden:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeVerificationTimeout:
		return http.StatusRequestTimeout

	case CodeVerificationCancelled,
		CodeNoPendingAction,
		CodeElectionInactive,
		CodeKioskLocked:
		return http.StatusConflict

	case CodeActionReplayFailure:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry without further privilege.
// A replay failure retries the mutation only; the verification behind it
// already succeeded and need not be repeated.
func (c Code) Retryable() bool {
	switch c {
	case CodeVerificationTimeout,
		CodeVerificationCancelled,
		CodeUnknownCredential,
		CodePinMismatch,
		CodeActionReplayFailure:
		return true
	default:
		return false
	}
}
