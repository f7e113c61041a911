// Package errors provides structured error handling for the biometric
// subsystem.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Challenge errors
	CodeChallengeNotFound        Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired         Code = "CHALLENGE_EXPIRED"
	CodeChallengeAlreadyConsumed Code = "CHALLENGE_ALREADY_CONSUMED"
	CodeChallengeMismatch        Code = "CHALLENGE_MISMATCH"
	CodeOriginMismatch           Code = "ORIGIN_MISMATCH"

	// Credential errors
	CodeCredentialNotFound        Code = "CREDENTIAL_NOT_FOUND"
	CodeCredentialSubjectMismatch Code = "CREDENTIAL_SUBJECT_MISMATCH"
	CodeDuplicateCredential       Code = "DUPLICATE_CREDENTIAL"
	CodeSignatureInvalid          Code = "SIGNATURE_INVALID"
	CodeCounterRegression         Code = "COUNTER_REGRESSION_DETECTED"
	CodeDeviceTypeNotSupported    Code = "DEVICE_TYPE_NOT_SUPPORTED"
	CodeNoCredentialsEnrolled     Code = "NO_CREDENTIALS_ENROLLED"
	CodeNotOwner                  Code = "NOT_OWNER"

	// Caller/platform errors
	CodePlatformUnsupported Code = "PLATFORM_UNSUPPORTED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - malformed or stale ceremony input
	case CodeChallengeExpired,
		CodeChallengeMismatch,
		CodeOriginMismatch,
		CodeDeviceTypeNotSupported,
		CodePlatformUnsupported:
		return http.StatusBadRequest

	// Unauthorized - the ceremony failed verification
	case CodeSignatureInvalid,
		CodeCredentialSubjectMismatch:
		return http.StatusUnauthorized

	// Forbidden - the caller may not touch the resource
	case CodeNotOwner:
		return http.StatusForbidden

	// NotFound - missing records
	case CodeChallengeNotFound,
		CodeCredentialNotFound,
		CodeNotFound:
		return http.StatusNotFound

	// Conflict - one-shot and monotonicity violations
	case CodeChallengeAlreadyConsumed,
		CodeDuplicateCredential,
		CodeCounterRegression:
		return http.StatusConflict

	// PreconditionFailed - the ceremony cannot start
	case CodeNoCredentialsEnrolled:
		return http.StatusPreconditionFailed

	default:
		return http.StatusInternalServerError
	}
}
