package service

// FailureReason tags why a credential failed validation. Reasons are for
// logs and metrics; the boundary layer presents every one of them as the
// same generic "authentication required" so callers cannot probe whether
// a session exists, was revoked, or never existed.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonMalformed        FailureReason = "malformed"
	ReasonBadSignature     FailureReason = "bad_signature"
	ReasonExpired          FailureReason = "expired"
	ReasonSessionNotFound  FailureReason = "session_not_found"
	ReasonNotActive        FailureReason = "not_active"
	ReasonInvalidKey       FailureReason = "invalid_key"
	ReasonInactive         FailureReason = "inactive"
	ReasonStoreUnavailable FailureReason = "store_unavailable"
)

// ValidationResult is a tagged result, never an error: every expected
// validation outcome is represented here so the boundary layer can
// respond uniformly without exception plumbing.
type ValidationResult struct {
	IsValid   bool
	UserID    string
	SessionID string
	Reason    FailureReason
}

// Transient reports whether the failure was infrastructure rather than
// the credential itself. Transient failures should be retried or surfaced
// as a service error, never as a permanent rejection of the credential.
func (r ValidationResult) Transient() bool {
	return r.Reason == ReasonStoreUnavailable
}

func valid(userID, sessionID string) ValidationResult {
	return ValidationResult{IsValid: true, UserID: userID, SessionID: sessionID}
}

func invalid(reason FailureReason) ValidationResult {
	return ValidationResult{Reason: reason}
}
