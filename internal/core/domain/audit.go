package domain

import "time"

// Audit actions.
const (
	AuditRegister       = "register"
	AuditLogin          = "login"
	AuditRefresh        = "refresh"
	AuditRefreshReuse   = "refresh_reuse"
	AuditLogout         = "logout"
	AuditChangePassword = "change_password"
	AuditUpdateProfile  = "update_profile"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent records one credential lifecycle decision.
type AuditEvent struct {
	Action   string
	Outcome  string
	UserID   string
	RecordID string
	Reason   string
	At       time.Time
}
