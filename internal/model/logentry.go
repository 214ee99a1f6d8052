package model

import "time"

// Action tags an audit log entry.
type Action string

const (
	ActionLoginSuccess  Action = "LOGIN_SUCCESS"
	ActionLoginFail     Action = "LOGIN_FAIL"
	ActionLoginRevoked  Action = "LOGIN_REVOKED"
	ActionDownload      Action = "DOWNLOAD"
	ActionAdminRevoke   Action = "ADMIN_REVOKE"
	ActionAdminActivate Action = "ADMIN_ACTIVATE"
	ActionAdminAddKey   Action = "ADMIN_ADD_KEY"
	ActionAdminGenerate Action = "ADMIN_GENERATE"
)

// LogEntry is an immutable audit record. Optional fields are nil when the
// action has nothing to record there. Detail carries action-specific data,
// such as the number of keys created by ADMIN_GENERATE.
type LogEntry struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	Action    Action    `json:"action" db:"action"`
	Key       *string   `json:"key,omitempty" db:"key"`
	Filename  *string   `json:"filename,omitempty" db:"filename"`
	Detail    *string   `json:"detail,omitempty" db:"detail"`
	IP        *string   `json:"ip,omitempty" db:"ip"`
}

// StringPtr returns a pointer to s, or nil when s is empty. Used to fill the
// optional LogEntry columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
