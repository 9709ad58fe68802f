package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle status of an account.
type AccountStatus = string

const (
	// AccountStatusUnverified is the initial status of every new account.
	// The confirmation token is set while an account is unverified or blocked
	// before ever confirming.
	AccountStatusUnverified AccountStatus = "unverified"
	// AccountStatusActive marks an account that confirmed its email address.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusBlocked marks an account locked out by an administrator.
	AccountStatusBlocked AccountStatus = "blocked"
)

// Account is the sole persisted entity: a registered user account.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name              string        `bun:"name,notnull" json:"name,omitempty"`
	Email             string        `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash      string        `bun:"password_hash" json:"password_hash,omitempty"`
	Status            AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	ConfirmationToken *string       `bun:"confirmation_token,nullzero" json:"confirmation_token,omitempty"`
	LastLoginAt       *time.Time    `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt         *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// EnsureStatus backfills the default status for records created before the
// status column existed.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusUnverified
	}
}

// IsUnverified reports whether the account has not yet confirmed its email.
func (a *Account) IsUnverified() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusUnverified
}

// IsActive reports whether the account confirmed its email and is not blocked.
func (a *Account) IsActive() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusActive
}

// IsBlocked reports whether an administrator locked the account.
func (a *Account) IsBlocked() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusBlocked
}

// HasConfirmationPending reports whether the account never completed email
// confirmation. The token is non nil if and only if confirmation is pending;
// once cleared it is never reissued.
func (a *Account) HasConfirmationPending() bool {
	return a.ConfirmationToken != nil
}

// RestoredStatus is the status an unblock should restore: the confirmation
// token is the only memory of the pre-block state.
func (a *Account) RestoredStatus() AccountStatus {
	if a.HasConfirmationPending() {
		return AccountStatusUnverified
	}
	return AccountStatusActive
}

// ValidStatus reports whether s is one of the three observable statuses.
func ValidStatus(s AccountStatus) bool {
	switch s {
	case AccountStatusUnverified, AccountStatusActive, AccountStatusBlocked:
		return true
	}
	return false
}

// statusAuthError maps a status to the authentication error it should raise,
// nil when the status does not prevent authentication. Unverified accounts may
// log in; confirmation gates only the status label.
func statusAuthError(status AccountStatus) error {
	if status == AccountStatusBlocked {
		return ErrAccountBlocked
	}
	return nil
}
