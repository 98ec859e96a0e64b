package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStatus is the lifecycle state of a managed account.
type UserStatus string

const (
	// UserActive accounts connect normally.
	UserActive UserStatus = "active"
	// UserDisabled accounts are switched off but keep their data. Reversible.
	UserDisabled UserStatus = "disabled"
	// UserBlocked accounts were shut out for cause; BlockReason says why.
	UserBlocked UserStatus = "blocked"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserDisabled, UserBlocked:
		return true
	}
	return false
}

// User is a managed panel account, the main target of user-scoped automation
// actions. These are service subscribers, not operators; operators are Admins.
// Traffic counters are in bytes and are maintained by the sync endpoints.
type User struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"uniqueIndex"`
	Status       UserStatus `json:"status" gorm:"index;default:'active'"`
	BlockReason  string     `json:"block_reason,omitempty"`
	Online       bool       `json:"online" gorm:"default:false"`
	LastOnlineAt *time.Time `json:"last_online_at"`
	ExpireAt     *time.Time `json:"expire_at"`

	TrafficUsed  int64 `json:"traffic_used"`
	TrafficLimit int64 `json:"traffic_limit"` // 0 means unlimited
	TrafficToday int64 `json:"traffic_today"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = UserActive
	}
	return
}

// TrafficPercent returns used traffic as a share of the limit, or 0 for
// unlimited accounts.
func (u *User) TrafficPercent() float64 {
	if u.TrafficLimit <= 0 {
		return 0
	}
	return float64(u.TrafficUsed) / float64(u.TrafficLimit) * 100
}

// OverLimit reports whether a limited account has used up its traffic.
func (u *User) OverLimit() bool {
	return u.TrafficLimit > 0 && u.TrafficUsed >= u.TrafficLimit
}

// ExpiredBefore reports whether the account's expiry lies strictly before
// cutoff. Accounts without an expiry never qualify.
func (u *User) ExpiredBefore(cutoff time.Time) bool {
	return u.ExpireAt != nil && u.ExpireAt.Before(cutoff)
}
