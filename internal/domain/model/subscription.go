package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusGrace     SubscriptionStatus = "grace_period"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// SubscriptionState is the per-entity slice of subscription bookkeeping this
// core owns. The entity itself (an artist account) is created elsewhere;
// only the lifecycle fields below are ever written here.
type SubscriptionState struct {
	EntityID         string
	Status           SubscriptionStatus
	GracePeriodStart *time.Time // set while Status == grace_period
	GraceReason      *string
	ExpiredAt        *time.Time
	RestoredAt       *time.Time
	UpdatedAt        time.Time
}

// GraceStatus is the read-only answer to "how far into the grace period is
// this entity". Zero value means "not in a grace period".
type GraceStatus struct {
	InGracePeriod bool `json:"in_grace_period"`
	DaysRemaining int  `json:"days_remaining"`
	ShouldExpire  bool `json:"should_expire"`
}

// CheckGrace computes grace arithmetic for a state at the given instant.
// Day counts floor: 3 days and 23 hours in is still day 3.
func (s *SubscriptionState) CheckGrace(now time.Time, gracePeriodDays int) GraceStatus {
	if s == nil || s.Status != SubscriptionStatusGrace || s.GracePeriodStart == nil {
		return GraceStatus{}
	}
	daysIn := int(now.Sub(*s.GracePeriodStart).Hours() / 24)
	if daysIn < 0 {
		daysIn = 0
	}
	remaining := gracePeriodDays - daysIn
	if remaining < 0 {
		remaining = 0
	}
	return GraceStatus{
		InGracePeriod: true,
		DaysRemaining: remaining,
		ShouldExpire:  daysIn >= gracePeriodDays,
	}
}

// DaysInGrace returns the floored day count since the grace period started,
// or -1 when the entity is not in a grace period.
func (s *SubscriptionState) DaysInGrace(now time.Time) int {
	if s == nil || s.Status != SubscriptionStatusGrace || s.GracePeriodStart == nil {
		return -1
	}
	d := int(now.Sub(*s.GracePeriodStart).Hours() / 24)
	if d < 0 {
		d = 0
	}
	return d
}

// ReminderSweepResult aggregates one ProcessGracePeriodReminders run.
type ReminderSweepResult struct {
	Processed     int
	RemindersSent int
	Expired       int
}
