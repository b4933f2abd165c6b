package models

import (
	"time"
)

type Tier string

const (
	TierFree  Tier = "free"
	TierTrial Tier = "trial"
	TierPro   Tier = "pro"
)

// Numeric subscription status as the backend sends it
type SubscriptionStatus int

const (
	SubscriptionNone SubscriptionStatus = iota
	SubscriptionTrial
	SubscriptionActive
	SubscriptionCancelled
	SubscriptionExpired
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionNone:
		return "none"
	case SubscriptionTrial:
		return "trial"
	case SubscriptionActive:
		return "active"
	case SubscriptionCancelled:
		return "cancelled"
	case SubscriptionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Read-only subscription summary
type Subscription struct {
	HasActiveSubscription bool               `json:"hasActiveSubscription"`
	IsTrialActive         bool               `json:"isTrialActive"`
	TrialEndsAt           *time.Time         `json:"trialEndsAt,omitempty"`
	SubscriptionExpiresAt *time.Time         `json:"subscriptionExpiresAt,omitempty"`
	Status                SubscriptionStatus `json:"subscriptionStatus"`
}

func (s Subscription) Tier() Tier {
	switch {
	case s.HasActiveSubscription:
		return TierPro
	case s.IsTrialActive:
		return TierTrial
	default:
		return TierFree
	}
}

// Days left in the trial, rounded up. Zero if there is no active trial
func (s Subscription) TrialDaysLeft(now time.Time) int {
	if !s.IsTrialActive || s.TrialEndsAt == nil || !s.TrialEndsAt.After(now) {
		return 0
	}
	left := s.TrialEndsAt.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}
