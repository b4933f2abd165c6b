package models

import (
	"time"
)

// User as the identity backend shapes it
type User struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	IsPro              bool               `json:"isPro"`
	IsTrial            bool               `json:"isTrial"`
	TrialEndsAt        *time.Time         `json:"trialEndsAt,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	InterestedInPro    bool               `json:"interestedInPro"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Tier the user is on right now
func (u User) Tier() Tier {
	switch {
	case u.IsPro:
		return TierPro
	case u.IsTrial:
		return TierTrial
	default:
		return TierFree
	}
}

type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}
