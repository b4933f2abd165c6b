package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_Tier(t *testing.T) {
	tests := []struct {
		name string
		sub  Subscription
		want Tier
	}{
		{"nothing", Subscription{}, TierFree},
		{"trial", Subscription{IsTrialActive: true}, TierTrial},
		{"paid wins over trial", Subscription{HasActiveSubscription: true, IsTrialActive: true}, TierPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.Tier())
		})
	}
}

func TestSubscription_TrialDaysLeft(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		sub  Subscription
		want int
	}{
		{"no trial", Subscription{TrialEndsAt: at(48 * time.Hour)}, 0},
		{"no end date", Subscription{IsTrialActive: true}, 0},
		{"ended", Subscription{IsTrialActive: true, TrialEndsAt: at(-time.Hour)}, 0},
		{"ends right now", Subscription{IsTrialActive: true, TrialEndsAt: at(0)}, 0},
		{"exactly two days", Subscription{IsTrialActive: true, TrialEndsAt: at(48 * time.Hour)}, 2},
		{"part of a day rounds up", Subscription{IsTrialActive: true, TrialEndsAt: at(time.Hour)}, 1},
		{"week minus a minute", Subscription{IsTrialActive: true, TrialEndsAt: at(7*24*time.Hour - time.Minute)}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.TrialDaysLeft(now))
		})
	}
}

func TestSubscriptionStatus_String(t *testing.T) {
	assert.Equal(t, "none", SubscriptionNone.String())
	assert.Equal(t, "trial", SubscriptionTrial.String())
	assert.Equal(t, "active", SubscriptionActive.String())
	assert.Equal(t, "cancelled", SubscriptionCancelled.String())
	assert.Equal(t, "expired", SubscriptionExpired.String())
	assert.Equal(t, "unknown", SubscriptionStatus(42).String())
}

func TestUser_Tier(t *testing.T) {
	assert.Equal(t, TierFree, User{}.Tier())
	assert.Equal(t, TierTrial, User{IsTrial: true}.Tier())
	assert.Equal(t, TierPro, User{IsPro: true, IsTrial: true}.Tier())
}

func TestPlans(t *testing.T) {
	plans := Plans()
	require.Len(t, plans, 2)

	t.Run("free is first and costs nothing", func(t *testing.T) {
		assert.Equal(t, TierFree, plans[0].Tier)
		assert.True(t, plans[0].MonthlyPrice.IsZero())
		assert.True(t, plans[0].YearlyPrice(20).IsZero())
	})

	t.Run("pro yearly price", func(t *testing.T) {
		pro := plans[1]

		assert.Equal(t, TierPro, pro.Tier)
		assert.Equal(t, 7, pro.TrialDays)
		assert.True(t, decimal.RequireFromString("59.88").Equal(pro.YearlyPrice(0)), "got %s", pro.YearlyPrice(0))
		assert.True(t, decimal.RequireFromString("47.90").Equal(pro.YearlyPrice(20)), "got %s", pro.YearlyPrice(20))
	})
}

func TestOAuthUser_AsUser(t *testing.T) {
	u := OAuthUser{Subject: "1234", Email: "grace@example.com", Name: "Grace", Provider: ProviderGoogle}

	got := u.AsUser()

	assert.Equal(t, "google:1234", got.ID)
	assert.Equal(t, "grace@example.com", got.Email)
	assert.Equal(t, "Grace", got.Name)
	assert.Equal(t, TierFree, got.Tier())
}

func TestOAuthSession_Expired(t *testing.T) {
	now := time.Now()

	assert.False(t, OAuthSession{}.Expired(now), "no expiry never expires")
	assert.False(t, OAuthSession{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, OAuthSession{ExpiresAt: now}.Expired(now))
	assert.True(t, OAuthSession{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
}

func TestTokenPair_IsZero(t *testing.T) {
	assert.True(t, TokenPair{}.IsZero())
	assert.False(t, TokenPair{Refresh: "r"}.IsZero())
	assert.False(t, TokenPair{Access: "a"}.IsZero())
}
