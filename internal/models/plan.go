package models

import (
	"github.com/shopspring/decimal"
)

type Plan struct {
	Tier         Tier            `json:"tier"`
	Name         string          `json:"name"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	Currency     string          `json:"currency"`
	TrialDays    int             `json:"trialDays,omitempty"`
}

// Plans offered on the pricing and subscription pages
func Plans() []Plan {
	return []Plan{
		{Tier: TierFree, Name: "Free", MonthlyPrice: decimal.Zero, Currency: "USD"},
		{Tier: TierPro, Name: "Pro", MonthlyPrice: decimal.RequireFromString("4.99"), Currency: "USD", TrialDays: 7},
	}
}

// Yearly price with the given discount in percents, rounded to cents
func (p Plan) YearlyPrice(discountPercent int64) decimal.Decimal {
	yearly := p.MonthlyPrice.Mul(decimal.NewFromInt(12))
	discount := yearly.Mul(decimal.NewFromInt(discountPercent)).Div(decimal.NewFromInt(100))
	return yearly.Sub(discount).Round(2)
}
