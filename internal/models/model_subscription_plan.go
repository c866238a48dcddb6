package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableside/billing/pkg/types"
)

// SubscriptionPlan is a catalog entry. Owned by the admin CRUD surface; the
// reconciliation engine only reads it.
type SubscriptionPlan struct {
	ID       string             `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name     string             `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Price    decimal.Decimal    `gorm:"column:price;type:numeric(10,2);not null" json:"price"`
	Currency string             `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Cycle    types.BillingCycle `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	// StripePriceID maps this plan onto the provider's price object.
	StripePriceID string    `gorm:"column:stripe_price_id;type:varchar(128);not null;uniqueIndex" json:"stripe_price_id"`
	Active        bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string { return "subscription_plan" }
