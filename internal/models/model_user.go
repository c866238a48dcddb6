package models

import (
	"time"

	"github.com/tableside/billing/pkg/types"
)

// User is the local account. Only the payment/subscription mirror columns are
// owned by this service; the rest of the profile is managed elsewhere.
type User struct {
	ID    string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email string `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	// StripeCustomerID is set on first checkout and never cleared.
	StripeCustomerID *string `gorm:"column:stripe_customer_id;type:varchar(128);uniqueIndex" json:"stripe_customer_id"`
	// SubscriptionStatus and SubscriptionPlanID mirror the subscription table
	// so collaborators can read entitlement without a join.
	SubscriptionStatus types.SubscriptionStatus `gorm:"column:subscription_status;type:varchar(64)" json:"subscription_status"`
	SubscriptionPlanID *string                  `gorm:"column:subscription_plan_id;type:varchar(64)" json:"subscription_plan_id"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

func (User) TableName() string { return "users" }
