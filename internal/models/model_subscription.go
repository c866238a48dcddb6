package models

import (
	"time"

	"github.com/tableside/billing/pkg/types"
	"gorm.io/datatypes"
)

// Subscription is the local mirror of one provider subscription. The row is
// located by StripeSubscriptionID in every webhook handler; it is status-
// flipped on cancellation, never deleted.
type Subscription struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	PlanID string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	// StripeSubscriptionID is the provider-assigned id; stable once set.
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;type:varchar(128);not null;uniqueIndex" json:"stripe_subscription_id"`
	Status               types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CurrentPeriodStart   time.Time                `gorm:"column:current_period_start;not null" json:"current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null" json:"current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at;default:null" json:"canceled_at"`
	TrialStart           *time.Time               `gorm:"column:trial_start;default:null" json:"trial_start"`
	TrialEnd             *time.Time               `gorm:"column:trial_end;default:null" json:"trial_end"`
	// Extra stores additional JSON data (for example checkout session ids).
	Extra     datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscription" }

// Entitled reports whether the subscription currently grants access.
func (s *Subscription) Entitled(now time.Time) bool {
	return s != nil && s.Status.Entitled() && s.CurrentPeriodEnd.After(now)
}
