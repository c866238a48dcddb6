package models

import (
	"time"

	"github.com/tableside/billing/pkg/types"
	"gorm.io/datatypes"
)

// SubscriptionEvent is one row of the append-only subscription ledger. Rows
// are inserted in the same transaction as the state change they describe and
// are never updated or deleted.
type SubscriptionEvent struct {
	ID        string                      `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string                      `gorm:"column:user_id;type:uuid;index:idx_sub_event_user,priority:1;not null" json:"user_id"`
	EventType types.SubscriptionEventType `gorm:"column:event_type;type:varchar(64);index;not null" json:"event_type"`
	PlanID    *string                     `gorm:"column:plan_id;type:varchar(64)" json:"plan_id"`
	Status    types.SubscriptionStatus    `gorm:"column:status;type:varchar(64)" json:"status"`
	// StripeSubscriptionID is empty for events logged before a provider
	// subscription exists (for example a failed checkout).
	StripeSubscriptionID string `gorm:"column:stripe_subscription_id;type:varchar(128);index" json:"stripe_subscription_id"`
	// ProviderEventID dedupes webhook redelivery; nil for entries produced by
	// user-initiated flows which have no provider event attached.
	ProviderEventID *string `gorm:"column:provider_event_id;type:varchar(128);uniqueIndex" json:"provider_event_id"`
	// Amount is in the currency's minor unit (cents).
	Amount    *int64         `gorm:"column:amount" json:"amount"`
	Currency  string         `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb;default:'{}'" json:"payload"`
	CreatedAt time.Time      `gorm:"index:idx_sub_event_user,priority:2" json:"created_at"`
}

func (SubscriptionEvent) TableName() string { return "subscription_event" }
