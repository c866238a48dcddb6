package models

import (
	"time"

	"github.com/tableside/billing/pkg/types"
)

// SubscriptionDailySnapshot is a per-user per-day snapshot of subscription
// state, written by the statistics service for dashboard time series.
type SubscriptionDailySnapshot struct {
	ID                string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID            string                   `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_user_id_snapshot_date,priority:1" json:"user_id"`
	PlanID            string                   `gorm:"column:plan_id;type:varchar(64)" json:"plan_id"`
	Status            types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CurrentPeriodEnd  *time.Time               `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CancelAtPeriodEnd bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	SnapshotDate      string                   `gorm:"column:snapshot_date;uniqueIndex:idx_user_id_snapshot_date,priority:2" json:"snapshot_date"`
	SnapshotCreatedAt time.Time                `gorm:"column:snapshot_created_at" json:"snapshot_created_at"`
}

func (SubscriptionDailySnapshot) TableName() string { return "subscription_daily_snapshot" }
