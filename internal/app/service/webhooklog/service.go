package webhooklog

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/pkg/logctx"
	"github.com/tableside/billing/pkg/tool"
)

// Service persists ingress audit rows for webhook deliveries.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Save asynchronously persists a webhook log row. Best-effort: a failure is
// logged but never blocks or fails the delivery being processed. Nil input
// is ignored.
func (s *Service) Save(ctx context.Context, row *models.WebhookLog) {
	if s.db == nil || row == nil {
		return
	}
	go func() {
		if row.ID == "" {
			row.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(NewService),
)
