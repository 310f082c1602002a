package mysql

import (
	"context"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func repos(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Decisions:     &DecisionRepository{db: tx},
		Notifications: &NotificationRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos(tx))
	})
}

func (u *GormUoW) WithinDecisionTx(ctx context.Context, erpRequisitionID string, fn func(r uow.Repos, d *decision.Decision) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := repos(tx)
		// lock the decision row up-front so approve/reject/undo serialize
		d, err := r.Decisions.GetLatestByRequisitionIDForUpdate(ctx, erpRequisitionID)
		if err != nil {
			return err
		}
		return fn(r, d)
	})
}
