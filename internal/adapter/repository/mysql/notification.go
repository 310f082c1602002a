package mysql

import (
	"context"

	"erp-approval-middleware/internal/domain/notification"

	"gorm.io/gorm"
)

type NotificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, e *notification.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *NotificationRepository) List(ctx context.Context, f notification.Filter) ([]notification.Entry, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if f.Channel != "" {
		q = q.Where("channel = ?", f.Channel)
	}
	if f.ErpRequisitionID != "" {
		q = q.Where("erp_requisition_id = ?", f.ErpRequisitionID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []notification.Entry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
