package mysql

import (
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/notification"
	"erp-approval-middleware/internal/domain/user"

	"gorm.io/gorm"
)

// Models lists every table the service owns.
func Models() []any {
	return []any{&decision.Decision{}, &notification.Entry{}, &user.User{}}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
