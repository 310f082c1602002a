package mysql

import (
	"testing"
	"time"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/pkg/id"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB creates an in-memory sqlite DB with the service schema.
// One connection only: every pooled connection would get its own :memory: DB.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ptr[T any](v T) *T { return &v }

func makeDecision(erpID string, st decision.State, score float64, commitAt *time.Time) *decision.Decision {
	v := decision.VerdictHold
	if st == decision.StatePendingCommit {
		v = decision.VerdictAutoApprove
	}
	if st == decision.StateCancelled {
		v = decision.VerdictReject
	}
	return &decision.Decision{
		ID:                  id.NewID32(),
		ErpRequisitionID:    erpID,
		RiskScore:           ptr(score),
		RiskExplanation:     "test",
		RequisitionSnapshot: datatypes.JSON(`{"erp_requisition_id":"` + erpID + `"}`),
		Verdict:             v,
		State:               st,
		CommitAt:            commitAt,
	}
}
