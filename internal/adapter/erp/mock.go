package erp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"erp-approval-middleware/internal/domain/requisition"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StagedPending   = "pending"
	StagedApproved  = "approved"
	StagedRejected  = "rejected"
	StagedCancelled = "cancelled"
)

// StagedRequisition is a row of the simulated ERP's own staging table.
type StagedRequisition struct {
	ID               uint64              `gorm:"column:id;primaryKey;autoIncrement"`
	ErpRequisitionID string              `gorm:"column:erp_requisition_id;size:50;not null;uniqueIndex"`
	ItemNumber       string              `gorm:"column:item_number;size:10"`
	Material         string              `gorm:"column:material;size:100"`
	Description      string              `gorm:"column:description;size:500"`
	Quantity         decimal.NullDecimal `gorm:"column:quantity;type:decimal(15,3)"`
	Unit             string              `gorm:"column:unit;size:10"`
	Price            decimal.NullDecimal `gorm:"column:price;type:decimal(15,2)"`
	Currency         string              `gorm:"column:currency;size:5"`
	Plant            string              `gorm:"column:plant;size:50"`
	Supplier         string              `gorm:"column:supplier;size:100"`
	Status           string              `gorm:"column:status;size:20;not null;default:'pending';index"`
	Note             string              `gorm:"column:note;type:text"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	LastUpdatedAt    *time.Time          `gorm:"column:last_updated_at"`
}

func (StagedRequisition) TableName() string { return "erp_simulated_requisitions" }

func (s StagedRequisition) toRequisition() requisition.Requisition {
	return requisition.Requisition{
		ErpRequisitionID: s.ErpRequisitionID,
		ItemNumber:       s.ItemNumber,
		Material:         s.Material,
		Description:      s.Description,
		Quantity:         s.Quantity,
		Unit:             s.Unit,
		Price:            s.Price,
		Currency:         s.Currency,
		Plant:            s.Plant,
		Supplier:         s.Supplier,
		CreatedAt:        s.CreatedAt,
	}
}

// Mock is a stateful fake ERP backed by erp_simulated_requisitions.
type Mock struct {
	db  *gorm.DB
	log *slog.Logger
}

type MockOption func(*Mock)

func WithMockLogger(l *slog.Logger) MockOption { return func(m *Mock) { m.log = l } }

func NewMock(db *gorm.DB, opts ...MockOption) *Mock {
	m := &Mock{db: db, log: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mock) Name() string { return ModeMock }

// Migrate creates the staging table.
func (m *Mock) Migrate() error {
	return m.db.AutoMigrate(&StagedRequisition{})
}

// SeedRequisitions is the sample data loaded into an empty staging table.
func SeedRequisitions() []requisition.Requisition {
	row := func(id, material, desc string, qty, price float64, cur, plant string) requisition.Requisition {
		return requisition.Requisition{
			ErpRequisitionID: id, ItemNumber: "00010", Material: material, Description: desc,
			Quantity: requisition.Amount(qty), Unit: "EA", Price: requisition.Amount(price),
			Currency: cur, Plant: plant,
		}
	}
	return []requisition.Requisition{
		row("PR-2026-001", "MAT-1001", "Laptop Computer - Dell XPS 15", 5, 1500, "USD", "PLANT-US-001"),
		row("PR-2026-002", "MAT-2050", "Office Furniture - Standing Desk", 10, 800, "USD", "PLANT-US-001"),
		row("PR-2026-003", "MAT-3020", "Industrial Equipment - CNC Machine", 2, 45000, "USD", "PLANT-DE-001"),
		row("PR-2026-004", "MAT-4010", "Server Rack - 42U Cabinet", 3, 2200, "USD", "PLANT-US-002"),
		row("PR-2026-005", "MAT-5005", "Safety Equipment - Fire Suppression System", 1, 18500, "EUR", "PLANT-DE-001"),
	}
}

// Seed inserts SeedRequisitions when the staging table is empty.
func (m *Mock) Seed(ctx context.Context) (int, error) {
	var n int64
	if err := m.db.WithContext(ctx).Model(&StagedRequisition{}).Count(&n).Error; err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info("erp mock: staging table not empty, skipping seed", "rows", n)
		return 0, nil
	}
	seed := SeedRequisitions()
	for _, r := range seed {
		if err := m.Stage(ctx, r); err != nil {
			return 0, err
		}
	}
	m.log.Info("erp mock: seeded staging table", "rows", len(seed))
	return len(seed), nil
}

// Stage adds a pending requisition to the simulated ERP.
func (m *Mock) Stage(ctx context.Context, r requisition.Requisition) error {
	row := StagedRequisition{
		ErpRequisitionID: r.ErpRequisitionID,
		ItemNumber:       r.ItemNumber,
		Material:         r.Material,
		Description:      r.Description,
		Quantity:         r.Quantity,
		Unit:             r.Unit,
		Price:            r.Price,
		Currency:         r.Currency,
		Plant:            r.Plant,
		Supplier:         r.Supplier,
		Status:           StagedPending,
	}
	return m.db.WithContext(ctx).Create(&row).Error
}

func (m *Mock) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	var rows []StagedRequisition
	err := m.db.WithContext(ctx).
		Where("status = ?", StagedPending).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := make([]requisition.Requisition, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRequisition())
	}
	m.log.Debug("erp mock: fetched staged requisitions", "count", len(out))
	return out, nil
}

func (m *Mock) Commit(ctx context.Context, erpRequisitionID, comment string) error {
	return m.transition(ctx, erpRequisitionID, StagedApproved, comment)
}

func (m *Mock) Reject(ctx context.Context, erpRequisitionID, comment string) error {
	return m.transition(ctx, erpRequisitionID, StagedRejected, comment)
}

// Rollback is a no-op for a pending row: nothing was released yet.
func (m *Mock) Rollback(ctx context.Context, erpRequisitionID string) error {
	row, err := m.get(m.db.WithContext(ctx), erpRequisitionID)
	if err != nil {
		return err
	}
	switch row.Status {
	case StagedPending, StagedCancelled:
		return nil
	default:
		return fmt.Errorf("%w: %s already %s", ErrRejected, erpRequisitionID, row.Status)
	}
}

func (m *Mock) transition(ctx context.Context, erpRequisitionID, to, note string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := m.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), erpRequisitionID)
		if err != nil {
			return err
		}
		if row.Status != StagedPending {
			m.log.Warn("erp mock: requisition already final",
				"erp_requisition_id", erpRequisitionID, "status", row.Status, "requested", to)
			return fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, erpRequisitionID, row.Status)
		}
		now := time.Now().UTC()
		err = tx.Model(&StagedRequisition{}).Where("id = ?", row.ID).Updates(map[string]any{
			"status":          to,
			"note":            note,
			"last_updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		m.log.Info("erp mock: requisition transitioned",
			"erp_requisition_id", erpRequisitionID, "from", row.Status, "to", to)
		return nil
	})
}

func (m *Mock) get(q *gorm.DB, erpRequisitionID string) (*StagedRequisition, error) {
	var row StagedRequisition
	err := q.Where("erp_requisition_id = ?", erpRequisitionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, erpRequisitionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &row, nil
}

// Status returns the simulated ERP status of one requisition.
func (m *Mock) Status(ctx context.Context, erpRequisitionID string) (string, error) {
	row, err := m.get(m.db.WithContext(ctx), erpRequisitionID)
	if err != nil {
		return "", err
	}
	return row.Status, nil
}

func (m *Mock) Health(ctx context.Context) Health {
	var total, pending int64
	err := m.db.WithContext(ctx).Model(&StagedRequisition{}).Count(&total).Error
	if err == nil {
		err = m.db.WithContext(ctx).Model(&StagedRequisition{}).Where("status = ?", StagedPending).Count(&pending).Error
	}
	if err != nil {
		return Health{Status: "unhealthy", Adapter: ModeMock, Error: err.Error()}
	}
	return Health{
		Status:  "healthy",
		Adapter: ModeMock,
		Details: map[string]any{
			"simulated_requisitions_total":   total,
			"simulated_requisitions_pending": pending,
		},
	}
}
