package requisition

import (
	"time"

	"github.com/shopspring/decimal"
)

// Requisition is a purchase requisition item as staged in the ERP.
// It is owned by the ERP and only mirrored here as scoring input.
type Requisition struct {
	ErpRequisitionID string              `json:"erp_requisition_id"`
	ItemNumber       string              `json:"item_number,omitempty"`
	Material         string              `json:"material,omitempty"`
	Description      string              `json:"description,omitempty"`
	Quantity         decimal.NullDecimal `json:"quantity"`
	Unit             string              `json:"unit,omitempty"`
	Price            decimal.NullDecimal `json:"price"`
	Currency         string              `json:"currency,omitempty"`
	Plant            string              `json:"plant,omitempty"`
	Supplier         string              `json:"supplier,omitempty"`
	CreatedAt        time.Time           `json:"created_at,omitempty"`
}

// TotalValue is price * quantity; ok is false when either is missing.
func (r Requisition) TotalValue() (total decimal.Decimal, ok bool) {
	if !r.Price.Valid || !r.Quantity.Valid {
		return decimal.Zero, false
	}
	return r.Price.Decimal.Mul(r.Quantity.Decimal), true
}

// Amount builds a present decimal value, for seeds and tests.
func Amount(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}
