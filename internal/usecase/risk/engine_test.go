package risk

import (
	"os"
	"path/filepath"
	"testing"

	"erp-approval-middleware/internal/domain/requisition"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(id string, price, qty float64) requisition.Requisition {
	return requisition.Requisition{
		ErpRequisitionID: id,
		Material:         "MAT-1001",
		Price:            requisition.Amount(price),
		Quantity:         requisition.Amount(qty),
		Currency:         "USD",
		Plant:            "PLANT-US-001",
	}
}

func TestAssess_ProductionProfile(t *testing.T) {
	e := NewEngine(ProductionProfile())

	tests := []struct {
		name        string
		r           requisition.Requisition
		wantScore   float64
		wantReasons int
		wantExpl    string
	}{
		{
			name:      "laptops: moderate total only",
			r:         req("PR-2026-001", 1500, 5),
			wantScore: 0.10,
			wantExpl:  NoRiskExplanation,
		},
		{
			name:        "cnc machine: high total and unit price",
			r:           req("PR-2026-003", 45000, 2),
			wantScore:   0.55,
			wantReasons: 2,
			wantExpl:    "Total value 90000.00 USD exceeds high-value threshold (50000); Unit price 45000.00 USD exceeds historical threshold (5000)",
		},
		{
			name:        "fire suppression: elevated total and unit price",
			r:           req("PR-2026-005", 18500, 1),
			wantScore:   0.35,
			wantReasons: 2,
		},
		{
			name:      "small order",
			r:         req("PR-X", 10, 3),
			wantScore: 0,
			wantExpl:  NoRiskExplanation,
		},
		{
			name:        "large quantity",
			r:           req("PR-Q", 1, 501),
			wantScore:   0.10,
			wantReasons: 1,
			wantExpl:    "Quantity 501 exceeds plant average threshold (500)",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			a, err := e.Assess(tt.r)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, a.Score, 1e-9)
			assert.Len(t, a.Reasons, tt.wantReasons)
			if tt.wantExpl != "" {
				assert.Equal(t, tt.wantExpl, a.Explanation)
			}
		})
	}
}

func TestAssess_KeywordsAndMissingData(t *testing.T) {
	e := NewEngine(ProductionProfile())

	r := requisition.Requisition{
		ErpRequisitionID: "PR-HZ",
		Material:         "chem-acid-20l",
		Plant:            "plant-defense-02",
	}
	a, err := e.Assess(r)
	require.NoError(t, err)
	// material 20 + plant 15 + missing price 5 + missing quantity 5
	assert.InDelta(t, 0.45, a.Score, 1e-9)
	assert.Equal(t, []string{
		"Material 'chem-acid-20l' classified as high-risk category",
		"Requisition from restricted plant 'plant-defense-02'",
		"Unit price data missing, unable to fully assess risk",
		"Quantity data missing, unable to fully assess risk",
	}, a.Reasons)
}

func TestAssess_DemoProfileReachesCeiling(t *testing.T) {
	e := NewEngine(DemoProfile())
	r := req("PR-MAX", 20, 10)
	r.Material = "HAZMAT-01"
	r.Plant = "NUCLEAR-1"

	a, err := e.Assess(r)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.Score, 1e-9)
	assert.Len(t, a.Reasons, 5)
}

func TestAssess_RejectsNegativeAmounts(t *testing.T) {
	e := NewEngine(ProductionProfile())

	_, err := e.Assess(req("PR-NEG", -1, 1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Assess(req("PR-NEG", 1, -1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssess_DeterministicAndBounded(t *testing.T) {
	e := NewEngine(DemoProfile())
	prices := []float64{0, 0.5, 9, 10, 10.01, 25, 99, 101, 5000}
	qtys := []float64{0, 1, 5, 6, 100}
	for _, p := range prices {
		for _, q := range qtys {
			r := req("PR", p, q)
			a1, err := e.Assess(r)
			require.NoError(t, err)
			a2, err := e.Assess(r)
			require.NoError(t, err)
			assert.Equal(t, a1, a2)
			assert.GreaterOrEqual(t, a1.Score, 0.0)
			assert.LessOrEqual(t, a1.Score, 1.0)
		}
	}
}

func TestScoreAndExplainAgree(t *testing.T) {
	e := NewEngine(ProductionProfile())
	r := req("PR-2026-003", 45000, 2)
	s, err := e.Score(r)
	require.NoError(t, err)
	x, err := e.Explain(r)
	require.NoError(t, err)
	a, _ := e.Assess(r)
	assert.Equal(t, a.Score, s)
	assert.Equal(t, a.Explanation, x)
}

func TestNewEngine_NormalisesKeywords(t *testing.T) {
	p := ProductionProfile()
	p.HighRiskWords = []string{" lithium "}
	e := NewEngine(p)
	r := requisition.Requisition{Material: "LITHIUM-CELLS", Price: requisition.Amount(1), Quantity: requisition.Amount(1)}
	a, err := e.Assess(r)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, a.Score, 1e-9)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	t.Setenv("RISK_QTY", "50")
	content := "high_value: 1000\nelevated_value: 500\nmoderate_value: 100\nquantity: ${RISK_QTY}\nhigh_risk_materials: [lithium, hazmat]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadProfile(path, ProductionProfile())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.HighValue)
	assert.Equal(t, 50.0, p.Quantity)
	assert.Equal(t, 5000.0, p.UnitPrice, "unset keys keep the base value")
	assert.Equal(t, []string{"LITHIUM", "HAZMAT"}, p.HighRiskWords)
	assert.Equal(t, defaultRestrictedPlants, p.RestrictedWords)
}

func TestLoadProfile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high_value: 10\nelevated_value: 500\n"), 0o600))

	_, err := LoadProfile(path, ProductionProfile())
	assert.Error(t, err)

	_, err = LoadProfile(filepath.Join(dir, "missing.yaml"), ProductionProfile())
	assert.Error(t, err)
}

func TestMoneyFormatting(t *testing.T) {
	assert.Equal(t, "12.50 EUR", money(decimal.RequireFromString("12.5"), "EUR"))
	assert.Equal(t, "12.50", money(decimal.RequireFromString("12.5"), ""))
}
