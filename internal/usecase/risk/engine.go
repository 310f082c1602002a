// Package risk scores staged requisitions. It is pure: no I/O, and the same
// requisition always yields the same score and explanation.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"erp-approval-middleware/internal/domain/requisition"

	"github.com/shopspring/decimal"
)

// Points added per rule, on a 0..100 scale.
const (
	pointsHighValue     = 40.0
	pointsElevatedValue = 20.0
	pointsModerateValue = 10.0
	pointsUnitPrice     = 15.0
	pointsQuantity      = 10.0
	pointsMaterial      = 20.0
	pointsPlant         = 15.0
	pointsMissingField  = 5.0
	maxPoints           = 100.0
)

const NoRiskExplanation = "All parameters within normal operational thresholds"

var ErrInvalidInput = errors.New("requisition cannot be scored")

type Engine struct {
	p Profile
}

func NewEngine(p Profile) *Engine {
	p.HighRiskWords = upper(p.HighRiskWords)
	p.RestrictedWords = upper(p.RestrictedWords)
	return &Engine{p: p}
}

func (e *Engine) Profile() Profile { return e.p }

// Assessment is the score in [0,1] plus the rule messages that produced it.
type Assessment struct {
	Score       float64
	Reasons     []string
	Explanation string
}

// Assess scores r. Negative amounts are rejected with ErrInvalidInput.
func (e *Engine) Assess(r requisition.Requisition) (Assessment, error) {
	if err := validate(r); err != nil {
		return Assessment{}, err
	}
	points, reasons := e.evaluate(r)
	if points > maxPoints {
		points = maxPoints
	}
	expl := NoRiskExplanation
	if len(reasons) > 0 {
		expl = strings.Join(reasons, "; ")
	}
	return Assessment{Score: points / maxPoints, Reasons: reasons, Explanation: expl}, nil
}

func (e *Engine) Score(r requisition.Requisition) (float64, error) {
	a, err := e.Assess(r)
	return a.Score, err
}

func (e *Engine) Explain(r requisition.Requisition) (string, error) {
	a, err := e.Assess(r)
	return a.Explanation, err
}

func validate(r requisition.Requisition) error {
	if r.Price.Valid && r.Price.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidInput, r.Price.Decimal.String())
	}
	if r.Quantity.Valid && r.Quantity.Decimal.IsNegative() {
		return fmt.Errorf("%w: negative quantity %s", ErrInvalidInput, r.Quantity.Decimal.String())
	}
	return nil
}

// evaluate runs the rules in explanation order. Points and messages come
// from the same branch so they never disagree.
func (e *Engine) evaluate(r requisition.Requisition) (float64, []string) {
	var points float64
	var reasons []string

	if total, ok := r.TotalValue(); ok {
		switch {
		case total.GreaterThan(dec(e.p.HighValue)):
			points += pointsHighValue
			reasons = append(reasons, fmt.Sprintf("Total value %s exceeds high-value threshold (%s)",
				money(total, r.Currency), dec(e.p.HighValue).String()))
		case total.GreaterThan(dec(e.p.ElevatedValue)):
			points += pointsElevatedValue
			reasons = append(reasons, fmt.Sprintf("Total value %s exceeds elevated threshold (%s)",
				money(total, r.Currency), dec(e.p.ElevatedValue).String()))
		case total.GreaterThan(dec(e.p.ModerateValue)):
			points += pointsModerateValue
		}
	}

	if r.Price.Valid && r.Price.Decimal.GreaterThan(dec(e.p.UnitPrice)) {
		points += pointsUnitPrice
		reasons = append(reasons, fmt.Sprintf("Unit price %s exceeds historical threshold (%s)",
			money(r.Price.Decimal, r.Currency), dec(e.p.UnitPrice).String()))
	}

	if r.Quantity.Valid && r.Quantity.Decimal.GreaterThan(dec(e.p.Quantity)) {
		points += pointsQuantity
		reasons = append(reasons, fmt.Sprintf("Quantity %s exceeds plant average threshold (%s)",
			r.Quantity.Decimal.Round(0).String(), dec(e.p.Quantity).String()))
	}

	if r.Material != "" && containsAny(r.Material, e.p.HighRiskWords) {
		points += pointsMaterial
		reasons = append(reasons, fmt.Sprintf("Material '%s' classified as high-risk category", r.Material))
	}

	if r.Plant != "" && containsAny(r.Plant, e.p.RestrictedWords) {
		points += pointsPlant
		reasons = append(reasons, fmt.Sprintf("Requisition from restricted plant '%s'", r.Plant))
	}

	if !r.Price.Valid {
		points += pointsMissingField
		reasons = append(reasons, "Unit price data missing, unable to fully assess risk")
	}
	if !r.Quantity.Valid {
		points += pointsMissingField
		reasons = append(reasons, "Quantity data missing, unable to fully assess risk")
	}
	return points, reasons
}

func containsAny(s string, words []string) bool {
	s = strings.ToUpper(s)
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func money(d decimal.Decimal, currency string) string {
	if currency == "" {
		return d.StringFixed(2)
	}
	return d.StringFixed(2) + " " + currency
}
