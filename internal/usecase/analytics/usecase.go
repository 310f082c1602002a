// Package analytics aggregates decisions for the dashboard and the
// spreadsheet export.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/usecase/policy"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// Days covered by DailyCounts, today included.
const trendDays = 7

type RiskDistribution struct {
	Low    int64 `json:"low"`
	Medium int64 `json:"medium"`
	High   int64 `json:"high"`
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Count int64  `json:"count"`
}

type Summary struct {
	TotalDecisions   int64            `json:"total_decisions"`
	AutoApproved     int64            `json:"auto_approved"`
	ManualApproved   int64            `json:"manual_approved"`
	Held             int64            `json:"held"`
	Rejected         int64            `json:"rejected"`
	AvgRiskScore     float64          `json:"avg_risk_score"`
	AutomationRate   float64          `json:"automation_rate"` // percent of all decisions auto-approved
	RiskDistribution RiskDistribution `json:"risk_distribution"`
	DailyCounts      []DailyCount     `json:"daily_counts"`
}

type Usecase struct {
	repo  decision.Repository
	bands policy.Bands
	now   func() time.Time
}

func NewUsecase(repo decision.Repository, bands policy.Bands) *Usecase {
	return &Usecase{repo: repo, bands: bands, now: time.Now}
}

// WithClock is for tests.
func (u *Usecase) WithClock(f func() time.Time) *Usecase {
	u.now = f
	return u
}

func (u *Usecase) Summary(ctx context.Context) (*Summary, error) {
	today := u.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(trendDays - 1))

	var (
		stats   *decision.Stats
		created []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = u.repo.Stats(gctx, u.bands.Low, u.bands.High)
		return err
	})
	g.Go(func() error {
		var err error
		created, err = u.repo.CreatedSince(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analytics summary: %w", err)
	}

	s := &Summary{
		TotalDecisions: stats.Total,
		AutoApproved:   stats.ByVerdict[decision.VerdictAutoApprove],
		ManualApproved: stats.ByVerdict[decision.VerdictManualApprove],
		Held:           stats.ByVerdict[decision.VerdictHold],
		Rejected:       stats.ByVerdict[decision.VerdictReject],
		AvgRiskScore:   round(stats.AvgRiskScore, 2),
		RiskDistribution: RiskDistribution{
			Low:    stats.LowRisk,
			Medium: stats.MediumRisk,
			High:   stats.HighRisk,
		},
		DailyCounts: dailyCounts(since, created),
	}
	if stats.Total > 0 {
		s.AutomationRate = round(float64(s.AutoApproved)/float64(stats.Total)*100, 1)
	}
	return s, nil
}

// dailyCounts buckets timestamps by UTC day, zero-filling the gaps.
func dailyCounts(since time.Time, created []time.Time) []DailyCount {
	byDay := make(map[string]int64, trendDays)
	for _, ts := range created {
		byDay[ts.UTC().Format(time.DateOnly)]++
	}
	out := make([]DailyCount, 0, trendDays)
	for i := 0; i < trendDays; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DailyCount{Date: day, Count: byDay[day]})
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

var decisionHeaders = []string{
	"Requisition", "Decision", "State", "Risk Score", "Risk Band", "Risk Explanation",
	"Comment", "Commit At", "Committed At", "Attempts", "Error", "Created At",
}

var decisionWidths = []float64{18, 16, 16, 11, 10, 60, 50, 22, 22, 10, 40, 22}

// Export builds a workbook with a "Decisions" sheet (newest first) and a
// "Summary" sheet.
func (u *Usecase) Export(ctx context.Context) (*excelize.File, string, error) {
	rows, err := u.repo.List(ctx, decision.Filter{})
	if err != nil {
		return nil, "", err
	}
	sum, err := u.Summary(ctx)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	const sheet = "Decisions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", err
	}

	header, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	for i, h := range decisionHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s1", col)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, header)
		f.SetColWidth(sheet, col, col, decisionWidths[i])
	}

	for i, d := range rows {
		r := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", r), d.ErpRequisitionID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", r), string(d.Verdict))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", r), string(d.State))
		if d.RiskScore != nil {
			f.SetCellValue(sheet, fmt.Sprintf("D%d", r), *d.RiskScore)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", r), string(u.bands.Classify(*d.RiskScore)))
		}
		f.SetCellValue(sheet, fmt.Sprintf("F%d", r), d.RiskExplanation)
		if d.Comment != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", r), *d.Comment)
		}
		if d.CommitAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("H%d", r), d.CommitAt.UTC().Format(time.RFC3339))
		}
		if d.CommittedAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("I%d", r), d.CommittedAt.UTC().Format(time.RFC3339))
		}
		f.SetCellValue(sheet, fmt.Sprintf("J%d", r), d.Attempts)
		if d.ErrorMessage != nil {
			f.SetCellValue(sheet, fmt.Sprintf("K%d", r), *d.ErrorMessage)
		}
		f.SetCellValue(sheet, fmt.Sprintf("L%d", r), d.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := writeSummarySheet(f, sum, header); err != nil {
		return nil, "", err
	}

	name := fmt.Sprintf("approval_decisions_%s.xlsx", u.now().UTC().Format("20060102_150405"))
	return f, name, nil
}

func writeSummarySheet(f *excelize.File, s *Summary, header int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	pairs := [][2]any{
		{"Total decisions", s.TotalDecisions},
		{"Auto approved", s.AutoApproved},
		{"Manually approved", s.ManualApproved},
		{"Held", s.Held},
		{"Rejected", s.Rejected},
		{"Average risk score", s.AvgRiskScore},
		{"Automation rate (%)", s.AutomationRate},
		{"Low risk", s.RiskDistribution.Low},
		{"Medium risk", s.RiskDistribution.Medium},
		{"High risk", s.RiskDistribution.High},
	}
	for i, p := range pairs {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", i+1), p[0])
		f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), p[1])
	}

	start := len(pairs) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", start), "Date")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", start), "Decisions")
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", start), fmt.Sprintf("B%d", start), header)
	for i, dc := range s.DailyCounts {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", start+1+i), dc.Date)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", start+1+i), dc.Count)
	}
	return f.SetColWidth(sheet, "A", "A", 22)
}
