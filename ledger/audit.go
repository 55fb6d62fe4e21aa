package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// AUDITOR - Re-derives every package's balance from its records
// =============================================================================

// Finding is one invariant violation.
type Finding struct {
	PackageID generic.PackageID
	Problem   string
}

// AuditReport summarises one audit run.
type AuditReport struct {
	RanAt    time.Time
	Checked  int
	Findings []Finding
}

func (r AuditReport) Clean() bool { return len(r.Findings) == 0 }

// Auditor checks, for every package:
//
//	value:    0 <= remaining <= serviceValue
//	          sum(grandTotal) == serviceValue - remaining
//	sittings: used + remaining == total, 0 <= used <= total
//	          records are sittings 1..used in order
type Auditor struct {
	store  Store
	logger *zap.Logger
}

func NewAuditor(store Store, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{store: store, logger: logger}
}

func (a *Auditor) Run(ctx context.Context) (AuditReport, error) {
	report := AuditReport{RanAt: time.Now().UTC()}

	pkgs, err := a.store.ListPackages(ctx)
	if err != nil {
		return report, err
	}
	for _, p := range pkgs {
		records, err := a.store.LoadRecords(ctx, p.PackageID())
		if err != nil {
			return report, err
		}
		report.Checked++
		for _, problem := range checkPackage(p, records) {
			report.Findings = append(report.Findings, Finding{PackageID: p.PackageID(), Problem: problem})
		}
	}

	if report.Clean() {
		a.logger.Info("ledger audit clean", zap.Int("checked", report.Checked))
	} else {
		for _, f := range report.Findings {
			a.logger.Error("ledger invariant violated",
				zap.String("package_id", string(f.PackageID)), zap.String("problem", f.Problem))
		}
	}
	return report, nil
}

func checkPackage(p Package, records []Record) []string {
	var problems []string
	switch p := p.(type) {
	case ValuePackage:
		if p.RemainingServiceValue.IsNegative() {
			problems = append(problems, "remaining service value is negative")
		}
		if p.RemainingServiceValue.GreaterThan(p.ServiceValue) {
			problems = append(problems, "remaining service value exceeds service value")
		}
		redeemed := decimal.Zero
		for _, r := range records {
			if rr, ok := r.(RedemptionRecord); ok {
				redeemed = redeemed.Add(rr.GrandTotal)
			}
		}
		if !redeemed.Equal(p.RedeemedValue()) {
			problems = append(problems, fmt.Sprintf("records total %s but balance moved by %s",
				redeemed.StringFixed(generic.MoneyPlaces), p.RedeemedValue().StringFixed(generic.MoneyPlaces)))
		}

	case SittingsPackage:
		if p.UsedSittings+p.RemainingSittings != p.TotalSittings {
			problems = append(problems, fmt.Sprintf("used %d + remaining %d != total %d",
				p.UsedSittings, p.RemainingSittings, p.TotalSittings))
		}
		if p.UsedSittings < 0 || p.UsedSittings > p.TotalSittings {
			problems = append(problems, fmt.Sprintf("used %d outside 0..%d", p.UsedSittings, p.TotalSittings))
		}
		if len(records) != p.UsedSittings {
			problems = append(problems, fmt.Sprintf("%d sitting records for %d used sittings", len(records), p.UsedSittings))
		}
		for i, r := range records {
			if sr, ok := r.(SittingRedemption); ok && sr.SittingIndex != i+1 {
				problems = append(problems, fmt.Sprintf("record %s has sitting index %d, expected %d", sr.ID, sr.SittingIndex, i+1))
			}
		}
	}
	return problems
}
