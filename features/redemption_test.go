package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
	"github.com/warp/package-ledger/store/memory"
)

const outlet = generic.OutletID("out-indiranagar")

type redemptionTestContext struct {
	store    *memory.Memory
	dir      *catalog.Directory
	catalog  *catalog.Catalog
	svc      *ledger.Service
	template catalog.Template
	pkgID    generic.PackageID
	results  []*ledger.RedemptionResult
	err      error
	wins     int
}

func (c *redemptionTestContext) reset() {
	c.store = memory.New()
	c.dir = catalog.NewDirectory()
	c.catalog = catalog.New(c.store, nil)
	c.svc = ledger.NewService(c.store, c.catalog, ledger.Options{Services: c.dir, Staff: c.dir, Outlets: c.dir})
	c.template = catalog.Template{}
	c.pkgID = ""
	c.results = nil
	c.err = nil
	c.wins = 0
}

func (c *redemptionTestContext) record(res *ledger.RedemptionResult, err error) {
	c.err = err
	if err == nil {
		c.results = append(c.results, res)
	}
}

// =============================================================================
// GIVEN
// =============================================================================

func (c *redemptionTestContext) aStylistNamed(name string) error {
	c.dir.PutStaff(catalog.Staff{ID: generic.StaffID("stf-" + name), Name: name})
	return nil
}

func (c *redemptionTestContext) aValueTemplatePayingForOfServices(paid, worth int) error {
	tpl, err := c.catalog.CreateValueTemplate(context.Background(), catalog.ValueTemplateInput{
		PackageValue: decimal.NewFromInt(int64(paid)),
		ServiceValue: decimal.NewFromInt(int64(worth)),
	})
	c.template = tpl
	return err
}

func (c *redemptionTestContext) aSittingsTemplateOf(paid, free int, service string) error {
	c.dir.PutService(catalog.Service{ID: "svc-" + generic.ServiceID(service), Name: service, Price: generic.NewMoney(500)})
	tpl, err := c.catalog.CreateSittingsTemplate(context.Background(), catalog.SittingsTemplateInput{
		PaidSittings: paid,
		FreeSittings: free,
		ServiceName:  service,
	})
	c.template = tpl
	return err
}

func (c *redemptionTestContext) theCustomerIsAssignedTheValuePackage(customer string) error {
	res, err := c.svc.AssignValuePackage(context.Background(), ledger.AssignValueRequest{
		CustomerName:   customer,
		CustomerMobile: "9876543210",
		TemplateID:     c.template.ID,
		OutletID:       outlet,
	})
	if err != nil {
		return err
	}
	c.pkgID = res.Package.PackageID()
	return nil
}

func (c *redemptionTestContext) assignSittings(customer string, initial *ledger.StaffRef) error {
	res, err := c.svc.AssignSittingsPackage(context.Background(), ledger.AssignSittingsRequest{
		CustomerName:   customer,
		CustomerMobile: "9876543210",
		TemplateID:     c.template.ID,
		OutletID:       outlet,
		InitialStaff:   initial,
	})
	if err != nil {
		return err
	}
	c.pkgID = res.Package.PackageID()
	return nil
}

func (c *redemptionTestContext) theCustomerIsAssignedTheSittingsPackage(customer string) error {
	return c.assignSittings(customer, nil)
}

func (c *redemptionTestContext) theCustomerIsAssignedTheSittingsPackageWithAnInitialSittingBy(customer, staff string) error {
	return c.assignSittings(customer, &ledger.StaffRef{Name: staff})
}

// =============================================================================
// WHEN
// =============================================================================

func (c *redemptionTestContext) redeemsForAtGST(staff, service string, price float64, gst int) error {
	c.record(c.svc.RedeemValue(context.Background(), ledger.RedeemValueRequest{
		PackageID:     c.pkgID,
		Items:         []ledger.LineItem{{ServiceName: service, Quantity: 1, UnitPrice: generic.NewMoney(price)}},
		GSTPercentage: decimal.NewFromInt(int64(gst)),
		StaffName:     staff,
	}))
	return nil
}

func (c *redemptionTestContext) redeemsASitting(staff string) error {
	return c.redeemsSittingNumber(staff, 0)
}

func (c *redemptionTestContext) redeemsSittingNumber(staff string, index int) error {
	c.record(c.svc.RedeemSitting(context.Background(), ledger.RedeemSittingRequest{
		PackageID:    c.pkgID,
		StaffName:    staff,
		SittingIndex: index,
	}))
	return nil
}

func (c *redemptionTestContext) terminalsRedeemTheFullRemainingBalanceAtOnce(n int) error {
	pkg, err := c.valuePackage()
	if err != nil {
		return err
	}
	full := pkg.RemainingServiceValue

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.svc.RedeemValue(context.Background(), ledger.RedeemValueRequest{
				PackageID: c.pkgID,
				Items:     []ledger.LineItem{{ServiceName: "Bridal Makeup", Quantity: 1, UnitPrice: full}},
				StaffName: "Priya",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				c.wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if !errors.Is(err, generic.ErrInsufficientBalance) && !errors.Is(err, generic.ErrConflict) {
			return fmt.Errorf("unexpected error from losing terminal: %w", err)
		}
	}
	return nil
}

// =============================================================================
// THEN
// =============================================================================

func (c *redemptionTestContext) theRedemptionSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success, got %v", c.err)
	}
	return nil
}

var errorKinds = map[string]error{
	"validation":            generic.ErrValidation,
	"not found":             generic.ErrNotFound,
	"insufficient balance":  generic.ErrInsufficientBalance,
	"insufficient sittings": generic.ErrInsufficientSittings,
	"invalid state":         generic.ErrInvalidState,
	"conflict":              generic.ErrConflict,
}

func (c *redemptionTestContext) theRedemptionFailsWith(kind string) error {
	want, ok := errorKinds[kind]
	if !ok {
		return fmt.Errorf("unknown error kind %q", kind)
	}
	if c.err == nil {
		return fmt.Errorf("expected %s, redemption succeeded", kind)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %s, got %v", kind, c.err)
	}
	return nil
}

func (c *redemptionTestContext) theGrandTotalIs(want float64) error {
	if len(c.results) == 0 {
		return errors.New("no successful redemption")
	}
	rec, ok := c.results[len(c.results)-1].Record.(ledger.RedemptionRecord)
	if !ok {
		return errors.New("last redemption was not a value redemption")
	}
	if !rec.GrandTotal.Equal(generic.NewMoney(want)) {
		return fmt.Errorf("expected grand total %v, got %s", want, rec.GrandTotal)
	}
	return nil
}

func (c *redemptionTestContext) valuePackage() (ledger.ValuePackage, error) {
	p, err := c.svc.GetPackage(context.Background(), c.pkgID)
	if err != nil {
		return ledger.ValuePackage{}, err
	}
	vp, ok := p.(ledger.ValuePackage)
	if !ok {
		return ledger.ValuePackage{}, fmt.Errorf("package %s is not a value package", c.pkgID)
	}
	return vp, nil
}

func (c *redemptionTestContext) theRemainingServiceValueIs(want float64) error {
	vp, err := c.valuePackage()
	if err != nil {
		return err
	}
	if !vp.RemainingServiceValue.Equal(generic.NewMoney(want)) {
		return fmt.Errorf("expected remaining %v, got %s", want, vp.RemainingServiceValue)
	}
	return nil
}

func (c *redemptionTestContext) sittingsUsedAndRemain(used, remaining int) error {
	p, err := c.svc.GetPackage(context.Background(), c.pkgID)
	if err != nil {
		return err
	}
	sp, ok := p.(ledger.SittingsPackage)
	if !ok {
		return fmt.Errorf("package %s is not a sittings package", c.pkgID)
	}
	if sp.UsedSittings != used || sp.RemainingSittings != remaining {
		return fmt.Errorf("expected %d used / %d remaining, got %d / %d",
			used, remaining, sp.UsedSittings, sp.RemainingSittings)
	}
	return nil
}

func (c *redemptionTestContext) thePackageHasRedemptionRecords(n int) error {
	records, err := c.svc.RedemptionHistory(context.Background(), c.pkgID)
	if err != nil {
		return err
	}
	if len(records) != n {
		return fmt.Errorf("expected %d records, got %d", n, len(records))
	}
	return nil
}

func (c *redemptionTestContext) theSnapshotOfRedemptionShows(n, used, remaining int) error {
	if n < 1 || n > len(c.results) {
		return fmt.Errorf("no redemption %d (have %d)", n, len(c.results))
	}
	snap, err := c.svc.Snapshot(context.Background(), c.results[n-1].Record.RecordID())
	if err != nil {
		return err
	}
	if snap.UsedSittings != used || snap.RemainingSittings != remaining {
		return fmt.Errorf("snapshot %d: expected %d used / %d remaining, got %d / %d",
			n, used, remaining, snap.UsedSittings, snap.RemainingSittings)
	}
	return nil
}

func (c *redemptionTestContext) exactlyOfThemSucceeds(n int) error {
	if c.wins != n {
		return fmt.Errorf("expected %d winning terminals, got %d", n, c.wins)
	}
	return nil
}

func (c *redemptionTestContext) theLedgerAuditIsClean() error {
	report, err := c.svc.Audit(context.Background())
	if err != nil {
		return err
	}
	if !report.Clean() {
		return fmt.Errorf("audit findings: %v", report.Findings)
	}
	return nil
}

// =============================================================================
// SUITE
// =============================================================================

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &redemptionTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a stylist named "([^"]*)"$`, tc.aStylistNamed)
	ctx.Step(`^a value template paying (\d+) for (\d+) of services$`, tc.aValueTemplatePayingForOfServices)
	ctx.Step(`^a sittings template of (\d+) paid and (\d+) free "([^"]*)" sittings$`, tc.aSittingsTemplateOf)
	ctx.Step(`^the customer "([^"]*)" is assigned the value package$`, tc.theCustomerIsAssignedTheValuePackage)
	ctx.Step(`^the customer "([^"]*)" is assigned the sittings package$`, tc.theCustomerIsAssignedTheSittingsPackage)
	ctx.Step(`^the customer "([^"]*)" is assigned the sittings package with an initial sitting by "([^"]*)"$`,
		tc.theCustomerIsAssignedTheSittingsPackageWithAnInitialSittingBy)

	// When steps
	ctx.Step(`^"([^"]*)" redeems "([^"]*)" for (\d+(?:\.\d+)?) at (\d+)% GST$`, tc.redeemsForAtGST)
	ctx.Step(`^"([^"]*)" redeems a sitting$`, tc.redeemsASitting)
	ctx.Step(`^"([^"]*)" redeems sitting number (\d+)$`, tc.redeemsSittingNumber)
	ctx.Step(`^(\d+) terminals redeem the full remaining balance at once$`, tc.terminalsRedeemTheFullRemainingBalanceAtOnce)

	// Then steps
	ctx.Step(`^the redemption succeeds$`, tc.theRedemptionSucceeds)
	ctx.Step(`^the redemption fails with "([^"]*)"$`, tc.theRedemptionFailsWith)
	ctx.Step(`^the grand total is (\d+(?:\.\d+)?)$`, tc.theGrandTotalIs)
	ctx.Step(`^the remaining service value is (\d+(?:\.\d+)?)$`, tc.theRemainingServiceValueIs)
	ctx.Step(`^(\d+) sittings? (?:is|are) used and (\d+) remain$`, tc.sittingsUsedAndRemain)
	ctx.Step(`^the package has (\d+) redemption records?$`, tc.thePackageHasRedemptionRecords)
	ctx.Step(`^the snapshot of redemption (\d+) shows (\d+) used and (\d+) remaining$`, tc.theSnapshotOfRedemptionShows)
	ctx.Step(`^exactly (\d+) of them succeeds?$`, tc.exactlyOfThemSucceeds)
	ctx.Step(`^the ledger audit is clean$`, tc.theLedgerAuditIsClean)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"redemption.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
