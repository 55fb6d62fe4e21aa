/*
ledger.go - Customer package ledger (assignment and reads)

PURPOSE:
  Stamps customer packages out of catalog templates. A package is created
  once, at full balance, and from then on only the Engine changes it.

INITIAL REDEMPTIONS:
  Both assignment paths can redeem immediately:
  - value:    InitialItems are redeemed (IsInitial=true) against the new row
  - sittings: InitialStaff consumes sitting 1 (IsInitial=true)

  Creation, record and snapshot are written in ONE store transaction.
  If the initial redemption is rejected nothing is created.

TEMPLATE COPIES:
  The package copies PackageValue/ServiceValue (value) or the sitting
  counts and service (sittings) from the template. Deleting the template
  later does not affect the package.

SEE ALSO:
  - engine.go: Later redemptions
  - catalog/catalog.go: Templates
*/
package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
)

// TemplateSource resolves templates. *catalog.Catalog satisfies it.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id generic.TemplateID) (catalog.Template, error)
}

// Options configures the ledger, engine and snapshot store. All fields are
// optional.
type Options struct {
	Services    catalog.ServiceCatalog
	Staff       catalog.StaffDirectory
	Outlets     catalog.OutletDirectory
	MaxAttempts int
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// =============================================================================
// REQUESTS
// =============================================================================

type AssignValueRequest struct {
	CustomerName   string
	CustomerMobile string
	TemplateID     generic.TemplateID
	OutletID       generic.OutletID
	AssignedDate   generic.TimePoint // zero = today

	// Optional initial redemption, committed together with the assignment.
	InitialItems  []LineItem
	GSTPercentage decimal.Decimal
	StaffID       generic.StaffID
	StaffName     string
}

// StaffRef identifies who performed a redemption.
type StaffRef struct {
	ID   generic.StaffID
	Name string
}

type AssignSittingsRequest struct {
	CustomerName   string
	CustomerMobile string
	TemplateID     generic.TemplateID
	ServiceID      generic.ServiceID // defaults to the template's
	ServiceName    string            // defaults to the template's
	ServiceValue   decimal.Decimal   // price per sitting; zero = service catalog price
	OutletID       generic.OutletID
	AssignedDate   generic.TimePoint // zero = today

	// InitialStaff, when set, redeems sitting 1 as part of the assignment.
	InitialStaff *StaffRef
}

// AssignResult is the created package and, when an initial redemption was
// requested, its record and snapshot.
type AssignResult struct {
	Package  Package
	Initial  Record           // nil without initial redemption
	Snapshot *InvoiceSnapshot // nil without initial redemption

	// InitialErr is why a requested initial redemption was not applied.
	// The package is still created, at full balance.
	InitialErr error
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the CustomerPackageLedger.
type Ledger struct {
	store     TxStore
	templates TemplateSource
	engine    *Engine
	services  catalog.ServiceCatalog
	logger    *zap.Logger
}

func NewLedger(store TxStore, templates TemplateSource, engine *Engine, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		store:     store,
		templates: templates,
		engine:    engine,
		services:  opts.Services,
		logger:    opts.Logger,
	}
}

// AssignValuePackage creates a value package at full balance, optionally
// redeeming InitialItems in the same transaction. A rejected initial
// redemption (bad items, overdraw) does not block the assignment: the
// package is created untouched and the rejection is reported in
// AssignResult.InitialErr.
func (l *Ledger) AssignValuePackage(ctx context.Context, req AssignValueRequest) (*AssignResult, error) {
	name, mobile, err := validateCustomer(req.CustomerName, req.CustomerMobile)
	if err != nil {
		return nil, err
	}
	tpl, err := l.templateFor(ctx, req.TemplateID, req.OutletID, catalog.KindValue)
	if err != nil {
		return nil, err
	}

	pkg := ValuePackage{
		ID:                    generic.PackageID(generic.NewID("pkg")),
		CustomerName:          name,
		CustomerMobile:        mobile,
		TemplateID:            tpl.ID,
		TemplateName:          tpl.DisplayName(),
		OutletID:              req.OutletID,
		AssignedDate:          req.AssignedDate.OrToday(),
		PackageValue:          tpl.PackageValue,
		ServiceValue:          tpl.ServiceValue,
		RemainingServiceValue: tpl.ServiceValue,
		Version:               1,
	}

	result := &AssignResult{Package: pkg}
	var initial Record
	if len(req.InitialItems) > 0 {
		next, r, snap, err := l.initialValue(ctx, pkg, req)
		switch {
		case err == nil:
			pkg, initial = next, r
			result = &AssignResult{Package: next, Initial: r, Snapshot: &snap}
		case generic.IsClientError(err):
			l.logger.Info("initial redemption rejected",
				zap.String("package_id", string(pkg.ID)),
				zap.Error(err))
			result.InitialErr = err
		default:
			return nil, err
		}
	}

	if err := l.create(ctx, pkg, initial, result.Snapshot); err != nil {
		return nil, err
	}
	l.logger.Info("value package assigned",
		zap.String("package_id", string(pkg.ID)),
		zap.String("template_id", string(tpl.ID)),
		zap.String("outlet_id", string(pkg.OutletID)),
		zap.Bool("initial_redemption", initial != nil))
	return result, nil
}

// AssignSittingsPackage creates a sittings package, optionally consuming
// the initial sitting in the same transaction.
func (l *Ledger) AssignSittingsPackage(ctx context.Context, req AssignSittingsRequest) (*AssignResult, error) {
	name, mobile, err := validateCustomer(req.CustomerName, req.CustomerMobile)
	if err != nil {
		return nil, err
	}
	tpl, err := l.templateFor(ctx, req.TemplateID, req.OutletID, catalog.KindSittings)
	if err != nil {
		return nil, err
	}

	serviceID, serviceName := req.ServiceID, strings.TrimSpace(req.ServiceName)
	if serviceName == "" {
		serviceName = tpl.ServiceName
	}
	if serviceID == "" {
		serviceID = tpl.ServiceID
	}
	serviceValue, err := l.sittingPrice(ctx, serviceName, req.ServiceValue)
	if err != nil {
		return nil, err
	}

	total := tpl.TotalSittings()
	pkg := SittingsPackage{
		ID:                generic.PackageID(generic.NewID("pkg")),
		CustomerName:      name,
		CustomerMobile:    mobile,
		TemplateID:        tpl.ID,
		TemplateName:      tpl.DisplayName(),
		ServiceID:         serviceID,
		ServiceName:       serviceName,
		ServiceValue:      serviceValue,
		OutletID:          req.OutletID,
		AssignedDate:      req.AssignedDate.OrToday(),
		TotalSittings:     total,
		RemainingSittings: total,
		Version:           1,
	}

	result := &AssignResult{Package: pkg}
	var initial Record
	if req.InitialStaff != nil {
		staffID, staffName, err := l.engine.resolveStaff(ctx, req.InitialStaff.ID, req.InitialStaff.Name, true)
		if err != nil {
			return nil, err
		}
		next, r, snap := applySitting(pkg, staffID, staffName, pkg.AssignedDate, true)
		pkg, initial = next, r
		result = &AssignResult{Package: next, Initial: r, Snapshot: &snap}
	}

	if err := l.create(ctx, pkg, initial, result.Snapshot); err != nil {
		return nil, err
	}
	l.logger.Info("sittings package assigned",
		zap.String("package_id", string(pkg.ID)),
		zap.String("template_id", string(tpl.ID)),
		zap.Int("total_sittings", total),
		zap.Bool("initial_sitting", initial != nil))
	return result, nil
}

// GetPackage returns the current state of a package.
func (l *Ledger) GetPackage(ctx context.Context, id generic.PackageID) (Package, error) {
	return l.store.GetPackage(ctx, id)
}

// ListPackagesByOutlet returns every package issued at an outlet.
func (l *Ledger) ListPackagesByOutlet(ctx context.Context, outletID generic.OutletID) ([]Package, error) {
	return l.store.ListPackagesByOutlet(ctx, outletID)
}

// RedemptionHistory returns a package's records, oldest first.
func (l *Ledger) RedemptionHistory(ctx context.Context, id generic.PackageID) ([]Record, error) {
	if _, err := l.store.GetPackage(ctx, id); err != nil {
		return nil, err
	}
	return l.store.LoadRecords(ctx, id)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (l *Ledger) templateFor(ctx context.Context, id generic.TemplateID, outletID generic.OutletID, kind catalog.Kind) (catalog.Template, error) {
	if strings.TrimSpace(string(outletID)) == "" {
		return catalog.Template{}, generic.NewValidationError("outletId", "is required")
	}
	tpl, err := l.templates.GetTemplate(ctx, id)
	if err != nil {
		return catalog.Template{}, err
	}
	if err := catalog.IsKind(tpl, kind); err != nil {
		return catalog.Template{}, err
	}
	if !tpl.VisibleTo(outletID) {
		return catalog.Template{}, generic.NewValidationError("templateId", "is not offered at outlet "+string(outletID))
	}
	return tpl, nil
}

// initialValue prepares and applies the assignment-time redemption of a
// value package.
func (l *Ledger) initialValue(ctx context.Context, pkg ValuePackage, req AssignValueRequest) (ValuePackage, RedemptionRecord, InvoiceSnapshot, error) {
	prep, err := l.engine.prepareValue(ctx, req.InitialItems, req.GSTPercentage, req.StaffID, req.StaffName, pkg.AssignedDate)
	if err != nil {
		return pkg, RedemptionRecord{}, InvoiceSnapshot{}, err
	}
	return applyValue(pkg, prep, true)
}

// sittingPrice returns the explicit price, or the catalog price of the
// service when none was given.
func (l *Ledger) sittingPrice(ctx context.Context, serviceName string, explicit decimal.Decimal) (decimal.Decimal, error) {
	if explicit.IsNegative() {
		return decimal.Zero, generic.NewValidationError("serviceValue", "cannot be negative")
	}
	if explicit.IsPositive() || l.services == nil {
		return generic.RoundMoney(explicit), nil
	}
	svc, err := l.services.LookupService(ctx, serviceName)
	if generic.IsNotFound(err) {
		return decimal.Zero, generic.NewValidationError("serviceValue", "is required when "+serviceName+" is not in the service catalog")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return svc.Price, nil
}

// create writes the package and, if present, its initial record and snapshot.
func (l *Ledger) create(ctx context.Context, pkg Package, rec Record, snap *InvoiceSnapshot) error {
	return l.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreatePackage(ctx, pkg); err != nil {
			return err
		}
		if rec == nil || snap == nil {
			return nil
		}
		if err := tx.AppendRecord(ctx, rec); err != nil {
			return err
		}
		return tx.AppendSnapshot(ctx, *snap)
	})
}
