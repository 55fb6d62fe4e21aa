/*
engine.go - Redemption engine (the only writer of package balances)

PURPOSE:
  Decrements value balances and sitting counts. Every redemption is a
  read-validate-write cycle committed with compare-and-swap on the package
  version, so two terminals redeeming the same package can never both see
  the pre-decrement balance and both succeed.

REDEEM VALUE:
  1. Read package                          -> NotFound / InvalidState (kind)
  2. Resolve + validate items, GST         -> ValidationError
  3. subtotal, gst, grand                  -> see ComputeTotals
  4. grand > remaining                     -> InsufficientBalance
  5. WithTx: CAS update + record + snapshot
  6. Lost CAS race                         -> back to 1, at most MaxAttempts
                                              times, then Conflict

REDEEM SITTING:
  1. Read package                          -> NotFound / InvalidState (kind)
  2. Requested index 1                     -> InvalidState (reserved for the
                                              assignment-time initial sitting)
  3. Remaining == 0                        -> InsufficientSittings
  4. Requested index != Used+1             -> InvalidState (stale view)
  5. WithTx: CAS update + record + snapshot, same retry discipline

STATES:
  A package either has capacity or is exhausted. There is no closed state:
  an exhausted package rejects redemptions indefinitely.

SEE ALSO:
  - ledger.go: Assignment (uses applyValue/applySitting for initial redemptions)
  - store.go: UpdatePackageAtomic contract
*/
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
)

// DefaultMaxAttempts bounds the optimistic-concurrency retries.
const DefaultMaxAttempts = 5

// =============================================================================
// REQUESTS / RESULTS
// =============================================================================

type RedeemValueRequest struct {
	PackageID     generic.PackageID
	Items         []LineItem
	GSTPercentage decimal.Decimal
	StaffID       generic.StaffID
	StaffName     string
	RedeemedDate  generic.TimePoint // zero = today
}

type RedeemSittingRequest struct {
	PackageID    generic.PackageID
	StaffID      generic.StaffID
	StaffName    string
	RedeemedDate generic.TimePoint // zero = today

	// SittingIndex, when non-zero, is the slot the caller believes is next.
	// It must equal UsedSittings+1 and may never be 1.
	SittingIndex int
}

// RedemptionResult is the committed state of one redemption.
type RedemptionResult struct {
	Package  Package
	Record   Record
	Snapshot InvoiceSnapshot
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the RedemptionEngine.
type Engine struct {
	store       TxStore
	services    catalog.ServiceCatalog // optional
	staff       catalog.StaffDirectory // optional
	maxAttempts int
	logger      *zap.Logger
}

func NewEngine(store TxStore, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:       store,
		services:    opts.Services,
		staff:       opts.Staff,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}
}

// RedeemValue redeems services against a value package.
func (e *Engine) RedeemValue(ctx context.Context, req RedeemValueRequest) (*RedemptionResult, error) {
	var (
		prep   *preparedValue
		result *RedemptionResult
	)
	err := e.retry(ctx, req.PackageID, func() error {
		vp, err := e.loadValue(ctx, req.PackageID)
		if err != nil {
			return err
		}
		if prep == nil {
			p, err := e.prepareValue(ctx, req.Items, req.GSTPercentage, req.StaffID, req.StaffName, req.RedeemedDate)
			if err != nil {
				return err
			}
			prep = &p
		}

		next, rec, snap, err := applyValue(vp, *prep, false)
		if err != nil {
			return err
		}
		if err := e.commit(ctx, vp, next, rec, snap); err != nil {
			return err
		}
		result = &RedemptionResult{Package: next, Record: rec, Snapshot: snap}
		return nil
	})
	if err != nil {
		e.logRejection("value redemption rejected", req.PackageID, err)
		return nil, err
	}

	rec := result.Record.(RedemptionRecord)
	e.logger.Info("value redemption committed",
		zap.String("package_id", string(req.PackageID)),
		zap.String("record_id", string(rec.ID)),
		zap.String("grand_total", rec.GrandTotal.StringFixed(generic.MoneyPlaces)),
		zap.String("remaining", result.Snapshot.RemainingServiceValue.StringFixed(generic.MoneyPlaces)))
	return result, nil
}

// RedeemSitting consumes the next sitting of a sittings package.
// An explicit SittingIndex of 1 is always rejected, but an unindexed call on
// a package assigned without an initial sitting consumes slot 1 as a regular
// (non-initial) sitting.
func (e *Engine) RedeemSitting(ctx context.Context, req RedeemSittingRequest) (*RedemptionResult, error) {
	var (
		staffResolved bool
		staffID       generic.StaffID
		staffName     string
		result        *RedemptionResult
	)
	err := e.retry(ctx, req.PackageID, func() error {
		sp, err := e.loadSittings(ctx, req.PackageID)
		if err != nil {
			return err
		}
		if req.SittingIndex == 1 {
			return &generic.InvalidStateError{PackageID: sp.ID,
				Reason: "sitting 1 is the initial sitting and can only be redeemed at assignment"}
		}
		if !staffResolved {
			staffID, staffName, err = e.resolveStaff(ctx, req.StaffID, req.StaffName, true)
			if err != nil {
				return err
			}
			staffResolved = true
		}
		if sp.Exhausted() {
			return &generic.InsufficientSittingsError{PackageID: sp.ID, Total: sp.TotalSittings, Used: sp.UsedSittings}
		}
		if req.SittingIndex != 0 && req.SittingIndex != sp.UsedSittings+1 {
			return &generic.InvalidStateError{PackageID: sp.ID,
				Reason: "requested sitting is not the next sitting, re-fetch the package"}
		}

		next, rec, snap := applySitting(sp, staffID, staffName, req.RedeemedDate.OrToday(), false)
		if err := e.commit(ctx, sp, next, rec, snap); err != nil {
			return err
		}
		result = &RedemptionResult{Package: next, Record: rec, Snapshot: snap}
		return nil
	})
	if err != nil {
		e.logRejection("sitting redemption rejected", req.PackageID, err)
		return nil, err
	}

	e.logger.Info("sitting redemption committed",
		zap.String("package_id", string(req.PackageID)),
		zap.String("record_id", string(result.Record.RecordID())),
		zap.Int("sitting_index", result.Snapshot.SittingIndex),
		zap.Int("remaining_sittings", result.Snapshot.RemainingSittings))
	return result, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// retry runs attempt until it returns something other than a lost CAS race.
func (e *Engine) retry(ctx context.Context, id generic.PackageID, attempt func() error) error {
	for n := 1; n <= e.maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return generic.NewStorageError("redeem", err)
		}
		err := attempt()
		if !errors.Is(err, generic.ErrConcurrentModification) {
			return err
		}
		e.logger.Debug("redemption lost version race, retrying",
			zap.String("package_id", string(id)), zap.Int("attempt", n))
	}
	return &generic.ConflictError{PackageID: id, Attempts: e.maxAttempts}
}

// commit writes next, rec and snap as one unit, conditional on prev's version.
func (e *Engine) commit(ctx context.Context, prev, next Package, rec Record, snap InvoiceSnapshot) error {
	return e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdatePackageAtomic(ctx, prev.PackageID(), prev.Revision(), next); err != nil {
			return err
		}
		if err := tx.AppendRecord(ctx, rec); err != nil {
			return err
		}
		return tx.AppendSnapshot(ctx, snap)
	})
}

func (e *Engine) loadValue(ctx context.Context, id generic.PackageID) (ValuePackage, error) {
	p, err := e.store.GetPackage(ctx, id)
	if err != nil {
		return ValuePackage{}, err
	}
	switch p := p.(type) {
	case ValuePackage:
		return p, nil
	case SittingsPackage:
		return ValuePackage{}, &generic.InvalidStateError{PackageID: id, Reason: "sittings packages are redeemed per sitting"}
	default:
		return ValuePackage{}, &generic.InvalidStateError{PackageID: id, Reason: "unknown package kind"}
	}
}

func (e *Engine) loadSittings(ctx context.Context, id generic.PackageID) (SittingsPackage, error) {
	p, err := e.store.GetPackage(ctx, id)
	if err != nil {
		return SittingsPackage{}, err
	}
	switch p := p.(type) {
	case SittingsPackage:
		return p, nil
	case ValuePackage:
		return SittingsPackage{}, &generic.InvalidStateError{PackageID: id, Reason: "value packages are redeemed by service line items"}
	default:
		return SittingsPackage{}, &generic.InvalidStateError{PackageID: id, Reason: "unknown package kind"}
	}
}

type preparedValue struct {
	items     []LineItem
	totals    Totals
	staffID   generic.StaffID
	staffName string
	date      generic.TimePoint
}

// prepareValue resolves items against the service catalog and validates
// everything that does not depend on the current balance.
func (e *Engine) prepareValue(ctx context.Context, items []LineItem, gst decimal.Decimal,
	staffID generic.StaffID, staffName string, date generic.TimePoint) (preparedValue, error) {

	resolved, err := e.resolveItems(ctx, items)
	if err != nil {
		return preparedValue{}, err
	}
	valid, err := validateItems(resolved)
	if err != nil {
		return preparedValue{}, err
	}
	if err := validateGST(gst); err != nil {
		return preparedValue{}, err
	}
	staffID, staffName, err = e.resolveStaff(ctx, staffID, staffName, false)
	if err != nil {
		return preparedValue{}, err
	}
	return preparedValue{
		items:     valid,
		totals:    ComputeTotals(valid, gst),
		staffID:   staffID,
		staffName: staffName,
		date:      date.OrToday(),
	}, nil
}

// resolveItems fills a missing service id or price from the service catalog.
func (e *Engine) resolveItems(ctx context.Context, items []LineItem) ([]LineItem, error) {
	out := make([]LineItem, len(items))
	copy(out, items)
	if e.services == nil {
		return out, nil
	}
	for i, it := range out {
		if strings.TrimSpace(it.ServiceName) == "" || (it.ServiceID != "" && it.UnitPrice.IsPositive()) {
			continue
		}
		svc, err := e.services.LookupService(ctx, it.ServiceName)
		if generic.IsNotFound(err) {
			continue // validation reports the missing price
		}
		if err != nil {
			return nil, err
		}
		if it.ServiceID == "" {
			out[i].ServiceID = svc.ID
		}
		if !it.UnitPrice.IsPositive() {
			out[i].UnitPrice = svc.Price
		}
	}
	return out, nil
}

// resolveStaff fills StaffID from the directory when only a name was given.
func (e *Engine) resolveStaff(ctx context.Context, id generic.StaffID, name string, required bool) (generic.StaffID, string, error) {
	name = strings.TrimSpace(name)
	if name == "" && id == "" {
		if required {
			return "", "", generic.NewValidationError("staffName", "is required")
		}
		return "", "", nil
	}
	if id != "" || e.staff == nil || name == "" {
		return id, name, nil
	}
	s, err := e.staff.LookupStaff(ctx, name)
	if generic.IsNotFound(err) {
		return "", "", generic.NewValidationError("staffName", "does not match any staff member")
	}
	if err != nil {
		return "", "", err
	}
	return s.ID, s.Name, nil
}

func (e *Engine) logRejection(msg string, id generic.PackageID, err error) {
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		e.logger.Debug(msg, zap.String("package_id", string(id)), zap.Error(err))
		return
	}
	e.logger.Warn(msg, zap.String("package_id", string(id)), zap.Error(err))
}

// =============================================================================
// PURE TRANSITIONS
// =============================================================================

// applyValue computes the post-redemption package, record and snapshot.
// For an initial redemption the package is being created, so the version
// stays at 1; otherwise it advances by one.
func applyValue(p ValuePackage, prep preparedValue, initial bool) (ValuePackage, RedemptionRecord, InvoiceSnapshot, error) {
	grand := prep.totals.GrandTotal
	if grand.GreaterThan(p.RemainingServiceValue) {
		return ValuePackage{}, RedemptionRecord{}, InvoiceSnapshot{}, &generic.InsufficientBalanceError{
			PackageID: p.ID,
			Available: p.RemainingServiceValue,
			Requested: grand,
			Shortfall: grand.Sub(p.RemainingServiceValue),
		}
	}

	next := p
	next.RemainingServiceValue = p.RemainingServiceValue.Sub(grand)
	if !initial {
		next.Version = p.Version + 1
	}

	rec := RedemptionRecord{
		ID:            generic.RecordID(generic.NewID("rdm")),
		PackageID:     p.ID,
		Sequence:      next.Version,
		RedeemedDate:  prep.date,
		Items:         prep.items,
		StaffID:       prep.staffID,
		StaffName:     prep.staffName,
		Subtotal:      prep.totals.Subtotal,
		GSTPercentage: prep.totals.GSTPercentage,
		GSTAmount:     prep.totals.GSTAmount,
		GrandTotal:    grand,
		IsInitial:     initial,
	}
	return next, rec, valueSnapshot(next, rec), nil
}

// applySitting consumes sitting Used+1. Callers check capacity first.
func applySitting(p SittingsPackage, staffID generic.StaffID, staffName string, date generic.TimePoint, initial bool) (SittingsPackage, SittingRedemption, InvoiceSnapshot) {
	next := p
	next.UsedSittings = p.UsedSittings + 1
	next.RemainingSittings = p.RemainingSittings - 1
	if !initial {
		next.Version = p.Version + 1
	}

	rec := SittingRedemption{
		ID:           generic.RecordID(generic.NewID("sit")),
		PackageID:    p.ID,
		Sequence:     next.Version,
		StaffID:      staffID,
		StaffName:    staffName,
		RedeemedDate: date,
		ServiceName:  p.ServiceName,
		ServiceValue: p.ServiceValue,
		SittingIndex: next.UsedSittings,
		IsInitial:    initial,
	}
	return next, rec, sittingSnapshot(next, rec)
}
