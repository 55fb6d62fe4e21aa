/*
Package ledger is the system of record for customer packages and the
engine that redeems against them.

PURPOSE:
  - Ledger:    assigns packages to customers (CustomerPackageLedger)
  - Engine:    the ONLY writer of balances (RedemptionEngine)
  - Snapshots: write-once invoice snapshots + receipt regeneration
  - Auditor:   re-checks ledger invariants across every package

KEY CONCEPTS IN THIS FILE (types.go):
  - Package: sealed variant, ValuePackage | SittingsPackage
  - Record:  sealed variant, RedemptionRecord | SittingRedemption
  - InvoiceSnapshot: denormalized post-commit state, keyed by record id

INVARIANTS:
  ValuePackage:    0 <= RemainingServiceValue <= ServiceValue
                   sum(GrandTotal of records) == ServiceValue - RemainingServiceValue
  SittingsPackage: UsedSittings + RemainingSittings == TotalSittings
                   0 <= UsedSittings <= TotalSittings

VERSIONING:
  Every package row carries a Version. Creation writes Version 1 (including
  an initial redemption made at assignment time); each later redemption
  writes Version+1 with a compare-and-swap on the old value. A record's
  Sequence is the Version its commit produced, which orders history.

SEE ALSO:
  - store.go: Persistence contract
  - engine.go: Redemption
  - snapshot.go: Invoice snapshots
*/
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// PACKAGE - Sealed variant over the two package kinds
// =============================================================================

// Package is either a ValuePackage or a SittingsPackage. Handle it with a
// type switch; the unexported method keeps the set closed.
type Package interface {
	PackageID() generic.PackageID
	Kind() catalog.Kind
	Revision() int64
	Outlet() generic.OutletID
	sealedPackage()
}

// ValuePackage is a prepaid credit balance (CustomerPackage).
type ValuePackage struct {
	ID             generic.PackageID
	CustomerName   string
	CustomerMobile string
	TemplateID     generic.TemplateID
	TemplateName   string
	OutletID       generic.OutletID
	AssignedDate   generic.TimePoint

	// Copied from the template at assignment.
	PackageValue decimal.Decimal
	ServiceValue decimal.Decimal

	RemainingServiceValue decimal.Decimal
	Version               int64
}

func (p ValuePackage) PackageID() generic.PackageID { return p.ID }
func (p ValuePackage) Kind() catalog.Kind           { return catalog.KindValue }
func (p ValuePackage) Revision() int64              { return p.Version }
func (p ValuePackage) Outlet() generic.OutletID     { return p.OutletID }
func (ValuePackage) sealedPackage()                 {}

// Exhausted reports whether no credit remains.
func (p ValuePackage) Exhausted() bool { return !p.RemainingServiceValue.IsPositive() }

// RedeemedValue is ServiceValue - RemainingServiceValue.
func (p ValuePackage) RedeemedValue() decimal.Decimal {
	return p.ServiceValue.Sub(p.RemainingServiceValue)
}

// SittingsPackage is a prepaid count of visits (CustomerSittingsPackage).
type SittingsPackage struct {
	ID             generic.PackageID
	CustomerName   string
	CustomerMobile string
	TemplateID     generic.TemplateID
	TemplateName   string
	ServiceID      generic.ServiceID
	ServiceName    string
	ServiceValue   decimal.Decimal // price per sitting at assignment time
	OutletID       generic.OutletID
	AssignedDate   generic.TimePoint

	TotalSittings     int
	UsedSittings      int
	RemainingSittings int
	Version           int64
}

func (p SittingsPackage) PackageID() generic.PackageID { return p.ID }
func (p SittingsPackage) Kind() catalog.Kind           { return catalog.KindSittings }
func (p SittingsPackage) Revision() int64              { return p.Version }
func (p SittingsPackage) Outlet() generic.OutletID     { return p.OutletID }
func (SittingsPackage) sealedPackage()                 {}

// Exhausted reports whether every sitting has been used.
func (p SittingsPackage) Exhausted() bool { return p.RemainingSittings <= 0 }

// =============================================================================
// RECORDS - Append-only redemption history
// =============================================================================

// Record is either a RedemptionRecord or a SittingRedemption.
type Record interface {
	RecordID() generic.RecordID
	Owner() generic.PackageID
	Seq() int64
	Kind() catalog.Kind
	sealedRecord()
}

// LineItem is one service on a value redemption.
type LineItem struct {
	ServiceID   generic.ServiceID
	ServiceName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// RedemptionRecord is one redemption against a value package.
type RedemptionRecord struct {
	ID            generic.RecordID
	PackageID     generic.PackageID
	Sequence      int64
	RedeemedDate  generic.TimePoint
	Items         []LineItem
	StaffID       generic.StaffID
	StaffName     string
	Subtotal      decimal.Decimal
	GSTPercentage decimal.Decimal
	GSTAmount     decimal.Decimal
	GrandTotal    decimal.Decimal
	IsInitial     bool
}

func (r RedemptionRecord) RecordID() generic.RecordID { return r.ID }
func (r RedemptionRecord) Owner() generic.PackageID   { return r.PackageID }
func (r RedemptionRecord) Seq() int64                 { return r.Sequence }
func (r RedemptionRecord) Kind() catalog.Kind         { return catalog.KindValue }
func (RedemptionRecord) sealedRecord()                {}

// SittingRedemption is one consumed sitting.
type SittingRedemption struct {
	ID           generic.RecordID
	PackageID    generic.PackageID
	Sequence     int64
	StaffID      generic.StaffID
	StaffName    string
	RedeemedDate generic.TimePoint
	ServiceName  string
	ServiceValue decimal.Decimal
	SittingIndex int // 1-based
	IsInitial    bool
}

func (r SittingRedemption) RecordID() generic.RecordID { return r.ID }
func (r SittingRedemption) Owner() generic.PackageID   { return r.PackageID }
func (r SittingRedemption) Seq() int64                 { return r.Sequence }
func (r SittingRedemption) Kind() catalog.Kind         { return catalog.KindSittings }
func (SittingRedemption) sealedRecord()                {}

// =============================================================================
// INVOICE SNAPSHOT
// =============================================================================

// InvoiceSnapshot is the package state immediately after one redemption,
// plus the facts of that redemption. It never changes once written and is
// never used to derive live balances.
type InvoiceSnapshot struct {
	RecordID  generic.RecordID
	PackageID generic.PackageID
	Kind      catalog.Kind
	TakenAt   generic.TimePoint

	CustomerName   string
	CustomerMobile string
	OutletID       generic.OutletID
	TemplateName   string
	AssignedDate   generic.TimePoint

	ServiceName  string
	ServiceValue decimal.Decimal

	// Sittings packages
	TotalSittings     int
	UsedSittings      int
	RemainingSittings int
	SittingIndex      int

	// Value packages
	RemainingServiceValue decimal.Decimal

	// The redemption itself
	RedeemedDate  generic.TimePoint
	StaffName     string
	Items         []LineItem
	Subtotal      decimal.Decimal
	GSTPercentage decimal.Decimal
	GSTAmount     decimal.Decimal
	GrandTotal    decimal.Decimal
	IsInitial     bool
}
