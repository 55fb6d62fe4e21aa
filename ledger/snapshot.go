package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// SNAPSHOT BUILDERS - Post-commit state frozen per record
// =============================================================================

func valueSnapshot(p ValuePackage, r RedemptionRecord) InvoiceSnapshot {
	return InvoiceSnapshot{
		RecordID:              r.ID,
		PackageID:             p.ID,
		Kind:                  catalog.KindValue,
		TakenAt:               generic.Today(),
		CustomerName:          p.CustomerName,
		CustomerMobile:        p.CustomerMobile,
		OutletID:              p.OutletID,
		TemplateName:          p.TemplateName,
		AssignedDate:          p.AssignedDate,
		ServiceName:           joinServiceNames(r.Items),
		ServiceValue:          p.ServiceValue,
		RemainingServiceValue: p.RemainingServiceValue,
		RedeemedDate:          r.RedeemedDate,
		StaffName:             r.StaffName,
		Items:                 append([]LineItem(nil), r.Items...),
		Subtotal:              r.Subtotal,
		GSTPercentage:         r.GSTPercentage,
		GSTAmount:             r.GSTAmount,
		GrandTotal:            r.GrandTotal,
		IsInitial:             r.IsInitial,
	}
}

func sittingSnapshot(p SittingsPackage, r SittingRedemption) InvoiceSnapshot {
	return InvoiceSnapshot{
		RecordID:          r.ID,
		PackageID:         p.ID,
		Kind:              catalog.KindSittings,
		TakenAt:           generic.Today(),
		CustomerName:      p.CustomerName,
		CustomerMobile:    p.CustomerMobile,
		OutletID:          p.OutletID,
		TemplateName:      p.TemplateName,
		AssignedDate:      p.AssignedDate,
		ServiceName:       p.ServiceName,
		ServiceValue:      p.ServiceValue,
		TotalSittings:     p.TotalSittings,
		UsedSittings:      p.UsedSittings,
		RemainingSittings: p.RemainingSittings,
		SittingIndex:      r.SittingIndex,
		RedeemedDate:      r.RedeemedDate,
		StaffName:         r.StaffName,
		IsInitial:         r.IsInitial,
	}
}

func joinServiceNames(items []LineItem) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.ServiceName
	}
	return strings.Join(names, ", ")
}

// =============================================================================
// SNAPSHOTS - InvoiceSnapshotStore
// =============================================================================

// Snapshots reads and writes invoice snapshots. The engine writes them as
// part of each redemption commit; Record exists for replaying history into
// a fresh store.
type Snapshots struct {
	store   Store
	outlets catalog.OutletDirectory // optional
	logger  *zap.Logger
}

func NewSnapshots(store Store, opts Options) *Snapshots {
	opts = opts.withDefaults()
	return &Snapshots{store: store, outlets: opts.Outlets, logger: opts.Logger}
}

// Record appends a snapshot. A second snapshot for the same record id fails
// with generic.ErrDuplicateRecord.
func (s *Snapshots) Record(ctx context.Context, snap InvoiceSnapshot) error {
	if snap.RecordID == "" {
		return generic.NewValidationError("recordId", "is required")
	}
	return s.store.AppendSnapshot(ctx, snap)
}

// Get returns the snapshot written for a redemption record.
func (s *Snapshots) Get(ctx context.Context, recordID generic.RecordID) (InvoiceSnapshot, error) {
	return s.store.GetSnapshot(ctx, recordID)
}

// Receipt is everything a receipt shows, rebuilt from a snapshot. Rendering
// it is the caller's job.
type Receipt struct {
	InvoiceNumber string
	Outlet        catalog.Outlet
	InvoiceSnapshot
}

// Receipt regenerates the receipt of a past redemption. Only the snapshot
// is consulted for numbers, so later redemptions never change it. Outlet
// details are best-effort: an unknown outlet leaves them blank.
func (s *Snapshots) Receipt(ctx context.Context, recordID generic.RecordID) (Receipt, error) {
	snap, err := s.store.GetSnapshot(ctx, recordID)
	if err != nil {
		return Receipt{}, err
	}

	outlet := catalog.Outlet{ID: snap.OutletID}
	if s.outlets != nil {
		o, err := s.outlets.GetOutlet(ctx, snap.OutletID)
		switch {
		case err == nil:
			outlet = o
		case generic.IsNotFound(err):
			s.logger.Debug("receipt outlet not in directory", zap.String("outlet_id", string(snap.OutletID)))
		default:
			return Receipt{}, err
		}
	}

	return Receipt{
		InvoiceNumber:   InvoiceNumber(snap),
		Outlet:          outlet,
		InvoiceSnapshot: snap,
	}, nil
}

// InvoiceNumber derives a stable invoice number from a snapshot, e.g.
// "INV-20250310-3F2A9C".
func InvoiceNumber(snap InvoiceSnapshot) string {
	id := strings.ToUpper(string(snap.RecordID))
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return fmt.Sprintf("INV-%s-%s", snap.RedeemedDate.Time.Format("20060102"), id)
}
