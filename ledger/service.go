package ledger

import (
	"context"

	"github.com/warp/package-ledger/generic"
)

// Service is the surface the HTTP layer consumes: assignment, redemption,
// history and snapshots over one store.
type Service struct {
	Ledger    *Ledger
	Engine    *Engine
	Snapshots *Snapshots
	Auditor   *Auditor
}

func NewService(store TxStore, templates TemplateSource, opts Options) *Service {
	opts = opts.withDefaults()
	engine := NewEngine(store, opts)
	return &Service{
		Ledger:    NewLedger(store, templates, engine, opts),
		Engine:    engine,
		Snapshots: NewSnapshots(store, opts),
		Auditor:   NewAuditor(store, opts.Logger),
	}
}

func (s *Service) AssignValuePackage(ctx context.Context, req AssignValueRequest) (*AssignResult, error) {
	return s.Ledger.AssignValuePackage(ctx, req)
}

func (s *Service) AssignSittingsPackage(ctx context.Context, req AssignSittingsRequest) (*AssignResult, error) {
	return s.Ledger.AssignSittingsPackage(ctx, req)
}

func (s *Service) RedeemValue(ctx context.Context, req RedeemValueRequest) (*RedemptionResult, error) {
	return s.Engine.RedeemValue(ctx, req)
}

func (s *Service) RedeemSitting(ctx context.Context, req RedeemSittingRequest) (*RedemptionResult, error) {
	return s.Engine.RedeemSitting(ctx, req)
}

func (s *Service) GetPackage(ctx context.Context, id generic.PackageID) (Package, error) {
	return s.Ledger.GetPackage(ctx, id)
}

func (s *Service) ListPackagesByOutlet(ctx context.Context, outletID generic.OutletID) ([]Package, error) {
	return s.Ledger.ListPackagesByOutlet(ctx, outletID)
}

func (s *Service) RedemptionHistory(ctx context.Context, id generic.PackageID) ([]Record, error) {
	return s.Ledger.RedemptionHistory(ctx, id)
}

func (s *Service) Snapshot(ctx context.Context, recordID generic.RecordID) (InvoiceSnapshot, error) {
	return s.Snapshots.Get(ctx, recordID)
}

func (s *Service) Receipt(ctx context.Context, recordID generic.RecordID) (Receipt, error) {
	return s.Snapshots.Receipt(ctx, recordID)
}

func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	return s.Auditor.Run(ctx)
}
