// Package memory provides an in-memory ledger and template store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	state     state
	templates map[generic.TemplateID]catalog.Template
	tplOrder  []generic.TemplateID
}

// state is everything WithTx may need to roll back.
type state struct {
	packages  map[generic.PackageID]ledger.Package
	order     []generic.PackageID
	records   map[generic.PackageID][]ledger.Record
	recordIDs map[generic.RecordID]bool
	snapshots map[generic.RecordID]ledger.InvoiceSnapshot
}

func newState() state {
	return state{
		packages:  make(map[generic.PackageID]ledger.Package),
		records:   make(map[generic.PackageID][]ledger.Record),
		recordIDs: make(map[generic.RecordID]bool),
		snapshots: make(map[generic.RecordID]ledger.InvoiceSnapshot),
	}
}

func New() *Memory {
	return &Memory{
		state:     newState(),
		templates: make(map[generic.TemplateID]catalog.Template),
	}
}

// =============================================================================
// PACKAGES
// =============================================================================

func (m *Memory) CreatePackage(_ context.Context, p ledger.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createPackage(p)
}

func (m *Memory) GetPackage(_ context.Context, id generic.PackageID) (ledger.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getPackage(id)
}

func (m *Memory) ListPackagesByOutlet(_ context.Context, outletID generic.OutletID) ([]ledger.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listPackages(outletID), nil
}

func (m *Memory) ListPackages(_ context.Context) ([]ledger.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.listPackages(""), nil
}

func (m *Memory) UpdatePackageAtomic(_ context.Context, id generic.PackageID, expectedVersion int64, p ledger.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updatePackage(id, expectedVersion, p)
}

// =============================================================================
// RECORDS AND SNAPSHOTS
// =============================================================================

func (m *Memory) AppendRecord(_ context.Context, r ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendRecord(r)
}

func (m *Memory) LoadRecords(_ context.Context, id generic.PackageID) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.loadRecords(id), nil
}

func (m *Memory) AppendSnapshot(_ context.Context, s ledger.InvoiceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.appendSnapshot(s)
}

func (m *Memory) GetSnapshot(_ context.Context, id generic.RecordID) (ledger.InvoiceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getSnapshot(id)
}

// =============================================================================
// TEMPLATES - catalog.TemplateStore
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t catalog.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; ok {
		return fmt.Errorf("%w: template %s", generic.ErrDuplicateRecord, t.ID)
	}
	m.templates[t.ID] = t
	m.tplOrder = append(m.tplOrder, t.ID)
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id generic.TemplateID) (catalog.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return catalog.Template{}, &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	return t, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]catalog.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Template, 0, len(m.tplOrder))
	for _, id := range m.tplOrder {
		out = append(out, m.templates[id])
	}
	return out, nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id generic.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	delete(m.templates, id)
	for i, tid := range m.tplOrder {
		if tid == id {
			m.tplOrder = append(m.tplOrder[:i], m.tplOrder[i+1:]...)
			break
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole of fn, so transactions are serial.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.clone()
	if err := fn(&txView{state: &m.state}); err != nil {
		m.state = saved
		return err
	}
	return nil
}

// txView operates on the locked state directly.
type txView struct {
	state *state
}

func (v *txView) CreatePackage(_ context.Context, p ledger.Package) error {
	return v.state.createPackage(p)
}

func (v *txView) GetPackage(_ context.Context, id generic.PackageID) (ledger.Package, error) {
	return v.state.getPackage(id)
}

func (v *txView) ListPackagesByOutlet(_ context.Context, outletID generic.OutletID) ([]ledger.Package, error) {
	return v.state.listPackages(outletID), nil
}

func (v *txView) ListPackages(_ context.Context) ([]ledger.Package, error) {
	return v.state.listPackages(""), nil
}

func (v *txView) UpdatePackageAtomic(_ context.Context, id generic.PackageID, expectedVersion int64, p ledger.Package) error {
	return v.state.updatePackage(id, expectedVersion, p)
}

func (v *txView) AppendRecord(_ context.Context, r ledger.Record) error {
	return v.state.appendRecord(r)
}

func (v *txView) LoadRecords(_ context.Context, id generic.PackageID) ([]ledger.Record, error) {
	return v.state.loadRecords(id), nil
}

func (v *txView) AppendSnapshot(_ context.Context, s ledger.InvoiceSnapshot) error {
	return v.state.appendSnapshot(s)
}

func (v *txView) GetSnapshot(_ context.Context, id generic.RecordID) (ledger.InvoiceSnapshot, error) {
	return v.state.getSnapshot(id)
}

// =============================================================================
// STATE - Callers hold the lock
// =============================================================================

func (s *state) createPackage(p ledger.Package) error {
	if p == nil {
		return generic.NewStorageError("create package", fmt.Errorf("nil package"))
	}
	id := p.PackageID()
	if _, ok := s.packages[id]; ok {
		return fmt.Errorf("%w: package %s", generic.ErrDuplicateRecord, id)
	}
	s.packages[id] = p
	s.order = append(s.order, id)
	return nil
}

func (s *state) getPackage(id generic.PackageID) (ledger.Package, error) {
	p, ok := s.packages[id]
	if !ok {
		return nil, &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	return p, nil
}

// listPackages returns packages in assignment order; "" means every outlet.
func (s *state) listPackages(outletID generic.OutletID) []ledger.Package {
	out := make([]ledger.Package, 0, len(s.order))
	for _, id := range s.order {
		p := s.packages[id]
		if outletID == "" || p.Outlet() == outletID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return assignedDate(out[i]).Before(assignedDate(out[j]))
	})
	return out
}

func (s *state) updatePackage(id generic.PackageID, expectedVersion int64, p ledger.Package) error {
	cur, ok := s.packages[id]
	if !ok {
		return &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	if cur.Revision() != expectedVersion {
		return generic.ErrConcurrentModification
	}
	if p.PackageID() != id || p.Kind() != cur.Kind() {
		return generic.NewStorageError("update package", fmt.Errorf("package %s cannot change id or kind", id))
	}
	s.packages[id] = p
	return nil
}

func (s *state) appendRecord(r ledger.Record) error {
	if r.RecordID() == "" {
		return generic.NewStorageError("append record", fmt.Errorf("record id is empty"))
	}
	if s.recordIDs[r.RecordID()] {
		return fmt.Errorf("%w: record %s", generic.ErrDuplicateRecord, r.RecordID())
	}
	if _, ok := s.packages[r.Owner()]; !ok {
		return &generic.NotFoundError{Resource: "package", ID: string(r.Owner())}
	}

	r = copyRecord(r)
	recs := s.records[r.Owner()]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Seq() > r.Seq() })
	recs = append(recs, nil)
	copy(recs[i+1:], recs[i:])
	recs[i] = r
	s.records[r.Owner()] = recs
	s.recordIDs[r.RecordID()] = true
	return nil
}

func (s *state) loadRecords(id generic.PackageID) []ledger.Record {
	recs := s.records[id]
	out := make([]ledger.Record, len(recs))
	for i, r := range recs {
		out[i] = copyRecord(r)
	}
	return out
}

func (s *state) appendSnapshot(snap ledger.InvoiceSnapshot) error {
	if _, ok := s.snapshots[snap.RecordID]; ok {
		return fmt.Errorf("%w: snapshot %s", generic.ErrDuplicateRecord, snap.RecordID)
	}
	snap.Items = copyItems(snap.Items)
	s.snapshots[snap.RecordID] = snap
	return nil
}

func (s *state) getSnapshot(id generic.RecordID) (ledger.InvoiceSnapshot, error) {
	snap, ok := s.snapshots[id]
	if !ok {
		return ledger.InvoiceSnapshot{}, &generic.NotFoundError{Resource: "snapshot", ID: string(id)}
	}
	snap.Items = copyItems(snap.Items)
	return snap, nil
}

// copyRecord detaches a record's line items from the caller's slice.
// Everything else in a record is a value.
func copyRecord(r ledger.Record) ledger.Record {
	if vr, ok := r.(ledger.RedemptionRecord); ok {
		vr.Items = copyItems(vr.Items)
		return vr
	}
	return r
}

func copyItems(items []ledger.LineItem) []ledger.LineItem {
	if items == nil {
		return nil
	}
	return append([]ledger.LineItem(nil), items...)
}

func (s *state) clone() state {
	c := newState()
	for k, v := range s.packages {
		c.packages[k] = v
	}
	c.order = append([]generic.PackageID(nil), s.order...)
	for k, v := range s.records {
		c.records[k] = append([]ledger.Record(nil), v...)
	}
	for k, v := range s.recordIDs {
		c.recordIDs[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	return c
}

func assignedDate(p ledger.Package) generic.TimePoint {
	switch p := p.(type) {
	case ledger.ValuePackage:
		return p.AssignedDate
	case ledger.SittingsPackage:
		return p.AssignedDate
	}
	return generic.TimePoint{}
}
