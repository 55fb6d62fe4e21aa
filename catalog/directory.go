package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================
// The ledger consumes these but does not own them. Lookups are by display
// name because that is what staff pick on the billing screen.

type Service struct {
	ID    generic.ServiceID
	Name  string
	Price decimal.Decimal
}

type Staff struct {
	ID   generic.StaffID
	Name string
}

type Outlet struct {
	ID      generic.OutletID
	Name    string
	Address string
	GSTIN   string
	Phone   string
}

// ServiceCatalog resolves a service name to its id and current price.
type ServiceCatalog interface {
	LookupService(ctx context.Context, name string) (Service, error)
}

// StaffDirectory resolves a staff member by name.
type StaffDirectory interface {
	LookupStaff(ctx context.Context, name string) (Staff, error)
}

// OutletDirectory returns the outlet details printed on receipts.
type OutletDirectory interface {
	GetOutlet(ctx context.Context, id generic.OutletID) (Outlet, error)
}

// =============================================================================
// DIRECTORY - In-memory implementation of all three
// =============================================================================

// Directory is a thread-safe, map-backed ServiceCatalog, StaffDirectory and
// OutletDirectory. Names are matched case-insensitively.
type Directory struct {
	mu       sync.RWMutex
	services map[string]Service
	staff    map[string]Staff
	outlets  map[generic.OutletID]Outlet
}

func NewDirectory() *Directory {
	return &Directory{
		services: make(map[string]Service),
		staff:    make(map[string]Staff),
		outlets:  make(map[generic.OutletID]Outlet),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (d *Directory) PutService(s Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services[nameKey(s.Name)] = s
}

func (d *Directory) PutStaff(s Staff) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[nameKey(s.Name)] = s
}

func (d *Directory) PutOutlet(o Outlet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outlets[o.ID] = o
}

func (d *Directory) LookupService(_ context.Context, name string) (Service, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.services[nameKey(name)]
	if !ok {
		return Service{}, &generic.NotFoundError{Resource: "service", ID: name}
	}
	return s, nil
}

func (d *Directory) LookupStaff(_ context.Context, name string) (Staff, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.staff[nameKey(name)]
	if !ok {
		return Staff{}, &generic.NotFoundError{Resource: "staff", ID: name}
	}
	return s, nil
}

func (d *Directory) GetOutlet(_ context.Context, id generic.OutletID) (Outlet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.outlets[id]
	if !ok {
		return Outlet{}, &generic.NotFoundError{Resource: "outlet", ID: string(id)}
	}
	return o, nil
}
