/*
Package catalog defines reusable package templates and the directories the
ledger consults (services, staff, outlets).

PURPOSE:
  A template is the "menu item" a salon sells: either a value template
  ("pay 20000, get 30000 of services") or a sittings template ("3 haircuts
  + 1 free"). Customer packages are stamped out of templates by the ledger
  and copy what they need, so templates can be deleted freely.

OUTLET SCOPING:
  OutletID == ""  -> global template, visible to every outlet
  OutletID == "x" -> visible only to outlet x

  The catalog stores the scope; callers (the ledger, the API) enforce it
  with Template.VisibleTo.

SEE ALSO:
  - catalog.go: Create/delete/list operations and change notifications
  - directory.go: ServiceCatalog, StaffDirectory, OutletDirectory
  - ledger/ledger.go: Assignment from templates
*/
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/package-ledger/generic"
)

// Kind distinguishes the two template (and package) variants.
type Kind string

const (
	KindValue    Kind = "value"
	KindSittings Kind = "sittings"
)

// Template is a value or sittings template. Fields not belonging to the
// template's Kind are zero. Templates are immutable once created.
type Template struct {
	ID       generic.TemplateID
	Kind     Kind
	Name     string
	OutletID generic.OutletID // empty = global

	// Value templates
	PackageValue decimal.Decimal // amount the customer pays
	ServiceValue decimal.Decimal // redeemable credit

	// Sittings templates
	PaidSittings int
	FreeSittings int
	ServiceID    generic.ServiceID
	ServiceName  string

	CreatedAt generic.TimePoint
}

// TotalSittings is PaidSittings + FreeSittings. It is never stored.
func (t Template) TotalSittings() int {
	return t.PaidSittings + t.FreeSittings
}

// IsGlobal reports whether the template is offered at every outlet.
func (t Template) IsGlobal() bool {
	return t.OutletID == ""
}

// VisibleTo reports whether an outlet may sell this template.
func (t Template) VisibleTo(outletID generic.OutletID) bool {
	return t.IsGlobal() || t.OutletID == outletID
}

// DisplayName returns Name, or a derived label when the template was
// created without one.
func (t Template) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	switch t.Kind {
	case KindValue:
		return fmt.Sprintf("Pay %s Get %s", t.PackageValue.String(), t.ServiceValue.String())
	case KindSittings:
		return fmt.Sprintf("%s %d+%d", t.ServiceName, t.PaidSittings, t.FreeSittings)
	}
	return string(t.ID)
}
