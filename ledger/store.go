/*
store.go - Persistence contract for packages, records and snapshots

PURPOSE:
  Defines the interface between the ledger and the database. Different
  implementations use SQLite, PostgreSQL (gorm) or in-memory storage.

KEY INTERFACES:
  Store:   Single-statement operations
  TxStore: Store + WithTx for atomic multi-table writes

WRITE RULES:
  - Package rows: CreatePackage once, then UpdatePackageAtomic only
  - Records:      AppendRecord only. No Update, No Delete.
  - Snapshots:    AppendSnapshot only, write-once per record id

COMPARE-AND-SWAP:
  UpdatePackageAtomic(id, expectedVersion, pkg) writes pkg only if the row
  still has expectedVersion, else returns generic.ErrConcurrentModification.
  SQL stores implement this as

    UPDATE customer_packages SET ..., version = ? WHERE id = ? AND version = ?

  and treat zero rows affected as a lost race.

ATOMICITY:
  The engine commits balance + record + snapshot inside one WithTx call.
  If fn returns an error nothing it wrote is visible.

ERRORS:
  Unknown ids      -> *generic.NotFoundError
  Duplicate ids    -> generic.ErrDuplicateRecord
  Lost CAS race    -> generic.ErrConcurrentModification
  Anything else    -> *generic.StorageError

IMPLEMENTATIONS:
  - store/memory:    In-memory, for tests and dev
  - store/sqlite:    database/sql + go-sqlite3
  - store/gormstore: gorm, PostgreSQL in production

SEE ALSO:
  - engine.go: The only caller of UpdatePackageAtomic
  - store/storetest: Conformance suite every implementation runs
*/
package ledger

import (
	"context"

	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreatePackage inserts a new package row.
	CreatePackage(ctx context.Context, p Package) error

	GetPackage(ctx context.Context, id generic.PackageID) (Package, error)

	// ListPackagesByOutlet returns an outlet's packages ordered by assignment.
	ListPackagesByOutlet(ctx context.Context, outletID generic.OutletID) ([]Package, error)

	// ListPackages returns every package. Used by the auditor.
	ListPackages(ctx context.Context) ([]Package, error)

	// UpdatePackageAtomic replaces the row if its version is still expectedVersion.
	UpdatePackageAtomic(ctx context.Context, id generic.PackageID, expectedVersion int64, p Package) error

	// AppendRecord persists a redemption record. Append-only.
	AppendRecord(ctx context.Context, r Record) error

	// LoadRecords returns a package's records ordered by Sequence.
	LoadRecords(ctx context.Context, packageID generic.PackageID) ([]Record, error)

	// AppendSnapshot persists a snapshot. Write-once per RecordID.
	AppendSnapshot(ctx context.Context, s InvoiceSnapshot) error

	GetSnapshot(ctx context.Context, recordID generic.RecordID) (InvoiceSnapshot, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
