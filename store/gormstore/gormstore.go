/*
Package gormstore implements the ledger and template stores on gorm.

PURPOSE:
  The production backend. PostgreSQL through gorm.io/driver/postgres;
  gorm.io/driver/sqlite is also accepted for single-outlet installs and
  tests.

COMPARE-AND-SWAP:
  UpdatePackageAtomic issues

    UPDATE customer_packages SET ... WHERE id = ? AND version = ? AND kind = ?

  and treats RowsAffected == 0 on an existing row as a lost race. Under
  PostgreSQL READ COMMITTED the losing UPDATE waits for the winner's row
  lock, re-checks the WHERE clause and matches nothing.

TRANSACTIONS:
  WithTx runs fn inside db.Transaction with a Store bound to the tx handle.

ERRORS:
  The connection is opened with TranslateError so duplicate keys surface
  as gorm.ErrDuplicatedKey and a record for a missing package as
  gorm.ErrForeignKeyViolated, regardless of dialect.

SEE ALSO:
  - models.go: Table definitions and conversions
  - store/sqlite: database/sql implementation of the same contract
*/
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// Store implements ledger.TxStore and catalog.TemplateStore.
type Store struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL, e.g.
// "host=localhost user=salon dbname=ledger sslmode=disable".
func OpenPostgres(dsn string) (*Store, error) {
	return Open(postgres.Open(dsn))
}

// OpenSQLite opens a SQLite file through gorm with foreign keys enforced.
func OpenSQLite(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return Open(sqlite.Open(path + sep + "_foreign_keys=on"))
}

// Open connects with the given dialector and migrates the schema.
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&PackageModel{}, &RecordModel{}, &SnapshotModel{}, &TemplateModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle, e.g. for pool tuning.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// =============================================================================
// PACKAGES
// =============================================================================

func (s *Store) CreatePackage(ctx context.Context, p ledger.Package) error {
	m, err := packageModelOf(p)
	if err != nil {
		return generic.NewStorageError("create package", err)
	}
	err = s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: package %s", generic.ErrDuplicateRecord, m.ID)
	}
	if err != nil {
		return generic.NewStorageError("create package", err)
	}
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id generic.PackageID) (ledger.Package, error) {
	var m PackageModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	if err != nil {
		return nil, generic.NewStorageError("get package", err)
	}
	p, err := m.toPackage()
	if err != nil {
		return nil, generic.NewStorageError("decode package", err)
	}
	return p, nil
}

func (s *Store) ListPackagesByOutlet(ctx context.Context, outletID generic.OutletID) ([]ledger.Package, error) {
	return s.findPackages(s.db.WithContext(ctx).Where("outlet_id = ?", string(outletID)))
}

func (s *Store) ListPackages(ctx context.Context) ([]ledger.Package, error) {
	return s.findPackages(s.db.WithContext(ctx))
}

func (s *Store) findPackages(q *gorm.DB) ([]ledger.Package, error) {
	var models []PackageModel
	if err := q.Order("assigned_date ASC, created_at ASC").Find(&models).Error; err != nil {
		return nil, generic.NewStorageError("list packages", err)
	}
	pkgs := make([]ledger.Package, 0, len(models))
	for _, m := range models {
		p, err := m.toPackage()
		if err != nil {
			return nil, generic.NewStorageError("decode package", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// UpdatePackageAtomic writes the balance columns and version of p if the
// stored version still equals expectedVersion.
func (s *Store) UpdatePackageAtomic(ctx context.Context, id generic.PackageID, expectedVersion int64, p ledger.Package) error {
	m, err := packageModelOf(p)
	if err != nil {
		return generic.NewStorageError("update package", err)
	}
	db := s.db.WithContext(ctx)
	res := db.Model(&PackageModel{}).
		Where("id = ? AND version = ? AND kind = ?", string(id), expectedVersion, m.Kind).
		Updates(map[string]interface{}{
			"remaining_service_value": m.RemainingServiceValue,
			"used_sittings":           m.UsedSittings,
			"remaining_sittings":      m.RemainingSittings,
			"version":                 m.Version,
		})
	if res.Error != nil {
		return generic.NewStorageError("update package", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.Model(&PackageModel{}).Where("id = ?", string(id)).Count(&count).Error; err != nil {
		return generic.NewStorageError("update package", err)
	}
	if count == 0 {
		return &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	return generic.ErrConcurrentModification
}

// =============================================================================
// RECORDS AND SNAPSHOTS
// =============================================================================

func (s *Store) AppendRecord(ctx context.Context, r ledger.Record) error {
	m, err := recordModelOf(r)
	if err != nil {
		return generic.NewStorageError("append record", err)
	}
	err = s.db.WithContext(ctx).Create(&m).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: record %s", generic.ErrDuplicateRecord, m.ID)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &generic.NotFoundError{Resource: "package", ID: m.PackageID}
	}
	if missing, cerr := s.packageMissing(ctx, m.PackageID); cerr == nil && missing {
		return &generic.NotFoundError{Resource: "package", ID: m.PackageID}
	}
	return generic.NewStorageError("append record", err)
}

// packageMissing covers drivers that report a foreign key failure without
// a translatable code.
func (s *Store) packageMissing(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&PackageModel{}).Where("id = ?", id).Count(&count).Error
	return count == 0, err
}

func (s *Store) LoadRecords(ctx context.Context, id generic.PackageID) ([]ledger.Record, error) {
	var models []RecordModel
	err := s.db.WithContext(ctx).Where("package_id = ?", string(id)).Order("sequence ASC").Find(&models).Error
	if err != nil {
		return nil, generic.NewStorageError("load records", err)
	}
	records := make([]ledger.Record, 0, len(models))
	for _, m := range models {
		r, err := m.toRecord()
		if err != nil {
			return nil, generic.NewStorageError("decode record", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap ledger.InvoiceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return generic.NewStorageError("append snapshot", err)
	}
	m := SnapshotModel{RecordID: string(snap.RecordID), PackageID: string(snap.PackageID), Payload: string(payload)}
	err = s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: snapshot %s", generic.ErrDuplicateRecord, snap.RecordID)
	}
	if err != nil {
		return generic.NewStorageError("append snapshot", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, id generic.RecordID) (ledger.InvoiceSnapshot, error) {
	var m SnapshotModel
	err := s.db.WithContext(ctx).First(&m, "record_id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.InvoiceSnapshot{}, &generic.NotFoundError{Resource: "snapshot", ID: string(id)}
	}
	if err != nil {
		return ledger.InvoiceSnapshot{}, generic.NewStorageError("get snapshot", err)
	}
	var snap ledger.InvoiceSnapshot
	if err := json.Unmarshal([]byte(m.Payload), &snap); err != nil {
		return ledger.InvoiceSnapshot{}, generic.NewStorageError("decode snapshot", err)
	}
	return snap, nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t catalog.Template) error {
	m := templateModelOf(t)
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: template %s", generic.ErrDuplicateRecord, t.ID)
	}
	if err != nil {
		return generic.NewStorageError("save template", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id generic.TemplateID) (catalog.Template, error) {
	var m TemplateModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Template{}, &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	if err != nil {
		return catalog.Template{}, generic.NewStorageError("get template", err)
	}
	return m.toTemplate(), nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]catalog.Template, error) {
	var models []TemplateModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, generic.NewStorageError("list templates", err)
	}
	templates := make([]catalog.Template, len(models))
	for i, m := range models {
		templates[i] = m.toTemplate()
	}
	return templates, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id generic.TemplateID) error {
	res := s.db.WithContext(ctx).Delete(&TemplateModel{}, "id = ?", string(id))
	if res.Error != nil {
		return generic.NewStorageError("delete template", res.Error)
	}
	if res.RowsAffected == 0 {
		return &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	return nil
}
