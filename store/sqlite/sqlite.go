/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStore and catalog.TemplateStore using SQLite. In
  production the gormstore package runs the same contract on PostgreSQL.

INTERFACES IMPLEMENTED:
  ledger.Store:          Packages, records, snapshots
  ledger.TxStore:        WithTx for the engine's three-row commits
  catalog.TemplateStore: Package templates

KEY TABLES:
  customer_packages:  One row per package, both kinds (kind column)
  redemption_records: Append-only history, both kinds
  invoice_snapshots:  Write-once JSON payload per record
  package_templates:  Catalog

WRITE RULES:
  - customer_packages: only balance columns and version change after insert
  - redemption_records: No UPDATE, No DELETE
  - invoice_snapshots:  record_id is the primary key, a second insert fails

COMPARE-AND-SWAP:
  UPDATE customer_packages SET ..., version = ? WHERE id = ? AND version = ?
  Zero rows affected on an existing row -> generic.ErrConcurrentModification

CONNECTIONS:
  The pool is capped at one connection. ":memory:" databases are per
  connection, and a single writer is all SQLite allows anyway. Reads made
  while a transaction is open go through the transaction.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
  - store/gormstore: PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	ops
	db *sql.DB
	mu sync.Mutex // serialises WithTx
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{ops: ops{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customer_packages (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('value', 'sittings')),
		customer_name TEXT NOT NULL,
		customer_mobile TEXT NOT NULL,
		template_id TEXT NOT NULL,
		template_name TEXT NOT NULL,
		outlet_id TEXT NOT NULL,
		assigned_date TEXT NOT NULL,
		package_value TEXT NOT NULL DEFAULT '0',
		service_value TEXT NOT NULL DEFAULT '0',
		remaining_service_value TEXT NOT NULL DEFAULT '0',
		service_id TEXT,
		service_name TEXT,
		total_sittings INTEGER NOT NULL DEFAULT 0,
		used_sittings INTEGER NOT NULL DEFAULT 0,
		remaining_sittings INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_packages_outlet
		ON customer_packages(outlet_id, assigned_date);

	-- Append-only
	CREATE TABLE IF NOT EXISTS redemption_records (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL REFERENCES customer_packages(id),
		kind TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		redeemed_date TEXT NOT NULL,
		staff_id TEXT,
		staff_name TEXT,
		items_json TEXT,
		subtotal TEXT,
		gst_percentage TEXT,
		gst_amount TEXT,
		grand_total TEXT,
		service_name TEXT,
		service_value TEXT,
		sitting_index INTEGER,
		is_initial INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_package_sequence
		ON redemption_records(package_id, sequence);

	-- Write-once
	CREATE TABLE IF NOT EXISTS invoice_snapshots (
		record_id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS package_templates (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT,
		outlet_id TEXT,
		package_value TEXT,
		service_value TEXT,
		paid_sittings INTEGER,
		free_sittings INTEGER,
		service_id TEXT,
		service_name TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.NewStorageError("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&ops{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return generic.NewStorageError("commit", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements ledger.Store against either the pool or an open transaction.
type ops struct {
	q querier
}

// =============================================================================
// PACKAGES
// =============================================================================

const packageColumns = `id, kind, customer_name, customer_mobile, template_id, template_name,
	outlet_id, assigned_date, package_value, service_value, remaining_service_value,
	service_id, service_name, total_sittings, used_sittings, remaining_sittings, version`

func (o *ops) CreatePackage(ctx context.Context, p ledger.Package) error {
	row, err := packageRowOf(p)
	if err != nil {
		return generic.NewStorageError("create package", err)
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO customer_packages (`+packageColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.kind, row.customerName, row.customerMobile, row.templateID, row.templateName,
		row.outletID, row.assignedDate, row.packageValue, row.serviceValue, row.remaining,
		nullString(row.serviceID), nullString(row.serviceName), row.total, row.used, row.remainingSittings,
		row.version, now(),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: package %s", generic.ErrDuplicateRecord, row.id)
	}
	if err != nil {
		return generic.NewStorageError("create package", err)
	}
	return nil
}

func (o *ops) GetPackage(ctx context.Context, id generic.PackageID) (ledger.Package, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM customer_packages WHERE id = ?`, id)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	if err != nil {
		return nil, generic.NewStorageError("get package", err)
	}
	return p, nil
}

func (o *ops) ListPackagesByOutlet(ctx context.Context, outletID generic.OutletID) ([]ledger.Package, error) {
	return o.queryPackages(ctx, `SELECT `+packageColumns+` FROM customer_packages
		WHERE outlet_id = ? ORDER BY assigned_date ASC, rowid ASC`, outletID)
}

func (o *ops) ListPackages(ctx context.Context) ([]ledger.Package, error) {
	return o.queryPackages(ctx, `SELECT `+packageColumns+` FROM customer_packages
		ORDER BY assigned_date ASC, rowid ASC`)
}

func (o *ops) queryPackages(ctx context.Context, query string, args ...any) ([]ledger.Package, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.NewStorageError("list packages", err)
	}
	defer rows.Close()

	var pkgs []ledger.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, generic.NewStorageError("scan package", err)
		}
		pkgs = append(pkgs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStorageError("list packages", err)
	}
	return pkgs, nil
}

// UpdatePackageAtomic writes the balance columns and version of p if the
// stored version still equals expectedVersion.
func (o *ops) UpdatePackageAtomic(ctx context.Context, id generic.PackageID, expectedVersion int64, p ledger.Package) error {
	row, err := packageRowOf(p)
	if err != nil {
		return generic.NewStorageError("update package", err)
	}
	res, err := o.q.ExecContext(ctx, `
		UPDATE customer_packages
		SET remaining_service_value = ?, used_sittings = ?, remaining_sittings = ?, version = ?
		WHERE id = ? AND version = ? AND kind = ?`,
		row.remaining, row.used, row.remainingSittings, row.version,
		id, expectedVersion, row.kind,
	)
	if err != nil {
		return generic.NewStorageError("update package", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return generic.NewStorageError("update package", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM customer_packages WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return generic.NewStorageError("update package", err)
	}
	if exists == 0 {
		return &generic.NotFoundError{Resource: "package", ID: string(id)}
	}
	return generic.ErrConcurrentModification
}

// packageRow is the flattened column set shared by both package kinds.
type packageRow struct {
	id, kind, customerName, customerMobile string
	templateID, templateName, outletID     string
	assignedDate                           string
	packageValue, serviceValue, remaining  string
	serviceID, serviceName                 string
	total, used, remainingSittings         int
	version                                int64
}

func packageRowOf(p ledger.Package) (packageRow, error) {
	switch p := p.(type) {
	case ledger.ValuePackage:
		return packageRow{
			id: string(p.ID), kind: string(catalog.KindValue),
			customerName: p.CustomerName, customerMobile: p.CustomerMobile,
			templateID: string(p.TemplateID), templateName: p.TemplateName, outletID: string(p.OutletID),
			assignedDate: p.AssignedDate.String(),
			packageValue: p.PackageValue.String(), serviceValue: p.ServiceValue.String(),
			remaining: p.RemainingServiceValue.String(),
			version:   p.Version,
		}, nil
	case ledger.SittingsPackage:
		return packageRow{
			id: string(p.ID), kind: string(catalog.KindSittings),
			customerName: p.CustomerName, customerMobile: p.CustomerMobile,
			templateID: string(p.TemplateID), templateName: p.TemplateName, outletID: string(p.OutletID),
			assignedDate: p.AssignedDate.String(),
			packageValue: "0", serviceValue: p.ServiceValue.String(), remaining: "0",
			serviceID: string(p.ServiceID), serviceName: p.ServiceName,
			total: p.TotalSittings, used: p.UsedSittings, remainingSittings: p.RemainingSittings,
			version: p.Version,
		}, nil
	}
	return packageRow{}, fmt.Errorf("unsupported package type %T", p)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(s scanner) (ledger.Package, error) {
	var (
		r                      packageRow
		serviceID, serviceName sql.NullString
	)
	err := s.Scan(&r.id, &r.kind, &r.customerName, &r.customerMobile, &r.templateID, &r.templateName,
		&r.outletID, &r.assignedDate, &r.packageValue, &r.serviceValue, &r.remaining,
		&serviceID, &serviceName, &r.total, &r.used, &r.remainingSittings, &r.version)
	if err != nil {
		return nil, err
	}
	assigned, err := generic.ParseDate(r.assignedDate)
	if err != nil {
		return nil, err
	}

	switch catalog.Kind(r.kind) {
	case catalog.KindValue:
		return ledger.ValuePackage{
			ID:                    generic.PackageID(r.id),
			CustomerName:          r.customerName,
			CustomerMobile:        r.customerMobile,
			TemplateID:            generic.TemplateID(r.templateID),
			TemplateName:          r.templateName,
			OutletID:              generic.OutletID(r.outletID),
			AssignedDate:          assigned,
			PackageValue:          generic.MustParseDecimal(r.packageValue),
			ServiceValue:          generic.MustParseDecimal(r.serviceValue),
			RemainingServiceValue: generic.MustParseDecimal(r.remaining),
			Version:               r.version,
		}, nil
	case catalog.KindSittings:
		return ledger.SittingsPackage{
			ID:                generic.PackageID(r.id),
			CustomerName:      r.customerName,
			CustomerMobile:    r.customerMobile,
			TemplateID:        generic.TemplateID(r.templateID),
			TemplateName:      r.templateName,
			ServiceID:         generic.ServiceID(serviceID.String),
			ServiceName:       serviceName.String,
			ServiceValue:      generic.MustParseDecimal(r.serviceValue),
			OutletID:          generic.OutletID(r.outletID),
			AssignedDate:      assigned,
			TotalSittings:     r.total,
			UsedSittings:      r.used,
			RemainingSittings: r.remainingSittings,
			Version:           r.version,
		}, nil
	}
	return nil, fmt.Errorf("unknown package kind %q", r.kind)
}

// =============================================================================
// RECORDS
// =============================================================================

func (o *ops) AppendRecord(ctx context.Context, r ledger.Record) error {
	var err error
	switch r := r.(type) {
	case ledger.RedemptionRecord:
		itemsJSON, jerr := json.Marshal(r.Items)
		if jerr != nil {
			return generic.NewStorageError("append record", jerr)
		}
		_, err = o.q.ExecContext(ctx, `
			INSERT INTO redemption_records
			(id, package_id, kind, sequence, redeemed_date, staff_id, staff_name, items_json,
			 subtotal, gst_percentage, gst_amount, grand_total, is_initial, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PackageID, catalog.KindValue, r.Sequence, r.RedeemedDate.String(),
			nullString(string(r.StaffID)), nullString(r.StaffName), string(itemsJSON),
			r.Subtotal.String(), r.GSTPercentage.String(), r.GSTAmount.String(), r.GrandTotal.String(),
			r.IsInitial, now(),
		)
	case ledger.SittingRedemption:
		_, err = o.q.ExecContext(ctx, `
			INSERT INTO redemption_records
			(id, package_id, kind, sequence, redeemed_date, staff_id, staff_name,
			 service_name, service_value, sitting_index, is_initial, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PackageID, catalog.KindSittings, r.Sequence, r.RedeemedDate.String(),
			nullString(string(r.StaffID)), nullString(r.StaffName),
			r.ServiceName, r.ServiceValue.String(), r.SittingIndex, r.IsInitial, now(),
		)
	default:
		return generic.NewStorageError("append record", fmt.Errorf("unsupported record type %T", r))
	}

	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: record %s", generic.ErrDuplicateRecord, r.RecordID())
	}
	if isForeignKeyError(err) {
		return &generic.NotFoundError{Resource: "package", ID: string(r.Owner())}
	}
	if err != nil {
		return generic.NewStorageError("append record", err)
	}
	return nil
}

func (o *ops) LoadRecords(ctx context.Context, id generic.PackageID) ([]ledger.Record, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, package_id, kind, sequence, redeemed_date, staff_id, staff_name, items_json,
		       subtotal, gst_percentage, gst_amount, grand_total,
		       service_name, service_value, sitting_index, is_initial
		FROM redemption_records
		WHERE package_id = ?
		ORDER BY sequence ASC`, id)
	if err != nil {
		return nil, generic.NewStorageError("load records", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, generic.NewStorageError("scan record", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStorageError("load records", err)
	}
	return records, nil
}

func scanRecord(s scanner) (ledger.Record, error) {
	var (
		id, packageID, kind, redeemed      string
		sequence                           int64
		staffID, staffName, itemsJSON      sql.NullString
		subtotal, gstPct, gstAmount, grand sql.NullString
		serviceName, serviceValue          sql.NullString
		sittingIndex                       sql.NullInt64
		isInitial                          bool
	)
	err := s.Scan(&id, &packageID, &kind, &sequence, &redeemed, &staffID, &staffName, &itemsJSON,
		&subtotal, &gstPct, &gstAmount, &grand, &serviceName, &serviceValue, &sittingIndex, &isInitial)
	if err != nil {
		return nil, err
	}
	date, err := generic.ParseDate(redeemed)
	if err != nil {
		return nil, err
	}

	switch catalog.Kind(kind) {
	case catalog.KindValue:
		var items []ledger.LineItem
		if itemsJSON.Valid && itemsJSON.String != "" {
			if err := json.Unmarshal([]byte(itemsJSON.String), &items); err != nil {
				return nil, err
			}
		}
		return ledger.RedemptionRecord{
			ID:            generic.RecordID(id),
			PackageID:     generic.PackageID(packageID),
			Sequence:      sequence,
			RedeemedDate:  date,
			Items:         items,
			StaffID:       generic.StaffID(staffID.String),
			StaffName:     staffName.String,
			Subtotal:      generic.MustParseDecimal(subtotal.String),
			GSTPercentage: generic.MustParseDecimal(gstPct.String),
			GSTAmount:     generic.MustParseDecimal(gstAmount.String),
			GrandTotal:    generic.MustParseDecimal(grand.String),
			IsInitial:     isInitial,
		}, nil
	case catalog.KindSittings:
		return ledger.SittingRedemption{
			ID:           generic.RecordID(id),
			PackageID:    generic.PackageID(packageID),
			Sequence:     sequence,
			StaffID:      generic.StaffID(staffID.String),
			StaffName:    staffName.String,
			RedeemedDate: date,
			ServiceName:  serviceName.String,
			ServiceValue: generic.MustParseDecimal(serviceValue.String),
			SittingIndex: int(sittingIndex.Int64),
			IsInitial:    isInitial,
		}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (o *ops) AppendSnapshot(ctx context.Context, snap ledger.InvoiceSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return generic.NewStorageError("append snapshot", err)
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO invoice_snapshots (record_id, package_id, payload_json, created_at)
		VALUES (?, ?, ?, ?)`,
		snap.RecordID, snap.PackageID, string(payload), now(),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: snapshot %s", generic.ErrDuplicateRecord, snap.RecordID)
	}
	if err != nil {
		return generic.NewStorageError("append snapshot", err)
	}
	return nil
}

func (o *ops) GetSnapshot(ctx context.Context, id generic.RecordID) (ledger.InvoiceSnapshot, error) {
	var payload string
	err := o.q.QueryRowContext(ctx, `SELECT payload_json FROM invoice_snapshots WHERE record_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.InvoiceSnapshot{}, &generic.NotFoundError{Resource: "snapshot", ID: string(id)}
	}
	if err != nil {
		return ledger.InvoiceSnapshot{}, generic.NewStorageError("get snapshot", err)
	}

	var snap ledger.InvoiceSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return ledger.InvoiceSnapshot{}, generic.NewStorageError("decode snapshot", err)
	}
	return snap, nil
}

// =============================================================================
// TEMPLATE STORE (catalog.TemplateStore interface)
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t catalog.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO package_templates
		(id, kind, name, outlet_id, package_value, service_value, paid_sittings, free_sittings,
		 service_id, service_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Kind, t.Name, nullString(string(t.OutletID)),
		t.PackageValue.String(), t.ServiceValue.String(), t.PaidSittings, t.FreeSittings,
		nullString(string(t.ServiceID)), nullString(t.ServiceName), t.CreatedAt.OrToday().String(),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: template %s", generic.ErrDuplicateRecord, t.ID)
	}
	if err != nil {
		return generic.NewStorageError("save template", err)
	}
	return nil
}

const templateColumns = `id, kind, name, outlet_id, package_value, service_value,
	paid_sittings, free_sittings, service_id, service_name, created_at`

func (s *Store) GetTemplate(ctx context.Context, id generic.TemplateID) (catalog.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM package_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Template{}, &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	if err != nil {
		return catalog.Template{}, generic.NewStorageError("get template", err)
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]catalog.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM package_templates ORDER BY rowid ASC`)
	if err != nil {
		return nil, generic.NewStorageError("list templates", err)
	}
	defer rows.Close()

	var templates []catalog.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, generic.NewStorageError("scan template", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.NewStorageError("list templates", err)
	}
	return templates, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id generic.TemplateID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM package_templates WHERE id = ?`, id)
	if err != nil {
		return generic.NewStorageError("delete template", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Resource: "template", ID: string(id)}
	}
	return nil
}

func scanTemplate(s scanner) (catalog.Template, error) {
	var (
		t                                  catalog.Template
		kind                               string
		name, outletID, serviceID, svcName sql.NullString
		packageValue, serviceValue         sql.NullString
		paid, free                         sql.NullInt64
		createdAt                          string
	)
	err := s.Scan(&t.ID, &kind, &name, &outletID, &packageValue, &serviceValue,
		&paid, &free, &serviceID, &svcName, &createdAt)
	if err != nil {
		return t, err
	}
	t.Kind = catalog.Kind(kind)
	t.Name = name.String
	t.OutletID = generic.OutletID(outletID.String)
	t.PackageValue = generic.MustParseDecimal(packageValue.String)
	t.ServiceValue = generic.MustParseDecimal(serviceValue.String)
	t.PaidSittings = int(paid.Int64)
	t.FreeSittings = int(free.Int64)
	t.ServiceID = generic.ServiceID(serviceID.String)
	t.ServiceName = svcName.String
	t.CreatedAt, _ = generic.ParseDate(createdAt)
	return t, nil
}

// Helper functions

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
