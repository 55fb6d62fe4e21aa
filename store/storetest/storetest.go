/*
Package storetest is the conformance suite every store backend runs.

PURPOSE:
  The ledger relies on a handful of store guarantees (compare-and-swap,
  write-once snapshots, all-or-nothing WithTx). Each backend's _test.go
  calls Run with a constructor and gets the same checks.

USAGE:
  func TestConformance(t *testing.T) {
      storetest.Run(t, func(t *testing.T) storetest.Store {
          s, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { s.Close() })
          return s
      })
  }
*/
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// Store is what a complete backend provides.
type Store interface {
	ledger.TxStore
	catalog.TemplateStore
}

// Run executes every conformance test against stores built by newStore.
// newStore is called once per subtest and must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"PackageRoundTrip", testPackageRoundTrip},
		{"DuplicatePackage", testDuplicatePackage},
		{"UnknownIDs", testUnknownIDs},
		{"CompareAndSwap", testCompareAndSwap},
		{"RecordsOrderedBySequence", testRecordsOrdered},
		{"SnapshotWriteOnce", testSnapshotWriteOnce},
		{"StoredItemsDetached", testStoredItemsDetached},
		{"WithTxRollback", testWithTxRollback},
		{"ListByOutlet", testListByOutlet},
		{"Templates", testTemplates},
		{"EngineScenarios", testEngineScenarios},
		{"ConcurrentFullBalance", testConcurrentFullBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

var march10 = generic.NewTimePoint(2025, time.March, 10)

func valuePackage(id string, outlet generic.OutletID) ledger.ValuePackage {
	return ledger.ValuePackage{
		ID:                    generic.PackageID(id),
		CustomerName:          "Asha Rao",
		CustomerMobile:        "9876543210",
		TemplateID:            "tpl_gold",
		TemplateName:          "Gold",
		OutletID:              outlet,
		AssignedDate:          march10,
		PackageValue:          generic.NewMoney(20000),
		ServiceValue:          generic.NewMoney(30000),
		RemainingServiceValue: generic.NewMoney(30000),
		Version:               1,
	}
}

func sittingsPackage(id string, outlet generic.OutletID) ledger.SittingsPackage {
	return ledger.SittingsPackage{
		ID:                generic.PackageID(id),
		CustomerName:      "Ravi Kumar",
		CustomerMobile:    "9123456789",
		TemplateID:        "tpl_hair",
		TemplateName:      "Haircut 3+1",
		ServiceID:         "svc-haircut",
		ServiceName:       "Haircut",
		ServiceValue:      generic.NewMoney(500),
		OutletID:          outlet,
		AssignedDate:      march10,
		TotalSittings:     4,
		RemainingSittings: 4,
		Version:           1,
	}
}

func sittingRecord(pkg generic.PackageID, id string, seq int64, index int) ledger.SittingRedemption {
	return ledger.SittingRedemption{
		ID:           generic.RecordID(id),
		PackageID:    pkg,
		Sequence:     seq,
		StaffID:      "stf-priya",
		StaffName:    "Priya",
		RedeemedDate: march10,
		ServiceName:  "Haircut",
		ServiceValue: generic.NewMoney(500),
		SittingIndex: index,
	}
}

func assertDecimal(t *testing.T, want, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, want.Equal(got), "%s: want %s, got %s", field, want, got)
}

// =============================================================================
// TESTS
// =============================================================================

func testPackageRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	vp := valuePackage("pkg_value", "out-1")
	sp := sittingsPackage("pkg_sittings", "out-1")
	require.NoError(t, s.CreatePackage(ctx, vp))
	require.NoError(t, s.CreatePackage(ctx, sp))

	got, err := s.GetPackage(ctx, vp.ID)
	require.NoError(t, err)
	gv, ok := got.(ledger.ValuePackage)
	require.True(t, ok, "expected ValuePackage, got %T", got)
	assert.Equal(t, vp.CustomerName, gv.CustomerName)
	assert.Equal(t, vp.TemplateName, gv.TemplateName)
	assert.True(t, vp.AssignedDate.Equal(gv.AssignedDate))
	assertDecimal(t, vp.PackageValue, gv.PackageValue, "packageValue")
	assertDecimal(t, vp.RemainingServiceValue, gv.RemainingServiceValue, "remainingServiceValue")
	assert.Equal(t, int64(1), gv.Version)

	got, err = s.GetPackage(ctx, sp.ID)
	require.NoError(t, err)
	gs, ok := got.(ledger.SittingsPackage)
	require.True(t, ok, "expected SittingsPackage, got %T", got)
	assert.Equal(t, sp.ServiceName, gs.ServiceName)
	assert.Equal(t, sp.ServiceID, gs.ServiceID)
	assert.Equal(t, 4, gs.TotalSittings)
	assert.Equal(t, 4, gs.RemainingSittings)
	assertDecimal(t, sp.ServiceValue, gs.ServiceValue, "serviceValue")
}

func testDuplicatePackage(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreatePackage(ctx, valuePackage("pkg_1", "out-1")))
	assert.ErrorIs(t, s.CreatePackage(ctx, valuePackage("pkg_1", "out-1")), generic.ErrDuplicateRecord)
}

func testUnknownIDs(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetPackage(ctx, "pkg_missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = s.GetSnapshot(ctx, "rdm_missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = s.GetTemplate(ctx, "tpl_missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = s.UpdatePackageAtomic(ctx, "pkg_missing", 1, valuePackage("pkg_missing", "out-1"))
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = s.AppendRecord(ctx, sittingRecord("pkg_missing", "sit_orphan", 2, 1))
	assert.ErrorIs(t, err, generic.ErrNotFound)

	records, err := s.LoadRecords(ctx, "pkg_missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testCompareAndSwap(t *testing.T, s Store) {
	// GIVEN: A package at version 1
	// WHEN: Two writers both expect version 1
	// THEN: The first wins, the second gets ErrConcurrentModification

	ctx := context.Background()
	vp := valuePackage("pkg_cas", "out-1")
	require.NoError(t, s.CreatePackage(ctx, vp))

	first := vp
	first.RemainingServiceValue = generic.NewMoney(25000)
	first.Version = 2
	require.NoError(t, s.UpdatePackageAtomic(ctx, vp.ID, 1, first))

	second := vp
	second.RemainingServiceValue = generic.NewMoney(1)
	second.Version = 2
	err := s.UpdatePackageAtomic(ctx, vp.ID, 1, second)
	require.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := s.GetPackage(ctx, vp.ID)
	require.NoError(t, err)
	assertDecimal(t, generic.NewMoney(25000), got.(ledger.ValuePackage).RemainingServiceValue, "remaining")
	assert.Equal(t, int64(2), got.Revision())
}

func testRecordsOrdered(t *testing.T, s Store) {
	ctx := context.Background()
	sp := sittingsPackage("pkg_rec", "out-1")
	require.NoError(t, s.CreatePackage(ctx, sp))

	require.NoError(t, s.AppendRecord(ctx, sittingRecord(sp.ID, "sit_b", 3, 2)))
	require.NoError(t, s.AppendRecord(ctx, sittingRecord(sp.ID, "sit_a", 2, 1)))

	vp := valuePackage("pkg_val", "out-1")
	require.NoError(t, s.CreatePackage(ctx, vp))
	require.NoError(t, s.AppendRecord(ctx, ledger.RedemptionRecord{
		ID:            "rdm_1",
		PackageID:     vp.ID,
		Sequence:      2,
		RedeemedDate:  march10,
		Items:         []ledger.LineItem{{ServiceName: "Facial", Quantity: 2, UnitPrice: generic.NewMoney(750), LineTotal: generic.NewMoney(1500)}},
		StaffName:     "Priya",
		Subtotal:      generic.NewMoney(1500),
		GSTPercentage: decimal.NewFromInt(18),
		GSTAmount:     generic.NewMoney(270),
		GrandTotal:    generic.NewMoney(1770),
	}))

	records, err := s.LoadRecords(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, generic.RecordID("sit_a"), records[0].RecordID())
	assert.Equal(t, 2, records[1].(ledger.SittingRedemption).SittingIndex)

	records, err = s.LoadRecords(ctx, vp.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0].(ledger.RedemptionRecord)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, 2, rec.Items[0].Quantity)
	assertDecimal(t, generic.NewMoney(1770), rec.GrandTotal, "grandTotal")

	err = s.AppendRecord(ctx, sittingRecord(sp.ID, "sit_a", 4, 3))
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)
}

func testSnapshotWriteOnce(t *testing.T, s Store) {
	ctx := context.Background()
	snap := ledger.InvoiceSnapshot{
		RecordID:          "sit_1",
		PackageID:         "pkg_1",
		Kind:              catalog.KindSittings,
		TakenAt:           march10,
		CustomerName:      "Ravi Kumar",
		ServiceName:       "Haircut",
		ServiceValue:      generic.NewMoney(500),
		TotalSittings:     4,
		UsedSittings:      1,
		RemainingSittings: 3,
		SittingIndex:      1,
		RedeemedDate:      march10,
		StaffName:         "Priya",
	}
	require.NoError(t, s.AppendSnapshot(ctx, snap))

	got, err := s.GetSnapshot(ctx, "sit_1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedSittings)
	assert.Equal(t, 3, got.RemainingSittings)
	assert.Equal(t, catalog.KindSittings, got.Kind)
	assert.True(t, march10.Equal(got.RedeemedDate))
	assertDecimal(t, generic.NewMoney(500), got.ServiceValue, "serviceValue")

	changed := snap
	changed.UsedSittings = 2
	assert.ErrorIs(t, s.AppendSnapshot(ctx, changed), generic.ErrDuplicateRecord)

	got, err = s.GetSnapshot(ctx, "sit_1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedSittings)
}

func testStoredItemsDetached(t *testing.T, s Store) {
	// GIVEN: A value record and its snapshot written from one items slice
	// WHEN: The caller edits that slice and the slices it reads back
	// THEN: The stored history and snapshot keep the original line items

	ctx := context.Background()
	vp := valuePackage("pkg_items", "out-1")
	require.NoError(t, s.CreatePackage(ctx, vp))

	items := []ledger.LineItem{{ServiceName: "Facial", Quantity: 1, UnitPrice: generic.NewMoney(1000), LineTotal: generic.NewMoney(1000)}}
	rec := ledger.RedemptionRecord{
		ID:           "rdm_items",
		PackageID:    vp.ID,
		Sequence:     2,
		RedeemedDate: march10,
		Items:        items,
		StaffName:    "Priya",
		Subtotal:     generic.NewMoney(1000),
		GrandTotal:   generic.NewMoney(1000),
	}
	require.NoError(t, s.AppendRecord(ctx, rec))
	require.NoError(t, s.AppendSnapshot(ctx, ledger.InvoiceSnapshot{
		RecordID:     "rdm_items",
		PackageID:    vp.ID,
		Kind:         catalog.KindValue,
		TakenAt:      march10,
		RedeemedDate: march10,
		Items:        items,
		GrandTotal:   generic.NewMoney(1000),
	}))

	items[0].ServiceName = "Edited"

	records, err := s.LoadRecords(ctx, vp.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	loaded := records[0].(ledger.RedemptionRecord)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "Facial", loaded.Items[0].ServiceName)
	loaded.Items[0].ServiceName = "Edited"

	snap, err := s.GetSnapshot(ctx, "rdm_items")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Facial", snap.Items[0].ServiceName)
	snap.Items[0].ServiceName = "Edited"

	records, err = s.LoadRecords(ctx, vp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Facial", records[0].(ledger.RedemptionRecord).Items[0].ServiceName)

	snap, err = s.GetSnapshot(ctx, "rdm_items")
	require.NoError(t, err)
	assert.Equal(t, "Facial", snap.Items[0].ServiceName)
}

func testWithTxRollback(t *testing.T, s Store) {
	// GIVEN: A transaction that writes a package and a record, then fails
	// WHEN: WithTx returns
	// THEN: Neither write is visible; a successful transaction is

	ctx := context.Background()
	boom := errors.New("boom")
	sp := sittingsPackage("pkg_tx", "out-1")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreatePackage(ctx, sp); err != nil {
			return err
		}
		if err := tx.AppendRecord(ctx, sittingRecord(sp.ID, "sit_tx", 1, 1)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetPackage(ctx, sp.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreatePackage(ctx, sp); err != nil {
			return err
		}
		got, err := tx.GetPackage(ctx, sp.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, sp.ID, got.PackageID())
		return tx.AppendRecord(ctx, sittingRecord(sp.ID, "sit_tx", 1, 1))
	})
	require.NoError(t, err)

	records, err := s.LoadRecords(ctx, sp.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func testListByOutlet(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreatePackage(ctx, valuePackage("pkg_a", "out-1")))
	require.NoError(t, s.CreatePackage(ctx, sittingsPackage("pkg_b", "out-2")))
	require.NoError(t, s.CreatePackage(ctx, sittingsPackage("pkg_c", "out-1")))

	pkgs, err := s.ListPackagesByOutlet(ctx, "out-1")
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, generic.PackageID("pkg_a"), pkgs[0].PackageID())
	assert.Equal(t, generic.PackageID("pkg_c"), pkgs[1].PackageID())

	all, err := s.ListPackages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testTemplates(t *testing.T, s Store) {
	ctx := context.Background()
	value := catalog.Template{
		ID: "tpl_v", Kind: catalog.KindValue, Name: "Gold",
		PackageValue: generic.NewMoney(20000), ServiceValue: generic.NewMoney(30000),
		CreatedAt: march10,
	}
	sittings := catalog.Template{
		ID: "tpl_s", Kind: catalog.KindSittings, OutletID: "out-1",
		PaidSittings: 3, FreeSittings: 1, ServiceName: "Haircut",
		CreatedAt: march10,
	}
	require.NoError(t, s.SaveTemplate(ctx, value))
	require.NoError(t, s.SaveTemplate(ctx, sittings))
	assert.ErrorIs(t, s.SaveTemplate(ctx, value), generic.ErrDuplicateRecord)

	got, err := s.GetTemplate(ctx, "tpl_v")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindValue, got.Kind)
	assertDecimal(t, value.ServiceValue, got.ServiceValue, "serviceValue")
	assert.True(t, got.IsGlobal())

	all, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, generic.TemplateID("tpl_v"), all[0].ID)
	assert.Equal(t, 4, all[1].TotalSittings())
	assert.Equal(t, generic.OutletID("out-1"), all[1].OutletID)

	require.NoError(t, s.DeleteTemplate(ctx, "tpl_v"))
	assert.ErrorIs(t, s.DeleteTemplate(ctx, "tpl_v"), generic.ErrNotFound)
}

// testEngineScenarios drives the ledger end to end on the store under test.
func testEngineScenarios(t *testing.T, s Store) {
	ctx := context.Background()
	cat := catalog.New(s, nil)
	svc := ledger.NewService(s, cat, ledger.Options{})

	valueTpl, err := cat.CreateValueTemplate(ctx, catalog.ValueTemplateInput{
		PackageValue: generic.NewMoney(20000), ServiceValue: generic.NewMoney(30000),
	})
	require.NoError(t, err)
	assigned, err := svc.AssignValuePackage(ctx, ledger.AssignValueRequest{
		CustomerName: "Asha Rao", CustomerMobile: "9876543210", TemplateID: valueTpl.ID, OutletID: "out-1",
	})
	require.NoError(t, err)
	pkgID := assigned.Package.PackageID()

	_, err = svc.RedeemValue(ctx, ledger.RedeemValueRequest{
		PackageID:     pkgID,
		Items:         []ledger.LineItem{{ServiceName: "Hair Spa", Quantity: 1, UnitPrice: generic.NewMoney(5000)}},
		GSTPercentage: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	_, err = svc.RedeemValue(ctx, ledger.RedeemValueRequest{
		PackageID: pkgID,
		Items:     []ledger.LineItem{{ServiceName: "Bridal", Quantity: 1, UnitPrice: generic.NewMoney(30000)}},
	})
	require.ErrorIs(t, err, generic.ErrInsufficientBalance)

	got, err := svc.GetPackage(ctx, pkgID)
	require.NoError(t, err)
	assertDecimal(t, generic.NewMoney(24750), got.(ledger.ValuePackage).RemainingServiceValue, "remaining")
	history, err := svc.RedemptionHistory(ctx, pkgID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	sittingsTpl, err := cat.CreateSittingsTemplate(ctx, catalog.SittingsTemplateInput{
		PaidSittings: 3, FreeSittings: 1, ServiceName: "Haircut",
	})
	require.NoError(t, err)
	sittings, err := svc.AssignSittingsPackage(ctx, ledger.AssignSittingsRequest{
		CustomerName: "Ravi Kumar", CustomerMobile: "9123456789", TemplateID: sittingsTpl.ID, OutletID: "out-1",
	})
	require.NoError(t, err)
	sid := sittings.Package.PackageID()

	first, err := svc.RedeemSitting(ctx, ledger.RedeemSittingRequest{PackageID: sid, StaffName: "Priya"})
	require.NoError(t, err)
	_, err = svc.RedeemSitting(ctx, ledger.RedeemSittingRequest{PackageID: sid, StaffName: "Priya"})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, first.Record.RecordID())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.UsedSittings)
	assert.Equal(t, 3, snap.RemainingSittings)

	report, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "%v", report.Findings)
	assert.Equal(t, 2, report.Checked)
}

func testConcurrentFullBalance(t *testing.T, s Store) {
	// GIVEN: A value package with 30000 remaining
	// WHEN: Two redemptions of the full balance race
	// THEN: Exactly one succeeds and the balance never goes negative

	ctx := context.Background()
	vp := valuePackage("pkg_race", "out-1")
	require.NoError(t, s.CreatePackage(ctx, vp))
	svc := ledger.NewService(s, catalog.New(s, nil), ledger.Options{})

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.RedeemValue(ctx, ledger.RedeemValueRequest{
				PackageID: vp.ID,
				Items:     []ledger.LineItem{{ServiceName: "Bridal", Quantity: 1, UnitPrice: generic.NewMoney(30000)}},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, generic.ErrConflict) || errors.Is(err, generic.ErrInsufficientBalance),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetPackage(ctx, vp.ID)
	require.NoError(t, err)
	remaining := got.(ledger.ValuePackage).RemainingServiceValue
	assert.False(t, remaining.IsNegative())
	assert.True(t, remaining.IsZero())
}
