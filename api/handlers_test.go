/*
handlers_test.go - HTTP tests for the API handlers

Tests drive the chi router through httptest with an in-memory store:
- Template CRUD
- Value and sittings assignment, redemption and history
- Snapshot and receipt lookups
- Error status mapping
- Audit endpoints and the scheduler
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
	"github.com/warp/package-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *memory.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()

	dir := catalog.NewDirectory()
	dir.PutStaff(catalog.Staff{ID: "stf-priya", Name: "Priya"})
	dir.PutService(catalog.Service{ID: "svc-haircut", Name: "Haircut", Price: generic.NewMoney(500)})
	dir.PutOutlet(catalog.Outlet{ID: "out-indiranagar", Name: "Glow Indiranagar", GSTIN: "29ABCDE1234F1Z5"})

	cat := catalog.New(store, nil)
	svc := ledger.NewService(store, cat, ledger.Options{Services: dir, Staff: dir, Outlets: dir})
	h := NewHandler(svc, cat, nil)
	return &testServer{handler: h, router: NewRouter(h), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func (s *testServer) createValueTemplate(t *testing.T) TemplateDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/templates", CreateTemplateRequest{
		Kind:         "value",
		PackageValue: decimal.NewFromInt(20000),
		ServiceValue: decimal.NewFromInt(30000),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TemplateDTO](t, rec)
}

func (s *testServer) createSittingsTemplate(t *testing.T) TemplateDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/templates", CreateTemplateRequest{
		Kind:         "sittings",
		PaidSittings: 3,
		FreeSittings: 1,
		ServiceID:    "svc-haircut",
		ServiceName:  "Haircut",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TemplateDTO](t, rec)
}

func (s *testServer) assignValue(t *testing.T, templateID string) PackageDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/packages/value", map[string]any{
		"customer_name":   "Asha Rao",
		"customer_mobile": "9876543210",
		"template_id":     templateID,
		"outlet_id":       "out-indiranagar",
		"assigned_date":   "2025-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AssignResponse](t, rec).Package
}

func (s *testServer) assignSittings(t *testing.T, templateID string) PackageDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/packages/sittings", map[string]any{
		"customer_name":   "Ravi Kumar",
		"customer_mobile": "9123456780",
		"template_id":     templateID,
		"outlet_id":       "out-indiranagar",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AssignResponse](t, rec).Package
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestTemplates_CreateListGetDelete(t *testing.T) {
	s := newTestServer(t)

	value := s.createValueTemplate(t)
	assert.Equal(t, "Pay 20000 Get 30000", value.DisplayName)
	require.NotNil(t, value.ServiceValue)
	assertDec(t, "30000", *value.ServiceValue)

	sittings := s.createSittingsTemplate(t)
	require.NotNil(t, sittings.TotalSittings)
	assert.Equal(t, 4, *sittings.TotalSittings)

	rec := s.do(t, http.MethodGet, "/api/templates?outlet_id=out-indiranagar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TemplateDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/templates/"+value.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, value.ID, decode[TemplateDTO](t, rec).ID)

	rec = s.do(t, http.MethodDelete, "/api/templates/"+value.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/templates/"+value.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplates_InvalidInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/templates", CreateTemplateRequest{Kind: "bundle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/templates", CreateTemplateRequest{
		Kind:         "value",
		PackageValue: decimal.NewFromInt(-1),
		ServiceValue: decimal.NewFromInt(100),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Field)

	rec = s.do(t, http.MethodPost, "/api/templates", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// VALUE PACKAGES
// =============================================================================

func TestValuePackage_RedeemOverdrawHistory(t *testing.T) {
	// GIVEN: A value package worth 30000 of services
	// WHEN: Redeeming 5000 at 5% GST, then overdrawing
	// THEN: 24750 remains, the overdraw is 422, history holds one record

	s := newTestServer(t)
	pkg := s.assignValue(t, s.createValueTemplate(t).ID)
	assert.Equal(t, "value", pkg.Kind)
	require.NotNil(t, pkg.RemainingServiceValue)
	assertDec(t, "30000", *pkg.RemainingServiceValue)

	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{
		Items:         []LineItemDTO{{ServiceName: "Hair Spa", Quantity: 1, UnitPrice: decimal.NewFromInt(5000)}},
		GSTPercentage: decimal.NewFromInt(5),
		StaffName:     "Priya",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[RedemptionResponse](t, rec)
	require.NotNil(t, res.Package.RemainingServiceValue)
	assertDec(t, "24750", *res.Package.RemainingServiceValue)
	require.NotNil(t, res.Record.GrandTotal)
	assertDec(t, "5250", *res.Record.GrandTotal)
	assert.Equal(t, "stf-priya", res.Record.StaffID)
	assertDec(t, "24750", res.Snapshot.RemainingServiceValue)
	assert.Equal(t, "Hair Spa", res.Snapshot.ServiceName)

	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{
		Items:     []LineItemDTO{{ServiceName: "Bridal", Quantity: 1, UnitPrice: decimal.NewFromInt(30000)}},
		StaffName: "Priya",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/packages/"+pkg.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]RecordDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, res.Record.ID, history[0].ID)

	rec = s.do(t, http.MethodGet, "/api/packages/"+pkg.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[PackageDTO](t, rec)
	assert.Equal(t, int64(2), got.Version)
	assertDec(t, "24750", *got.RemainingServiceValue)
}

func TestValuePackage_InitialRedemption(t *testing.T) {
	s := newTestServer(t)
	tpl := s.createValueTemplate(t)

	rec := s.do(t, http.MethodPost, "/api/packages/value", AssignValueRequest{
		CustomerName:   "Asha Rao",
		CustomerMobile: "9876543210",
		TemplateID:     tpl.ID,
		OutletID:       "out-indiranagar",
		InitialItems:   []LineItemDTO{{ServiceName: "Facial", Quantity: 2, UnitPrice: decimal.NewFromInt(750)}},
		GSTPercentage:  decimal.NewFromInt(18),
		StaffName:      "Priya",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[AssignResponse](t, rec)
	require.NotNil(t, res.InitialRecord)
	require.NotNil(t, res.Snapshot)
	assert.True(t, res.InitialRecord.IsInitial)
	assertDec(t, "1770", *res.InitialRecord.GrandTotal)
	assertDec(t, "28230", *res.Package.RemainingServiceValue)
	assert.Equal(t, int64(1), res.Package.Version)
}

func TestValuePackage_InitialOverdraw_StillAssigned(t *testing.T) {
	s := newTestServer(t)
	tpl := s.createValueTemplate(t)

	rec := s.do(t, http.MethodPost, "/api/packages/value", AssignValueRequest{
		CustomerName:   "Asha Rao",
		CustomerMobile: "9876543210",
		TemplateID:     tpl.ID,
		OutletID:       "out-indiranagar",
		InitialItems:   []LineItemDTO{{ServiceName: "Bridal Makeup", Quantity: 1, UnitPrice: decimal.NewFromInt(40000)}},
		StaffName:      "Priya",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[AssignResponse](t, rec)
	assert.Nil(t, res.InitialRecord)
	assert.Nil(t, res.Snapshot)
	require.NotNil(t, res.InitialError)
	assert.Equal(t, http.StatusText(http.StatusUnprocessableEntity), res.InitialError.Error)
	assertDec(t, "30000", *res.Package.RemainingServiceValue)

	rec = s.do(t, http.MethodGet, "/api/packages/"+res.Package.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]RecordDTO](t, rec))
}

func TestValuePackage_BadRequests(t *testing.T) {
	s := newTestServer(t)
	pkg := s.assignValue(t, s.createValueTemplate(t).ID)

	// Empty items
	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{StaffName: "Priya"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad quantity reports the item index
	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{
		Items:     []LineItemDTO{{ServiceName: "Facial", Quantity: 0, UnitPrice: decimal.NewFromInt(750)}},
		StaffName: "Priya",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	require.NotNil(t, errResp.Item)
	assert.Equal(t, 0, *errResp.Item)

	// Malformed date
	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", `{"redeemed_date":"10/03/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown package
	rec = s.do(t, http.MethodGet, "/api/packages/pkg_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SITTINGS PACKAGES
// =============================================================================

func TestSittingsPackage_RedeemAndStaleIndex(t *testing.T) {
	// GIVEN: A 3+1 haircut package
	// WHEN: Redeeming one sitting, then resubmitting sitting 2 twice
	// THEN: 3 remain, then 2, and the stale resubmission is 409

	s := newTestServer(t)
	pkg := s.assignSittings(t, s.createSittingsTemplate(t).ID)
	require.NotNil(t, pkg.RemainingSittings)
	assert.Equal(t, 4, *pkg.RemainingSittings)
	assertDec(t, "500", pkg.ServiceValue)

	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[RedemptionResponse](t, rec)
	assert.Equal(t, 1, res.Record.SittingIndex)
	assert.Equal(t, 3, *res.Package.RemainingSittings)

	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya", SittingIndex: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya", SittingIndex: 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSittingsPackage_Exhausted(t *testing.T) {
	s := newTestServer(t)
	pkg := s.assignSittings(t, s.createSittingsTemplate(t).ID)

	for i := 0; i < 4; i++ {
		rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/packages/"+pkg.ID, nil)
	got := decode[PackageDTO](t, rec)
	assert.True(t, got.Exhausted)
	assert.Equal(t, 4, *got.UsedSittings)
}

func TestWrongKindRedemption(t *testing.T) {
	s := newTestServer(t)
	pkg := s.assignSittings(t, s.createSittingsTemplate(t).ID)

	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{
		Items:     []LineItemDTO{{ServiceName: "Facial", Quantity: 1, UnitPrice: decimal.NewFromInt(750)}},
		StaffName: "Priya",
	})
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.Less(t, rec.Code, 500)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestSnapshotAndReceipt(t *testing.T) {
	s := newTestServer(t)
	pkg := s.assignSittings(t, s.createSittingsTemplate(t).ID)

	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[RedemptionResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-sitting", RedeemSittingRequest{StaffName: "Priya"})
	require.Equal(t, http.StatusOK, rec.Code)

	// The first snapshot still shows the state right after the first sitting
	rec = s.do(t, http.MethodGet, "/api/records/"+first.Record.ID+"/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[SnapshotDTO](t, rec)
	assert.Equal(t, 1, snap.UsedSittings)
	assert.Equal(t, 3, snap.RemainingSittings)

	rec = s.do(t, http.MethodGet, "/api/records/"+first.Record.ID+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	receipt := decode[ReceiptDTO](t, rec)
	assert.Equal(t, "Glow Indiranagar", receipt.Outlet.Name)
	assert.Contains(t, receipt.InvoiceNumber, "INV-")
	assert.Equal(t, 3, receipt.Snapshot.RemainingSittings)

	rec = s.do(t, http.MethodGet, "/api/records/rdm_missing/receipt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOutletPackages(t *testing.T) {
	s := newTestServer(t)
	s.assignValue(t, s.createValueTemplate(t).ID)
	s.assignSittings(t, s.createSittingsTemplate(t).ID)

	rec := s.do(t, http.MethodGet, "/api/outlets/out-indiranagar/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PackageDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/outlets/out-elsewhere/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PackageDTO](t, rec))
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAuditAndHealth(t *testing.T) {
	s := newTestServer(t)
	pkg := s.assignValue(t, s.createValueTemplate(t).ID)
	rec := s.do(t, http.MethodPost, "/api/packages/"+pkg.ID+"/redeem-value", RedeemValueRequest{
		Items:     []LineItemDTO{{ServiceName: "Facial", Quantity: 1, UnitPrice: decimal.NewFromInt(750)}},
		StaffName: "Priya",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[AuditDTO](t, rec)
	assert.True(t, audit.Clean)
	assert.Equal(t, 1, audit.Checked)

	rec = s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.handler.Health = failingPinger{}
	rec = s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestAuditScheduler(t *testing.T) {
	s := newTestServer(t)
	s.assignSittings(t, s.createSittingsTemplate(t).ID)

	bad := NewAuditScheduler(s.handler.Service.Auditor, "not a schedule", nil)
	assert.Error(t, bad.Start())

	sched := NewAuditScheduler(s.handler.Service.Auditor, "@every 1h", nil)
	_, ok := sched.LastReport()
	assert.False(t, ok)

	rec := s.do(t, http.MethodGet, "/api/audit/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, sched.Start())
	defer sched.Stop()
	assert.False(t, sched.NextRun().IsZero())

	report, err := sched.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())

	s.handler.Audits = sched
	rec = s.do(t, http.MethodGet, "/api/audit/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[AuditDTO](t, rec).Checked)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{generic.NewValidationError("customerName", "is required"), http.StatusBadRequest},
		{&generic.InvalidArgumentError{Field: "name", Message: "is required"}, http.StatusBadRequest},
		{&generic.NotFoundError{Resource: "package", ID: "pkg_1"}, http.StatusNotFound},
		{&generic.InsufficientBalanceError{PackageID: "pkg_1"}, http.StatusUnprocessableEntity},
		{&generic.InsufficientSittingsError{PackageID: "pkg_1"}, http.StatusUnprocessableEntity},
		{&generic.ConflictError{PackageID: "pkg_1", Attempts: 5}, http.StatusConflict},
		{&generic.InvalidStateError{PackageID: "pkg_1"}, http.StatusConflict},
		{generic.NewStorageError("get package", errors.New("disk I/O error")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
