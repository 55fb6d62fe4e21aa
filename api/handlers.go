/*
handlers.go - HTTP API handlers for the package ledger

PURPOSE:
  Exposes the catalog and the ledger service via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to ledger.Service.

ENDPOINTS:
  Templates:
    GET    /api/templates?outlet_id=   Templates visible to an outlet (all without it)
    POST   /api/templates              Create value or sittings template
    GET    /api/templates/{id}         Get template
    DELETE /api/templates/{id}         Delete template

  Packages:
    POST   /api/packages/value                 Assign value package
    POST   /api/packages/sittings              Assign sittings package
    GET    /api/packages/{id}                  Get package
    GET    /api/packages/{id}/history          Redemption records by sequence
    POST   /api/packages/{id}/redeem-value     Redeem line items
    POST   /api/packages/{id}/redeem-sitting   Consume one sitting
    GET    /api/outlets/{id}/packages          Packages assigned at an outlet

  Records:
    GET    /api/records/{id}/snapshot  Invoice snapshot
    GET    /api/records/{id}/receipt   Regenerated receipt

  Admin:
    GET    /api/audit                  Run the ledger audit now
    GET    /api/audit/last             Last scheduled audit report
    GET    /api/health                 Store reachability

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Concurrent redemption retries exhausted, stale sitting index
  - 422: Insufficient balance or sittings
  - 500: Storage errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Catalog *catalog.Catalog
	Health  Pinger          // optional
	Audits  *AuditScheduler // optional
	Logger  *zap.Logger
}

func NewHandler(service *ledger.Service, cat *catalog.Catalog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: service, Catalog: cat, Logger: logger}
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	outletID := generic.OutletID(r.URL.Query().Get("outlet_id"))

	templates, err := h.Catalog.ListTemplates(r.Context(), outletID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		tpl catalog.Template
		err error
	)
	switch catalog.Kind(req.Kind) {
	case catalog.KindValue:
		tpl, err = h.Catalog.CreateValueTemplate(r.Context(), catalog.ValueTemplateInput{
			Name:         req.Name,
			PackageValue: req.PackageValue,
			ServiceValue: req.ServiceValue,
			OutletID:     generic.OutletID(req.OutletID),
		})
	case catalog.KindSittings:
		tpl, err = h.Catalog.CreateSittingsTemplate(r.Context(), catalog.SittingsTemplateInput{
			Name:         req.Name,
			PaidSittings: req.PaidSittings,
			FreeSittings: req.FreeSittings,
			ServiceID:    generic.ServiceID(req.ServiceID),
			ServiceName:  req.ServiceName,
			OutletID:     generic.OutletID(req.OutletID),
		})
	default:
		writeError(w, http.StatusBadRequest, `kind must be "value" or "sittings"`, nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTemplateDTO(tpl))
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id := generic.TemplateID(chi.URLParam(r, "id"))

	tpl, err := h.Catalog.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateDTO(tpl))
}

// DeleteTemplate removes a template. Packages already assigned from it
// keep working.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := generic.TemplateID(chi.URLParam(r, "id"))

	if err := h.Catalog.DeleteTemplate(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PACKAGE HANDLERS
// =============================================================================

func (h *Handler) AssignValuePackage(w http.ResponseWriter, r *http.Request) {
	var req AssignValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.AssignValuePackage(r.Context(), ledger.AssignValueRequest{
		CustomerName:   req.CustomerName,
		CustomerMobile: req.CustomerMobile,
		TemplateID:     generic.TemplateID(req.TemplateID),
		OutletID:       generic.OutletID(req.OutletID),
		AssignedDate:   req.AssignedDate,
		InitialItems:   toLineItems(req.InitialItems),
		GSTPercentage:  req.GSTPercentage,
		StaffID:        generic.StaffID(req.StaffID),
		StaffName:      req.StaffName,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignResponse(result))
}

func (h *Handler) AssignSittingsPackage(w http.ResponseWriter, r *http.Request) {
	var req AssignSittingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ledger.AssignSittingsRequest{
		CustomerName:   req.CustomerName,
		CustomerMobile: req.CustomerMobile,
		TemplateID:     generic.TemplateID(req.TemplateID),
		ServiceID:      generic.ServiceID(req.ServiceID),
		ServiceName:    req.ServiceName,
		ServiceValue:   req.ServiceValue,
		OutletID:       generic.OutletID(req.OutletID),
		AssignedDate:   req.AssignedDate,
	}
	if req.InitialStaff != nil {
		in.InitialStaff = &ledger.StaffRef{ID: generic.StaffID(req.InitialStaff.ID), Name: req.InitialStaff.Name}
	}

	result, err := h.Service.AssignSittingsPackage(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignResponse(result))
}

func toAssignResponse(result *ledger.AssignResult) AssignResponse {
	resp := AssignResponse{Package: toPackageDTO(result.Package)}
	if result.Initial != nil {
		rec := toRecordDTO(result.Initial)
		resp.InitialRecord = &rec
	}
	if result.Snapshot != nil {
		snap := toSnapshotDTO(*result.Snapshot)
		resp.Snapshot = &snap
	}
	if result.InitialErr != nil {
		body := errorResponseFor(result.InitialErr)
		resp.InitialError = &body
	}
	return resp
}

func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id := generic.PackageID(chi.URLParam(r, "id"))

	pkg, err := h.Service.GetPackage(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg))
}

func (h *Handler) ListOutletPackages(w http.ResponseWriter, r *http.Request) {
	outletID := generic.OutletID(chi.URLParam(r, "id"))

	pkgs, err := h.Service.ListPackagesByOutlet(r.Context(), outletID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]PackageDTO, len(pkgs))
	for i, p := range pkgs {
		dtos[i] = toPackageDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := generic.PackageID(chi.URLParam(r, "id"))

	records, err := h.Service.RedemptionHistory(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]RecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REDEMPTION HANDLERS
// =============================================================================

func (h *Handler) RedeemValue(w http.ResponseWriter, r *http.Request) {
	id := generic.PackageID(chi.URLParam(r, "id"))

	var req RedeemValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.RedeemValue(r.Context(), ledger.RedeemValueRequest{
		PackageID:     id,
		Items:         toLineItems(req.Items),
		GSTPercentage: req.GSTPercentage,
		StaffID:       generic.StaffID(req.StaffID),
		StaffName:     req.StaffName,
		RedeemedDate:  req.RedeemedDate,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(result))
}

func (h *Handler) RedeemSitting(w http.ResponseWriter, r *http.Request) {
	id := generic.PackageID(chi.URLParam(r, "id"))

	var req RedeemSittingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.RedeemSitting(r.Context(), ledger.RedeemSittingRequest{
		PackageID:    id,
		StaffID:      generic.StaffID(req.StaffID),
		StaffName:    req.StaffName,
		RedeemedDate: req.RedeemedDate,
		SittingIndex: req.SittingIndex,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(result))
}

func toRedemptionResponse(result *ledger.RedemptionResult) RedemptionResponse {
	return RedemptionResponse{
		Package:  toPackageDTO(result.Package),
		Record:   toRecordDTO(result.Record),
		Snapshot: toSnapshotDTO(result.Snapshot),
	}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	snap, err := h.Service.Snapshot(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	receipt, err := h.Service.Receipt(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Audit(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

func (h *Handler) LastAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audits == nil {
		writeError(w, http.StatusNotFound, "Audit scheduler not running", nil)
		return
	}
	report, ok := h.Audits.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "No audit has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps ledger and catalog errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrValidation), errors.Is(err, generic.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrInsufficientBalance), errors.Is(err, generic.ErrInsufficientSittings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generic.ErrConflict), errors.Is(err, generic.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "Internal error", nil)
		return
	}

	writeJSON(w, status, errorResponseFor(err))
}

// errorResponseFor builds the body for a client-side domain error.
func errorResponseFor(err error) ErrorResponse {
	resp := ErrorResponse{Error: http.StatusText(statusFor(err)), Details: err.Error()}
	var ve *generic.ValidationError
	var ae *generic.InvalidArgumentError
	switch {
	case errors.As(err, &ve):
		resp.Field = ve.Field
		if ve.Index >= 0 {
			resp.Item = intPtr(ve.Index)
		}
	case errors.As(err, &ae):
		resp.Field = ae.Field
	}
	return resp
}
