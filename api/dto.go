/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's Go types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers around several DTOs

MONEY AND DATES:
  Amounts are decimal.Decimal and serialize as strings ("24750.00" style)
  so no precision is lost in the browser. Requests accept numbers or
  strings. Dates are "YYYY-MM-DD"; an empty date means today.

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The types they mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// =============================================================================
// TEMPLATES
// =============================================================================

// CreateTemplateRequest creates a value template (kind "value") or a
// sittings template (kind "sittings").
type CreateTemplateRequest struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	OutletID string `json:"outlet_id,omitempty"`

	PackageValue decimal.Decimal `json:"package_value"`
	ServiceValue decimal.Decimal `json:"service_value"`

	PaidSittings int    `json:"paid_sittings"`
	FreeSittings int    `json:"free_sittings"`
	ServiceID    string `json:"service_id,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
}

type TemplateDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	OutletID    string `json:"outlet_id,omitempty"`

	PackageValue *decimal.Decimal `json:"package_value,omitempty"`
	ServiceValue *decimal.Decimal `json:"service_value,omitempty"`

	PaidSittings  *int   `json:"paid_sittings,omitempty"`
	FreeSittings  *int   `json:"free_sittings,omitempty"`
	TotalSittings *int   `json:"total_sittings,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	ServiceName   string `json:"service_name,omitempty"`

	CreatedAt generic.TimePoint `json:"created_at"`
}

// =============================================================================
// PACKAGES
// =============================================================================

type LineItemDTO struct {
	ServiceID   string          `json:"service_id,omitempty"`
	ServiceName string          `json:"service_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type StaffRefDTO struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type AssignValueRequest struct {
	CustomerName   string            `json:"customer_name"`
	CustomerMobile string            `json:"customer_mobile"`
	TemplateID     string            `json:"template_id"`
	OutletID       string            `json:"outlet_id"`
	AssignedDate   generic.TimePoint `json:"assigned_date"`

	// Optional initial redemption
	InitialItems  []LineItemDTO   `json:"initial_items,omitempty"`
	GSTPercentage decimal.Decimal `json:"gst_percentage"`
	StaffID       string          `json:"staff_id,omitempty"`
	StaffName     string          `json:"staff_name,omitempty"`
}

type AssignSittingsRequest struct {
	CustomerName   string            `json:"customer_name"`
	CustomerMobile string            `json:"customer_mobile"`
	TemplateID     string            `json:"template_id"`
	ServiceID      string            `json:"service_id,omitempty"`
	ServiceName    string            `json:"service_name,omitempty"`
	ServiceValue   decimal.Decimal   `json:"service_value"`
	OutletID       string            `json:"outlet_id"`
	AssignedDate   generic.TimePoint `json:"assigned_date"`
	InitialStaff   *StaffRefDTO      `json:"initial_staff,omitempty"`
}

// PackageDTO covers both kinds; fields of the other kind are omitted.
type PackageDTO struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind"`
	CustomerName   string            `json:"customer_name"`
	CustomerMobile string            `json:"customer_mobile"`
	TemplateID     string            `json:"template_id"`
	TemplateName   string            `json:"template_name"`
	OutletID       string            `json:"outlet_id"`
	AssignedDate   generic.TimePoint `json:"assigned_date"`
	Version        int64             `json:"version"`
	Exhausted      bool              `json:"exhausted"`

	PackageValue          *decimal.Decimal `json:"package_value,omitempty"`
	ServiceValue          decimal.Decimal  `json:"service_value"`
	RemainingServiceValue *decimal.Decimal `json:"remaining_service_value,omitempty"`

	ServiceID         string `json:"service_id,omitempty"`
	ServiceName       string `json:"service_name,omitempty"`
	TotalSittings     *int   `json:"total_sittings,omitempty"`
	UsedSittings      *int   `json:"used_sittings,omitempty"`
	RemainingSittings *int   `json:"remaining_sittings,omitempty"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

type RedeemValueRequest struct {
	Items         []LineItemDTO     `json:"items"`
	GSTPercentage decimal.Decimal   `json:"gst_percentage"`
	StaffID       string            `json:"staff_id,omitempty"`
	StaffName     string            `json:"staff_name,omitempty"`
	RedeemedDate  generic.TimePoint `json:"redeemed_date"`
}

type RedeemSittingRequest struct {
	StaffID      string            `json:"staff_id,omitempty"`
	StaffName    string            `json:"staff_name"`
	RedeemedDate generic.TimePoint `json:"redeemed_date"`
	SittingIndex int               `json:"sitting_index,omitempty"`
}

// RecordDTO covers both record kinds.
type RecordDTO struct {
	ID           string            `json:"id"`
	PackageID    string            `json:"package_id"`
	Kind         string            `json:"kind"`
	Sequence     int64             `json:"sequence"`
	RedeemedDate generic.TimePoint `json:"redeemed_date"`
	StaffID      string            `json:"staff_id,omitempty"`
	StaffName    string            `json:"staff_name"`
	IsInitial    bool              `json:"is_initial"`

	Items         []LineItemDTO    `json:"items,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	GSTPercentage *decimal.Decimal `json:"gst_percentage,omitempty"`
	GSTAmount     *decimal.Decimal `json:"gst_amount,omitempty"`
	GrandTotal    *decimal.Decimal `json:"grand_total,omitempty"`

	ServiceName  string           `json:"service_name,omitempty"`
	ServiceValue *decimal.Decimal `json:"service_value,omitempty"`
	SittingIndex int              `json:"sitting_index,omitempty"`
}

type SnapshotDTO struct {
	RecordID  string            `json:"record_id"`
	PackageID string            `json:"package_id"`
	Kind      string            `json:"kind"`
	TakenAt   generic.TimePoint `json:"taken_at"`

	CustomerName   string            `json:"customer_name"`
	CustomerMobile string            `json:"customer_mobile"`
	OutletID       string            `json:"outlet_id"`
	TemplateName   string            `json:"template_name"`
	AssignedDate   generic.TimePoint `json:"assigned_date"`

	ServiceName  string          `json:"service_name"`
	ServiceValue decimal.Decimal `json:"service_value"`

	TotalSittings     int `json:"total_sittings,omitempty"`
	UsedSittings      int `json:"used_sittings,omitempty"`
	RemainingSittings int `json:"remaining_sittings"`
	SittingIndex      int `json:"sitting_index,omitempty"`

	RemainingServiceValue decimal.Decimal `json:"remaining_service_value"`

	RedeemedDate  generic.TimePoint `json:"redeemed_date"`
	StaffName     string            `json:"staff_name"`
	Items         []LineItemDTO     `json:"items,omitempty"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	GSTPercentage decimal.Decimal   `json:"gst_percentage"`
	GSTAmount     decimal.Decimal   `json:"gst_amount"`
	GrandTotal    decimal.Decimal   `json:"grand_total"`
	IsInitial     bool              `json:"is_initial"`
}

type OutletDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type ReceiptDTO struct {
	InvoiceNumber string      `json:"invoice_number"`
	Outlet        OutletDTO   `json:"outlet"`
	Snapshot      SnapshotDTO `json:"snapshot"`
}

// AssignResponse carries the new package and, when an initial redemption
// was requested, its record and snapshot, or why it was rejected.
type AssignResponse struct {
	Package       PackageDTO     `json:"package"`
	InitialRecord *RecordDTO     `json:"initial_record,omitempty"`
	Snapshot      *SnapshotDTO   `json:"snapshot,omitempty"`
	InitialError  *ErrorResponse `json:"initial_error,omitempty"`
}

type RedemptionResponse struct {
	Package  PackageDTO  `json:"package"`
	Record   RecordDTO   `json:"record"`
	Snapshot SnapshotDTO `json:"snapshot"`
}

// =============================================================================
// AUDIT AND ERRORS
// =============================================================================

type FindingDTO struct {
	PackageID string `json:"package_id"`
	Problem   string `json:"problem"`
}

type AuditDTO struct {
	RanAt    string       `json:"ran_at"`
	Checked  int          `json:"checked"`
	Clean    bool         `json:"clean"`
	Findings []FindingDTO `json:"findings"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
	Item    *int   `json:"item,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }
func intPtr(i int) *int                         { return &i }

func toTemplateDTO(t catalog.Template) TemplateDTO {
	dto := TemplateDTO{
		ID:          string(t.ID),
		Kind:        string(t.Kind),
		Name:        t.Name,
		DisplayName: t.DisplayName(),
		OutletID:    string(t.OutletID),
		CreatedAt:   t.CreatedAt,
	}
	switch t.Kind {
	case catalog.KindValue:
		dto.PackageValue = decPtr(t.PackageValue)
		dto.ServiceValue = decPtr(t.ServiceValue)
	case catalog.KindSittings:
		dto.PaidSittings = intPtr(t.PaidSittings)
		dto.FreeSittings = intPtr(t.FreeSittings)
		dto.TotalSittings = intPtr(t.TotalSittings())
		dto.ServiceID = string(t.ServiceID)
		dto.ServiceName = t.ServiceName
	}
	return dto
}

func toLineItems(items []LineItemDTO) []ledger.LineItem {
	out := make([]ledger.LineItem, len(items))
	for i, it := range items {
		out[i] = ledger.LineItem{
			ServiceID:   generic.ServiceID(it.ServiceID),
			ServiceName: it.ServiceName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	return out
}

func toLineItemDTOs(items []ledger.LineItem) []LineItemDTO {
	if len(items) == 0 {
		return nil
	}
	out := make([]LineItemDTO, len(items))
	for i, it := range items {
		out[i] = LineItemDTO{
			ServiceID:   string(it.ServiceID),
			ServiceName: it.ServiceName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		}
	}
	return out
}

func toPackageDTO(p ledger.Package) PackageDTO {
	switch p := p.(type) {
	case ledger.ValuePackage:
		return PackageDTO{
			ID:                    string(p.ID),
			Kind:                  string(catalog.KindValue),
			CustomerName:          p.CustomerName,
			CustomerMobile:        p.CustomerMobile,
			TemplateID:            string(p.TemplateID),
			TemplateName:          p.TemplateName,
			OutletID:              string(p.OutletID),
			AssignedDate:          p.AssignedDate,
			Version:               p.Version,
			Exhausted:             p.Exhausted(),
			PackageValue:          decPtr(p.PackageValue),
			ServiceValue:          p.ServiceValue,
			RemainingServiceValue: decPtr(p.RemainingServiceValue),
		}
	case ledger.SittingsPackage:
		return PackageDTO{
			ID:                string(p.ID),
			Kind:              string(catalog.KindSittings),
			CustomerName:      p.CustomerName,
			CustomerMobile:    p.CustomerMobile,
			TemplateID:        string(p.TemplateID),
			TemplateName:      p.TemplateName,
			OutletID:          string(p.OutletID),
			AssignedDate:      p.AssignedDate,
			Version:           p.Version,
			Exhausted:         p.Exhausted(),
			ServiceValue:      p.ServiceValue,
			ServiceID:         string(p.ServiceID),
			ServiceName:       p.ServiceName,
			TotalSittings:     intPtr(p.TotalSittings),
			UsedSittings:      intPtr(p.UsedSittings),
			RemainingSittings: intPtr(p.RemainingSittings),
		}
	}
	return PackageDTO{}
}

func toRecordDTO(r ledger.Record) RecordDTO {
	switch r := r.(type) {
	case ledger.RedemptionRecord:
		return RecordDTO{
			ID:            string(r.ID),
			PackageID:     string(r.PackageID),
			Kind:          string(catalog.KindValue),
			Sequence:      r.Sequence,
			RedeemedDate:  r.RedeemedDate,
			StaffID:       string(r.StaffID),
			StaffName:     r.StaffName,
			IsInitial:     r.IsInitial,
			Items:         toLineItemDTOs(r.Items),
			Subtotal:      decPtr(r.Subtotal),
			GSTPercentage: decPtr(r.GSTPercentage),
			GSTAmount:     decPtr(r.GSTAmount),
			GrandTotal:    decPtr(r.GrandTotal),
		}
	case ledger.SittingRedemption:
		return RecordDTO{
			ID:           string(r.ID),
			PackageID:    string(r.PackageID),
			Kind:         string(catalog.KindSittings),
			Sequence:     r.Sequence,
			RedeemedDate: r.RedeemedDate,
			StaffID:      string(r.StaffID),
			StaffName:    r.StaffName,
			IsInitial:    r.IsInitial,
			ServiceName:  r.ServiceName,
			ServiceValue: decPtr(r.ServiceValue),
			SittingIndex: r.SittingIndex,
		}
	}
	return RecordDTO{}
}

func toSnapshotDTO(s ledger.InvoiceSnapshot) SnapshotDTO {
	return SnapshotDTO{
		RecordID:              string(s.RecordID),
		PackageID:             string(s.PackageID),
		Kind:                  string(s.Kind),
		TakenAt:               s.TakenAt,
		CustomerName:          s.CustomerName,
		CustomerMobile:        s.CustomerMobile,
		OutletID:              string(s.OutletID),
		TemplateName:          s.TemplateName,
		AssignedDate:          s.AssignedDate,
		ServiceName:           s.ServiceName,
		ServiceValue:          s.ServiceValue,
		TotalSittings:         s.TotalSittings,
		UsedSittings:          s.UsedSittings,
		RemainingSittings:     s.RemainingSittings,
		SittingIndex:          s.SittingIndex,
		RemainingServiceValue: s.RemainingServiceValue,
		RedeemedDate:          s.RedeemedDate,
		StaffName:             s.StaffName,
		Items:                 toLineItemDTOs(s.Items),
		Subtotal:              s.Subtotal,
		GSTPercentage:         s.GSTPercentage,
		GSTAmount:             s.GSTAmount,
		GrandTotal:            s.GrandTotal,
		IsInitial:             s.IsInitial,
	}
}

func toReceiptDTO(r ledger.Receipt) ReceiptDTO {
	return ReceiptDTO{
		InvoiceNumber: r.InvoiceNumber,
		Outlet: OutletDTO{
			ID:      string(r.Outlet.ID),
			Name:    r.Outlet.Name,
			Address: r.Outlet.Address,
			GSTIN:   r.Outlet.GSTIN,
			Phone:   r.Outlet.Phone,
		},
		Snapshot: toSnapshotDTO(r.InvoiceSnapshot),
	}
}

func toAuditDTO(r ledger.AuditReport) AuditDTO {
	findings := make([]FindingDTO, len(r.Findings))
	for i, f := range r.Findings {
		findings[i] = FindingDTO{PackageID: string(f.PackageID), Problem: f.Problem}
	}
	return AuditDTO{
		RanAt:    r.RanAt.Format(time.RFC3339),
		Checked:  r.Checked,
		Clean:    r.Clean(),
		Findings: findings,
	}
}
