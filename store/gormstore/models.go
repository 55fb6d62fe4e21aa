package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

// =============================================================================
// MODELS
// =============================================================================

// PackageModel is one row per customer package, both kinds.
type PackageModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	Kind           string `gorm:"size:16;not null;index"`
	CustomerName   string `gorm:"not null"`
	CustomerMobile string `gorm:"size:10;not null;index"`
	TemplateID     string `gorm:"size:64;not null"`
	TemplateName   string `gorm:"not null"`
	OutletID       string `gorm:"size:64;not null;index:idx_packages_outlet,priority:1"`
	AssignedDate   string `gorm:"size:10;not null;index:idx_packages_outlet,priority:2"`

	PackageValue          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ServiceValue          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	RemainingServiceValue decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	ServiceID         string
	ServiceName       string
	TotalSittings     int `gorm:"not null;default:0"`
	UsedSittings      int `gorm:"not null;default:0"`
	RemainingSittings int `gorm:"not null;default:0"`

	Version   int64 `gorm:"not null"`
	CreatedAt int64 `gorm:"autoCreateTime:nano"`
}

func (PackageModel) TableName() string { return "customer_packages" }

// RecordModel is the append-only redemption history, both kinds.
type RecordModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	PackageID    string `gorm:"size:64;not null;uniqueIndex:idx_records_package_sequence,priority:1"`
	Sequence     int64  `gorm:"not null;uniqueIndex:idx_records_package_sequence,priority:2"`
	Kind         string `gorm:"size:16;not null"`
	RedeemedDate string `gorm:"size:10;not null"`
	StaffID      string
	StaffName    string

	// Value redemptions
	ItemsJSON     string          `gorm:"type:text"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2)"`
	GSTPercentage decimal.Decimal `gorm:"type:decimal(5,2)"`
	GSTAmount     decimal.Decimal `gorm:"type:decimal(12,2)"`
	GrandTotal    decimal.Decimal `gorm:"type:decimal(12,2)"`

	// Sitting redemptions
	ServiceName  string
	ServiceValue decimal.Decimal `gorm:"type:decimal(12,2)"`
	SittingIndex int

	IsInitial bool `gorm:"not null;default:false"`
	CreatedAt time.Time

	Package *PackageModel `gorm:"foreignKey:PackageID;references:ID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
}

func (RecordModel) TableName() string { return "redemption_records" }

// SnapshotModel stores the snapshot as JSON; it is never queried by field.
type SnapshotModel struct {
	RecordID  string `gorm:"primaryKey;size:64"`
	PackageID string `gorm:"size:64;not null;index"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (SnapshotModel) TableName() string { return "invoice_snapshots" }

type TemplateModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Kind         string `gorm:"size:16;not null"`
	Name         string
	OutletID     string          `gorm:"size:64;index"`
	PackageValue decimal.Decimal `gorm:"type:decimal(12,2)"`
	ServiceValue decimal.Decimal `gorm:"type:decimal(12,2)"`
	PaidSittings int
	FreeSittings int
	ServiceID    string
	ServiceName  string
	CreatedDate  string `gorm:"size:10"`
	CreatedAt    int64  `gorm:"autoCreateTime:nano"`
}

func (TemplateModel) TableName() string { return "package_templates" }

// =============================================================================
// CONVERSIONS
// =============================================================================

func packageModelOf(p ledger.Package) (PackageModel, error) {
	switch p := p.(type) {
	case ledger.ValuePackage:
		return PackageModel{
			ID:                    string(p.ID),
			Kind:                  string(catalog.KindValue),
			CustomerName:          p.CustomerName,
			CustomerMobile:        p.CustomerMobile,
			TemplateID:            string(p.TemplateID),
			TemplateName:          p.TemplateName,
			OutletID:              string(p.OutletID),
			AssignedDate:          p.AssignedDate.String(),
			PackageValue:          p.PackageValue,
			ServiceValue:          p.ServiceValue,
			RemainingServiceValue: p.RemainingServiceValue,
			Version:               p.Version,
		}, nil
	case ledger.SittingsPackage:
		return PackageModel{
			ID:                string(p.ID),
			Kind:              string(catalog.KindSittings),
			CustomerName:      p.CustomerName,
			CustomerMobile:    p.CustomerMobile,
			TemplateID:        string(p.TemplateID),
			TemplateName:      p.TemplateName,
			OutletID:          string(p.OutletID),
			AssignedDate:      p.AssignedDate.String(),
			ServiceValue:      p.ServiceValue,
			ServiceID:         string(p.ServiceID),
			ServiceName:       p.ServiceName,
			TotalSittings:     p.TotalSittings,
			UsedSittings:      p.UsedSittings,
			RemainingSittings: p.RemainingSittings,
			Version:           p.Version,
		}, nil
	}
	return PackageModel{}, fmt.Errorf("unsupported package type %T", p)
}

func (m PackageModel) toPackage() (ledger.Package, error) {
	assigned, err := generic.ParseDate(m.AssignedDate)
	if err != nil {
		return nil, err
	}
	switch catalog.Kind(m.Kind) {
	case catalog.KindValue:
		return ledger.ValuePackage{
			ID:                    generic.PackageID(m.ID),
			CustomerName:          m.CustomerName,
			CustomerMobile:        m.CustomerMobile,
			TemplateID:            generic.TemplateID(m.TemplateID),
			TemplateName:          m.TemplateName,
			OutletID:              generic.OutletID(m.OutletID),
			AssignedDate:          assigned,
			PackageValue:          m.PackageValue,
			ServiceValue:          m.ServiceValue,
			RemainingServiceValue: m.RemainingServiceValue,
			Version:               m.Version,
		}, nil
	case catalog.KindSittings:
		return ledger.SittingsPackage{
			ID:                generic.PackageID(m.ID),
			CustomerName:      m.CustomerName,
			CustomerMobile:    m.CustomerMobile,
			TemplateID:        generic.TemplateID(m.TemplateID),
			TemplateName:      m.TemplateName,
			ServiceID:         generic.ServiceID(m.ServiceID),
			ServiceName:       m.ServiceName,
			ServiceValue:      m.ServiceValue,
			OutletID:          generic.OutletID(m.OutletID),
			AssignedDate:      assigned,
			TotalSittings:     m.TotalSittings,
			UsedSittings:      m.UsedSittings,
			RemainingSittings: m.RemainingSittings,
			Version:           m.Version,
		}, nil
	}
	return nil, fmt.Errorf("unknown package kind %q", m.Kind)
}

func recordModelOf(r ledger.Record) (RecordModel, error) {
	switch r := r.(type) {
	case ledger.RedemptionRecord:
		items, err := json.Marshal(r.Items)
		if err != nil {
			return RecordModel{}, err
		}
		return RecordModel{
			ID:            string(r.ID),
			PackageID:     string(r.PackageID),
			Sequence:      r.Sequence,
			Kind:          string(catalog.KindValue),
			RedeemedDate:  r.RedeemedDate.String(),
			StaffID:       string(r.StaffID),
			StaffName:     r.StaffName,
			ItemsJSON:     string(items),
			Subtotal:      r.Subtotal,
			GSTPercentage: r.GSTPercentage,
			GSTAmount:     r.GSTAmount,
			GrandTotal:    r.GrandTotal,
			IsInitial:     r.IsInitial,
		}, nil
	case ledger.SittingRedemption:
		return RecordModel{
			ID:           string(r.ID),
			PackageID:    string(r.PackageID),
			Sequence:     r.Sequence,
			Kind:         string(catalog.KindSittings),
			RedeemedDate: r.RedeemedDate.String(),
			StaffID:      string(r.StaffID),
			StaffName:    r.StaffName,
			ServiceName:  r.ServiceName,
			ServiceValue: r.ServiceValue,
			SittingIndex: r.SittingIndex,
			IsInitial:    r.IsInitial,
		}, nil
	}
	return RecordModel{}, fmt.Errorf("unsupported record type %T", r)
}

func (m RecordModel) toRecord() (ledger.Record, error) {
	date, err := generic.ParseDate(m.RedeemedDate)
	if err != nil {
		return nil, err
	}
	switch catalog.Kind(m.Kind) {
	case catalog.KindValue:
		var items []ledger.LineItem
		if m.ItemsJSON != "" {
			if err := json.Unmarshal([]byte(m.ItemsJSON), &items); err != nil {
				return nil, err
			}
		}
		return ledger.RedemptionRecord{
			ID:            generic.RecordID(m.ID),
			PackageID:     generic.PackageID(m.PackageID),
			Sequence:      m.Sequence,
			RedeemedDate:  date,
			Items:         items,
			StaffID:       generic.StaffID(m.StaffID),
			StaffName:     m.StaffName,
			Subtotal:      m.Subtotal,
			GSTPercentage: m.GSTPercentage,
			GSTAmount:     m.GSTAmount,
			GrandTotal:    m.GrandTotal,
			IsInitial:     m.IsInitial,
		}, nil
	case catalog.KindSittings:
		return ledger.SittingRedemption{
			ID:           generic.RecordID(m.ID),
			PackageID:    generic.PackageID(m.PackageID),
			Sequence:     m.Sequence,
			StaffID:      generic.StaffID(m.StaffID),
			StaffName:    m.StaffName,
			RedeemedDate: date,
			ServiceName:  m.ServiceName,
			ServiceValue: m.ServiceValue,
			SittingIndex: m.SittingIndex,
			IsInitial:    m.IsInitial,
		}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", m.Kind)
}

func templateModelOf(t catalog.Template) TemplateModel {
	return TemplateModel{
		ID:           string(t.ID),
		Kind:         string(t.Kind),
		Name:         t.Name,
		OutletID:     string(t.OutletID),
		PackageValue: t.PackageValue,
		ServiceValue: t.ServiceValue,
		PaidSittings: t.PaidSittings,
		FreeSittings: t.FreeSittings,
		ServiceID:    string(t.ServiceID),
		ServiceName:  t.ServiceName,
		CreatedDate:  t.CreatedAt.OrToday().String(),
	}
}

func (m TemplateModel) toTemplate() catalog.Template {
	created, _ := generic.ParseDate(m.CreatedDate)
	return catalog.Template{
		ID:           generic.TemplateID(m.ID),
		Kind:         catalog.Kind(m.Kind),
		Name:         m.Name,
		OutletID:     generic.OutletID(m.OutletID),
		PackageValue: m.PackageValue,
		ServiceValue: m.ServiceValue,
		PaidSittings: m.PaidSittings,
		FreeSittings: m.FreeSittings,
		ServiceID:    generic.ServiceID(m.ServiceID),
		ServiceName:  m.ServiceName,
		CreatedAt:    created,
	}
}
