package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/generic"
)

// =============================================================================
// TEMPLATE STORE - Persistence for templates
// =============================================================================

// TemplateStore persists templates. Implemented by every store backend.
// GetTemplate and DeleteTemplate return a generic.NotFoundError for unknown ids.
type TemplateStore interface {
	SaveTemplate(ctx context.Context, t Template) error
	GetTemplate(ctx context.Context, id generic.TemplateID) (Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	DeleteTemplate(ctx context.Context, id generic.TemplateID) error
}

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

type ChangeType string

const (
	TemplateCreated ChangeType = "created"
	TemplateDeleted ChangeType = "deleted"
)

// ChangeEvent is delivered to subscribers after a successful mutation.
type ChangeEvent struct {
	Type     ChangeType
	Template Template
}

// =============================================================================
// CATALOG
// =============================================================================

// ValueTemplateInput holds the fields of a new value template.
type ValueTemplateInput struct {
	Name         string
	PackageValue decimal.Decimal
	ServiceValue decimal.Decimal
	OutletID     generic.OutletID
}

// SittingsTemplateInput holds the fields of a new sittings template.
type SittingsTemplateInput struct {
	Name         string
	PaidSittings int
	FreeSittings int
	ServiceID    generic.ServiceID
	ServiceName  string
	OutletID     generic.OutletID
}

// Catalog is the PackageTemplateCatalog.
type Catalog struct {
	store  TemplateStore
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[int]func(ChangeEvent)
	nextSub     int
}

func New(store TemplateStore, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		store:       store,
		logger:      logger,
		subscribers: make(map[int]func(ChangeEvent)),
	}
}

// CreateValueTemplate validates and stores a value template.
func (c *Catalog) CreateValueTemplate(ctx context.Context, in ValueTemplateInput) (Template, error) {
	if !in.PackageValue.IsPositive() {
		return Template{}, &generic.InvalidArgumentError{Field: "packageValue", Message: "must be greater than zero"}
	}
	if !in.ServiceValue.IsPositive() {
		return Template{}, &generic.InvalidArgumentError{Field: "serviceValue", Message: "must be greater than zero"}
	}

	t := Template{
		ID:           generic.TemplateID(generic.NewID("tpl")),
		Kind:         KindValue,
		Name:         strings.TrimSpace(in.Name),
		OutletID:     in.OutletID,
		PackageValue: generic.RoundMoney(in.PackageValue),
		ServiceValue: generic.RoundMoney(in.ServiceValue),
		CreatedAt:    generic.Today(),
	}
	return c.save(ctx, t)
}

// CreateSittingsTemplate validates and stores a sittings template.
func (c *Catalog) CreateSittingsTemplate(ctx context.Context, in SittingsTemplateInput) (Template, error) {
	if in.PaidSittings < 1 {
		return Template{}, &generic.InvalidArgumentError{Field: "paidSittings", Message: "must be at least 1"}
	}
	if in.FreeSittings < 1 {
		return Template{}, &generic.InvalidArgumentError{Field: "freeSittings", Message: "must be at least 1"}
	}
	name := strings.TrimSpace(in.ServiceName)
	if name == "" {
		return Template{}, &generic.InvalidArgumentError{Field: "serviceName", Message: "is required"}
	}

	t := Template{
		ID:           generic.TemplateID(generic.NewID("tpl")),
		Kind:         KindSittings,
		Name:         strings.TrimSpace(in.Name),
		OutletID:     in.OutletID,
		PaidSittings: in.PaidSittings,
		FreeSittings: in.FreeSittings,
		ServiceID:    in.ServiceID,
		ServiceName:  name,
		CreatedAt:    generic.Today(),
	}
	return c.save(ctx, t)
}

func (c *Catalog) save(ctx context.Context, t Template) (Template, error) {
	if err := c.store.SaveTemplate(ctx, t); err != nil {
		return Template{}, err
	}
	c.logger.Info("template created",
		zap.String("template_id", string(t.ID)),
		zap.String("kind", string(t.Kind)),
		zap.String("outlet_id", string(t.OutletID)))
	c.publish(ChangeEvent{Type: TemplateCreated, Template: t})
	return t, nil
}

// DeleteTemplate removes a template. Packages already issued from it are
// unaffected since they carry their own copies of the template fields.
func (c *Catalog) DeleteTemplate(ctx context.Context, id generic.TemplateID) error {
	t, err := c.store.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	c.logger.Info("template deleted", zap.String("template_id", string(id)))
	c.publish(ChangeEvent{Type: TemplateDeleted, Template: t})
	return nil
}

func (c *Catalog) GetTemplate(ctx context.Context, id generic.TemplateID) (Template, error) {
	return c.store.GetTemplate(ctx, id)
}

// ListTemplates returns the templates visible to outletID: global ones
// plus those scoped to it. An empty outletID returns every template.
func (c *Catalog) ListTemplates(ctx context.Context, outletID generic.OutletID) ([]Template, error) {
	all, err := c.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if outletID == "" {
		return all, nil
	}
	visible := make([]Template, 0, len(all))
	for _, t := range all {
		if t.VisibleTo(outletID) {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// Subscribe registers fn to receive change events. Events are delivered
// synchronously after the mutation commits. The returned func unsubscribes.
func (c *Catalog) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Catalog) publish(ev ChangeEvent) {
	c.mu.RLock()
	fns := make([]func(ChangeEvent), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// IsKind returns a ValidationError unless t is of the wanted kind.
func IsKind(t Template, want Kind) error {
	if t.Kind == want {
		return nil
	}
	return generic.NewValidationError("templateId",
		"refers to a "+string(t.Kind)+" template, expected "+string(want))
}
