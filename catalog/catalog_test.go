package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/store/memory"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(memory.New(), nil)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateValueTemplate(t *testing.T) {
	// GIVEN: Pay 20000, get 30000
	// WHEN: Creating the template without a name
	// THEN: It is stored, global, and gets a derived display name

	c := newTestCatalog(t)
	ctx := context.Background()

	tpl, err := c.CreateValueTemplate(ctx, catalog.ValueTemplateInput{
		PackageValue: generic.NewMoney(20000),
		ServiceValue: generic.NewMoney(30000),
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.KindValue, tpl.Kind)
	assert.True(t, tpl.IsGlobal())
	assert.Equal(t, "Pay 20000 Get 30000", tpl.DisplayName())

	got, err := c.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.True(t, got.ServiceValue.Equal(generic.NewMoney(30000)))
}

func TestCreateValueTemplate_NonPositive_Rejected(t *testing.T) {
	c := newTestCatalog(t)

	tests := []struct {
		name  string
		in    catalog.ValueTemplateInput
		field string
	}{
		{"zero package value", catalog.ValueTemplateInput{ServiceValue: generic.NewMoney(100)}, "packageValue"},
		{"negative service value", catalog.ValueTemplateInput{PackageValue: generic.NewMoney(100), ServiceValue: generic.NewMoney(-1)}, "serviceValue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateValueTemplate(context.Background(), tt.in)
			require.ErrorIs(t, err, generic.ErrInvalidArgument)
			var ia *generic.InvalidArgumentError
			require.ErrorAs(t, err, &ia)
			assert.Equal(t, tt.field, ia.Field)
		})
	}
}

func TestCreateSittingsTemplate(t *testing.T) {
	c := newTestCatalog(t)

	tpl, err := c.CreateSittingsTemplate(context.Background(), catalog.SittingsTemplateInput{
		PaidSittings: 3,
		FreeSittings: 1,
		ServiceName:  " Haircut ",
		OutletID:     "out-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, tpl.TotalSittings())
	assert.Equal(t, "Haircut", tpl.ServiceName)
	assert.Equal(t, "Haircut 3+1", tpl.DisplayName())
	assert.True(t, tpl.VisibleTo("out-1"))
	assert.False(t, tpl.VisibleTo("out-2"))
}

func TestCreateSittingsTemplate_Invalid_Rejected(t *testing.T) {
	c := newTestCatalog(t)

	tests := []struct {
		name string
		in   catalog.SittingsTemplateInput
	}{
		{"no paid sittings", catalog.SittingsTemplateInput{FreeSittings: 1, ServiceName: "Haircut"}},
		{"no free sittings", catalog.SittingsTemplateInput{PaidSittings: 3, ServiceName: "Haircut"}},
		{"no service", catalog.SittingsTemplateInput{PaidSittings: 3, FreeSittings: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateSittingsTemplate(context.Background(), tt.in)
			assert.ErrorIs(t, err, generic.ErrInvalidArgument)
		})
	}

	all, err := c.ListTemplates(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// LIST / DELETE / SUBSCRIBE
// =============================================================================

func TestListTemplates_OutletScoping(t *testing.T) {
	// GIVEN: One global template and one per outlet
	// WHEN: Listing for out-1
	// THEN: The global and out-1 templates are returned, in creation order

	c := newTestCatalog(t)
	ctx := context.Background()

	global, err := c.CreateValueTemplate(ctx, catalog.ValueTemplateInput{Name: "Silver", PackageValue: generic.NewMoney(1000), ServiceValue: generic.NewMoney(1200)})
	require.NoError(t, err)
	mine, err := c.CreateSittingsTemplate(ctx, catalog.SittingsTemplateInput{PaidSittings: 5, FreeSittings: 1, ServiceName: "Facial", OutletID: "out-1"})
	require.NoError(t, err)
	_, err = c.CreateSittingsTemplate(ctx, catalog.SittingsTemplateInput{PaidSittings: 5, FreeSittings: 2, ServiceName: "Facial", OutletID: "out-2"})
	require.NoError(t, err)

	visible, err := c.ListTemplates(ctx, "out-1")
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, global.ID, visible[0].ID)
	assert.Equal(t, mine.ID, visible[1].ID)

	all, err := c.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteTemplate(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	tpl, err := c.CreateValueTemplate(ctx, catalog.ValueTemplateInput{PackageValue: generic.NewMoney(1000), ServiceValue: generic.NewMoney(1200)})
	require.NoError(t, err)

	require.NoError(t, c.DeleteTemplate(ctx, tpl.ID))

	_, err = c.GetTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.ErrorIs(t, c.DeleteTemplate(ctx, tpl.ID), generic.ErrNotFound)
}

func TestSubscribe_ReceivesCreateAndDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	var events []catalog.ChangeEvent
	unsubscribe := c.Subscribe(func(ev catalog.ChangeEvent) { events = append(events, ev) })

	tpl, err := c.CreateValueTemplate(ctx, catalog.ValueTemplateInput{PackageValue: generic.NewMoney(1000), ServiceValue: generic.NewMoney(1200)})
	require.NoError(t, err)
	require.NoError(t, c.DeleteTemplate(ctx, tpl.ID))

	require.Len(t, events, 2)
	assert.Equal(t, catalog.TemplateCreated, events[0].Type)
	assert.Equal(t, catalog.TemplateDeleted, events[1].Type)
	assert.Equal(t, tpl.ID, events[1].Template.ID)

	unsubscribe()
	_, err = c.CreateValueTemplate(ctx, catalog.ValueTemplateInput{PackageValue: generic.NewMoney(1), ServiceValue: generic.NewMoney(2)})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestIsKind(t *testing.T) {
	tpl := catalog.Template{ID: "tpl_1", Kind: catalog.KindSittings}
	assert.NoError(t, catalog.IsKind(tpl, catalog.KindSittings))
	assert.ErrorIs(t, catalog.IsKind(tpl, catalog.KindValue), generic.ErrValidation)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDirectory_CaseInsensitiveLookup(t *testing.T) {
	d := catalog.NewDirectory()
	d.PutService(catalog.Service{ID: "svc-1", Name: "Hair Spa", Price: generic.NewMoney(1500)})
	d.PutStaff(catalog.Staff{ID: "stf-1", Name: "Priya"})

	svc, err := d.LookupService(context.Background(), "  hair spa")
	require.NoError(t, err)
	assert.Equal(t, generic.ServiceID("svc-1"), svc.ID)

	_, err = d.LookupStaff(context.Background(), "PRIYA")
	require.NoError(t, err)

	_, err = d.GetOutlet(context.Background(), "out-x")
	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "outlet", nf.Resource)
}
