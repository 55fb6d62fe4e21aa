package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/package-ledger/generic"
)

func TestComputeTotals_RoundsGSTToPaise(t *testing.T) {
	items, err := validateItems([]LineItem{
		{ServiceName: "Cleanup", Quantity: 3, UnitPrice: decimal.RequireFromString("333.333")},
	})
	require.NoError(t, err)

	// 333.333 rounds to 333.33 per unit before multiplying
	totals := ComputeTotals(items, decimal.NewFromInt(18))
	assert.Equal(t, "999.99", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "180.00", totals.GSTAmount.StringFixed(2))
	assert.Equal(t, "1179.99", totals.GrandTotal.StringFixed(2))
}

func TestComputeTotals_ZeroGST(t *testing.T) {
	items, err := validateItems([]LineItem{{ServiceName: "Facial", Quantity: 2, UnitPrice: generic.NewMoney(750)}})
	require.NoError(t, err)

	totals := ComputeTotals(items, decimal.Zero)
	assert.True(t, totals.GSTAmount.IsZero())
	assert.True(t, totals.GrandTotal.Equal(generic.NewMoney(1500)))
}

func TestApplySitting_VersionAndIndex(t *testing.T) {
	p := SittingsPackage{ID: "pkg_1", TotalSittings: 4, RemainingSittings: 4, Version: 1, ServiceName: "Haircut"}

	initial, rec, snap := applySitting(p, "stf-1", "Priya", generic.Today(), true)
	assert.Equal(t, int64(1), initial.Version)
	assert.Equal(t, 1, rec.SittingIndex)
	assert.Equal(t, int64(1), rec.Sequence)
	assert.Equal(t, 3, snap.RemainingSittings)

	next, rec, _ := applySitting(initial, "stf-1", "Priya", generic.Today(), false)
	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, 2, rec.SittingIndex)
	assert.Equal(t, int64(2), rec.Sequence)
}

func TestInvoiceNumber_Stable(t *testing.T) {
	snap := InvoiceSnapshot{
		RecordID:     "rdm_0123456789abcdef",
		RedeemedDate: generic.NewTimePoint(2025, time.March, 14),
	}
	assert.Equal(t, "INV-20250314-ABCDEF", InvoiceNumber(snap))
	assert.Equal(t, InvoiceNumber(snap), InvoiceNumber(snap))
}

func TestValidateGST(t *testing.T) {
	tests := []struct {
		pct   string
		valid bool
	}{
		{"0", true},
		{"18", true},
		{"12.5", true},
		{"5.10", true},
		{"5.125", false},
		{"-1", false},
		{"100.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.pct, func(t *testing.T) {
			err := validateGST(decimal.RequireFromString(tt.pct))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "gstPercentage", ve.Field)
		})
	}
}
