package ledger

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/package-ledger/generic"
)

// mobilePattern accepts 10-digit Indian mobile numbers.
var mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

var maxGST = decimal.NewFromInt(100)

// validateCustomer trims and checks the customer fields shared by both
// assignment paths.
func validateCustomer(name, mobile string) (string, string, error) {
	name = strings.TrimSpace(name)
	mobile = strings.TrimSpace(mobile)
	if name == "" {
		return "", "", generic.NewValidationError("customerName", "is required")
	}
	if !mobilePattern.MatchString(mobile) {
		return "", "", generic.NewValidationError("customerMobile",
			"must be a 10-digit mobile number starting with 6-9")
	}
	return name, mobile, nil
}

// validateItems checks every line item and fills LineTotal.
func validateItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, generic.NewValidationError("items", "at least one service is required")
	}
	out := make([]LineItem, len(items))
	for i, it := range items {
		it.ServiceName = strings.TrimSpace(it.ServiceName)
		switch {
		case it.ServiceName == "":
			return nil, generic.NewItemValidationError(i, "serviceName", "is required")
		case it.Quantity <= 0:
			return nil, generic.NewItemValidationError(i, "quantity", "must be greater than zero")
		case !it.UnitPrice.IsPositive():
			return nil, generic.NewItemValidationError(i, "unitPrice", "must be greater than zero")
		}
		it.UnitPrice = generic.RoundMoney(it.UnitPrice)
		it.LineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		out[i] = it
	}
	return out, nil
}

func validateGST(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(maxGST) {
		return generic.NewValidationError("gstPercentage", "must be between 0 and 100")
	}
	if !pct.Equal(pct.Round(2)) {
		return generic.NewValidationError("gstPercentage", "allows at most two decimal places")
	}
	return nil
}

// Totals is the arithmetic of one value redemption.
type Totals struct {
	Subtotal      decimal.Decimal
	GSTPercentage decimal.Decimal
	GSTAmount     decimal.Decimal
	GrandTotal    decimal.Decimal
}

// ComputeTotals sums validated items and applies GST:
//
//	subtotal = sum(quantity * unitPrice)
//	gst      = round2(subtotal * pct / 100)
//	grand    = subtotal + gst
func ComputeTotals(items []LineItem, gstPercentage decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal)
	}
	gst := generic.PercentOf(subtotal, gstPercentage)
	return Totals{
		Subtotal:      subtotal,
		GSTPercentage: gstPercentage,
		GSTAmount:     gst,
		GrandTotal:    subtotal.Add(gst),
	}
}
