/*
Package generic provides the primitives shared by the package ledger.

PURPOSE:
  Money arithmetic, identifiers, calendar dates and the error taxonomy.
  Nothing in here knows what a "value package" or a "sitting" is; the
  catalog and ledger packages build on these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal, never float64
  - Identifiers: type-safe string ids (package, template, record, outlet...)
  - NewID: prefixed random ids ("pkg_5f0c...")

DESIGN PRINCIPLES:
  1. Precision: rupee amounts use decimal.Decimal to avoid float drift
  2. Type Safety: strong typing for ids prevents mixing package/template ids
  3. Rounding happens once, at tax computation, to two places

SEE ALSO:
  - errors.go: Error taxonomy
  - time.go: Calendar dates
*/
package generic

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to (paise).
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// NewMoney converts a float (typically from JSON or a test literal) to money.
func NewMoney(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(MoneyPlaces)
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// PercentOf returns base * pct / 100, rounded to money places.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(pct).Div(hundred))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PackageID string
type TemplateID string
type RecordID string
type OutletID string
type ServiceID string
type StaffID string

// NewID returns a random identifier with the given prefix, e.g. "pkg_3f2a...".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
