package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s got %s", want, got)
}

func TestPriceInclusiveExtractsTax(t *testing.T) {
	amounts, err := Price(TaxInclusive, Line{Quantity: d("10"), UnitPrice: d("110"), DiscountPct: d("0"), TaxPct: d("10")})
	require.NoError(t, err)
	requireDecimal(t, "1100.00", amounts.Total)
	requireDecimal(t, "1000.00", amounts.Net)
	requireDecimal(t, "100.00", amounts.Tax)
}

func TestPriceExclusiveAppliesDiscountBeforeTax(t *testing.T) {
	amounts, err := Price(TaxExclusive, Line{Quantity: d("3"), UnitPrice: d("19.99"), DiscountPct: d("10"), TaxPct: d("17")})
	require.NoError(t, err)
	// 3*19.99 = 59.97, less 10% = 53.973, tax 9.17541
	requireDecimal(t, "53.97", amounts.Net)
	requireDecimal(t, "9.18", amounts.Tax)
	requireDecimal(t, "63.15", amounts.Total)
}

func TestDocumentSumsRoundedLinesThenAddsCharges(t *testing.T) {
	lines := []Line{
		{Quantity: d("1"), UnitPrice: d("0.015"), TaxPct: d("0")},
		{Quantity: d("1"), UnitPrice: d("0.015"), TaxPct: d("0")},
		{Quantity: d("1"), UnitPrice: d("0.015"), TaxPct: d("0")},
	}
	totals, err := Document(TaxExclusive, lines, d("50"), d("12.5"))
	require.NoError(t, err)
	require.Len(t, totals.Lines, 3)
	// each line rounds to 0.02 before summing; summing first would give 0.05
	requireDecimal(t, "0.06", totals.Subtotal)
	requireDecimal(t, "0", totals.Tax)
	requireDecimal(t, "62.56", totals.Total)
}

func TestDocumentFreightIsNotTaxed(t *testing.T) {
	totals, err := Document(TaxExclusive, []Line{{Quantity: d("2"), UnitPrice: d("100"), TaxPct: d("10")}}, d("30"), d("0"))
	require.NoError(t, err)
	requireDecimal(t, "200", totals.Subtotal)
	requireDecimal(t, "20", totals.Tax)
	requireDecimal(t, "250", totals.Total)
}

func TestPriceRejectsInvalidInput(t *testing.T) {
	_, err := Price(TaxExclusive, Line{Quantity: d("-1"), UnitPrice: d("1")})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = Price(TaxExclusive, Line{Quantity: d("1"), UnitPrice: d("1"), DiscountPct: d("101")})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = Price(TaxMode("Gross"), Line{Quantity: d("1"), UnitPrice: d("1")})
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = Document(TaxInclusive, nil, d("-5"), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidLine)
}
