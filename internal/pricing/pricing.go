// Package pricing computes purchase order line and document amounts.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxMode selects how a line's tax percentage relates to its price.
type TaxMode string

const (
	// TaxExclusive adds tax on top of the discounted price.
	TaxExclusive TaxMode = "Exclusive"
	// TaxInclusive treats the discounted price as already containing tax.
	TaxInclusive TaxMode = "Inclusive"
)

// Valid reports whether m is a known mode.
func (m TaxMode) Valid() bool {
	return m == TaxExclusive || m == TaxInclusive
}

// ErrInvalidLine reports line input that cannot be priced.
var ErrInvalidLine = errors.New("pricing: invalid line")

const scale = 2

var hundred = decimal.NewFromInt(100)

// Line holds the raw inputs of one line.
type Line struct {
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
}

// LineAmounts are the rounded amounts of one line.
type LineAmounts struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// Totals are the document-level sums.
type Totals struct {
	Lines     []LineAmounts
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Freight   decimal.Decimal
	Insurance decimal.Decimal
	Total     decimal.Decimal
}

// Validate checks line bounds.
func (l Line) Validate() error {
	switch {
	case l.Quantity.IsNegative():
		return fmt.Errorf("%w: negative quantity", ErrInvalidLine)
	case l.UnitPrice.IsNegative():
		return fmt.Errorf("%w: negative unit price", ErrInvalidLine)
	case l.DiscountPct.IsNegative() || l.DiscountPct.GreaterThan(hundred):
		return fmt.Errorf("%w: discount must be within 0..100", ErrInvalidLine)
	case l.TaxPct.IsNegative():
		return fmt.Errorf("%w: negative tax", ErrInvalidLine)
	}
	return nil
}

// Price computes a single line. Each amount is rounded to cents.
func Price(mode TaxMode, l Line) (LineAmounts, error) {
	if !mode.Valid() {
		return LineAmounts{}, fmt.Errorf("%w: unknown tax mode %q", ErrInvalidLine, mode)
	}
	if err := l.Validate(); err != nil {
		return LineAmounts{}, err
	}
	discounted := l.Quantity.Mul(l.UnitPrice).Mul(decimal.NewFromInt(1).Sub(l.DiscountPct.Div(hundred)))

	var net, tax, total decimal.Decimal
	if mode == TaxInclusive {
		total = discounted
		net = total.Div(decimal.NewFromInt(1).Add(l.TaxPct.Div(hundred)))
		tax = total.Sub(net)
	} else {
		net = discounted
		tax = net.Mul(l.TaxPct).Div(hundred)
		total = net.Add(tax)
	}
	return LineAmounts{
		Net:   net.Round(scale),
		Tax:   tax.Round(scale),
		Total: total.Round(scale),
	}, nil
}

// Document prices every line and aggregates the rounded values. Freight and
// insurance are added after tax and are never taxed themselves.
func Document(mode TaxMode, lines []Line, freight, insurance decimal.Decimal) (Totals, error) {
	if freight.IsNegative() || insurance.IsNegative() {
		return Totals{}, fmt.Errorf("%w: negative charges", ErrInvalidLine)
	}
	totals := Totals{
		Lines:     make([]LineAmounts, 0, len(lines)),
		Subtotal:  decimal.Zero,
		Tax:       decimal.Zero,
		Freight:   freight.Round(scale),
		Insurance: insurance.Round(scale),
	}
	for i, line := range lines {
		amounts, err := Price(mode, line)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		totals.Lines = append(totals.Lines, amounts)
		totals.Subtotal = totals.Subtotal.Add(amounts.Net)
		totals.Tax = totals.Tax.Add(amounts.Tax)
	}
	totals.Total = totals.Subtotal.Add(totals.Tax).Add(totals.Freight).Add(totals.Insurance)
	return totals, nil
}
