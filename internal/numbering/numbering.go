// Package numbering mints human-readable document numbers of the form
// <PREFIX>-<YYYYMMDD>-<NNNN>.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document prefixes.
const (
	PrefixRequisition   = "PR"
	PrefixPurchaseOrder = "PO"
	PrefixGRN           = "GRN"
	PrefixInvoice       = "INV"
)

const dateLayout = "20060102"

// Format renders a document number for counter n on day. Counters past 9999
// keep growing instead of wrapping.
func Format(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format(dateLayout), n)
}

// ParseCounter extracts the trailing counter of a number shaped
// <PREFIX>-<YYYYMMDD>-<NNNN>. ok is false for anything else.
func ParseCounter(number string) (n int64, ok bool) {
	parts := strings.Split(strings.TrimSpace(number), "-")
	if len(parts) != 3 || parts[0] == "" {
		return 0, false
	}
	if len(parts[1]) != len(dateLayout) {
		return 0, false
	}
	if _, err := time.Parse(dateLayout, parts[1]); err != nil {
		return 0, false
	}
	if len(parts[2]) < 4 {
		return 0, false
	}
	n, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Seed returns the counter value a sequence resumes from when last is the
// newest stored number. Empty or malformed numbers start from zero.
func Seed(last string) int64 {
	n, ok := ParseCounter(last)
	if !ok {
		return 0
	}
	return n
}

// Next returns the number following last. An empty or malformed last number
// starts a fresh sequence at 1.
func Next(prefix, last string, now time.Time) string {
	return Format(prefix, now, Seed(last)+1)
}
