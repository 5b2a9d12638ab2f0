package numbering

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatOrganizationNumber renders an organization sequence number, e.g. INV-0042.
func FormatOrganizationNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// FormatCustomerNumber renders a customer override number, e.g. ACME-007.
func FormatCustomerNumber(prefix string, next int64) string {
	return fmt.Sprintf("%s-%03d", prefix, next)
}

// Series describes the prefix/suffix split of an invoice number.
type Series struct {
	Prefix string
	Suffix int64
	Width  int
}

// defaultSeriesWidth pads suffixes of numbers that had no numeric tail.
const defaultSeriesWidth = 3

// SplitNumber splits "INV-2024-0007" into prefix "INV-2024", suffix 7, width 4.
// Numbers without a numeric tail become the prefix of a fresh series.
func SplitNumber(number string) Series {
	idx := strings.LastIndex(number, "-")
	if idx <= 0 || idx == len(number)-1 {
		return Series{Prefix: number, Width: defaultSeriesWidth}
	}
	tail := number[idx+1:]
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || n < 0 || strings.ContainsAny(tail, "+-") {
		return Series{Prefix: number, Width: defaultSeriesWidth}
	}
	return Series{Prefix: number[:idx], Suffix: n, Width: len(tail)}
}

// Format renders suffix n within the series.
func (s Series) Format(n int64) string {
	width := s.Width
	if width <= 0 {
		width = defaultSeriesWidth
	}
	return fmt.Sprintf("%s-%0*d", s.Prefix, width, n)
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
