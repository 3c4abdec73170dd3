package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"budgetly/internal/core"
)

var nowFunc = time.Now

const (
	lastColumn = "J"
	idColumn   = "J"
)

var ledgerHeader = []interface{}{
	"Date", "Month", "Description", "Category", "Type",
	"Amount", "Currency", "Original amount", "Original currency", "ID",
}

func ledgerRow(tx core.Transaction, categoryName string) []interface{} {
	var original interface{} = ""
	if tx.OriginalCurrency != "" {
		original = tx.OriginalAmount
	}
	return []interface{}{
		tx.Date.String(),
		tx.Date.Key().String(),
		tx.Description,
		categoryName,
		string(tx.Type),
		tx.Amount,
		tx.Currency,
		original,
		tx.OriginalCurrency,
		tx.ID,
	}
}

// findRow returns the 1-based row whose first cell equals id, or 0.
func findRow(rows [][]interface{}, id string) int {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// rowHolds reports whether a single-row read of A:J carries id in the id
// column.
func rowHolds(rows [][]interface{}, id string) bool {
	if len(rows) != 1 || len(rows[0]) < len(ledgerHeader) {
		return false
	}
	return strings.TrimSpace(fmt.Sprint(rows[0][len(ledgerHeader)-1])) == id
}

// splitRowRef splits "Sheet!A5:J5" into the sheet name and row 5.
func splitRowRef(ref string) (string, int, bool) {
	i := strings.LastIndex(ref, "!")
	if i <= 0 {
		return "", 0, false
	}
	first, _, _ := strings.Cut(ref[i+1:], ":")
	row, err := strconv.Atoi(strings.TrimLeft(first, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil || row < 2 {
		return "", 0, false
	}
	return ref[:i], row, true
}

// parseRatesTable converts a values matrix into currencies. Rows without a
// valid code or a positive rate are skipped.
func parseRatesTable(values [][]interface{}) ([]core.Currency, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colCode := indexOf(headers, "Code")
	colRate := indexOf(headers, "Rate")
	if colCode == -1 || colRate == -1 {
		return nil, fmt.Errorf("unexpected rates header: want Code and Rate, got headers=%v", headers)
	}
	colName := indexOf(headers, "Name")
	colSymbol := indexOf(headers, "Symbol")

	var out []core.Currency
	for _, raw := range values[1:] {
		row := toStrings(raw)
		code := strings.ToUpper(safeGet(row, colCode))
		if !core.ValidCurrencyCode(code) {
			continue
		}
		rate, ok := parseDecimal(safeGet(row, colRate))
		if !ok || rate <= 0 {
			continue
		}
		name := safeGet(row, colName)
		if name == "" {
			name = code
		}
		out = append(out, core.Currency{Code: code, Name: name, Symbol: safeGet(row, colSymbol), Rate: rate})
	}
	return out, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseDecimal accepts "1.5", "1,5" and "1.234,5".
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
