package google

import (
	"fmt"
	"strconv"
	"strings"
)

// monthPrefixedName returns "<YYYY-MM> <base>" unless base already starts
// with a month key.
func monthPrefixedName(base, monthKey string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return monthKey
	}
	if len(base) >= 8 && base[7] == ' ' && isMonthKey(base[:7]) {
		return base
	}
	return fmt.Sprintf("%s %s", monthKey, base)
}

func isMonthKey(s string) bool {
	if len(s) != 7 || s[4] != '-' {
		return false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1900 || y > 3000 {
		return false
	}
	m, err := strconv.Atoi(s[5:])
	return err == nil && m >= 1 && m <= 12
}
