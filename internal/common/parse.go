package common

import (
	"strconv"
	"strings"
)

// ParseInt64String converts a decimal string into an int64. The node returns
// counters, gas limits and balances as quoted decimal strings.
func ParseInt64String(val *string) (int64, error) {
	if val == nil {
		return 0, nil
	}
	return strconv.ParseInt(*val, 10, 64)
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
