// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// maxPageSize caps list page sizes across the API.
const maxPageSize = 200

// AtoiDefault converts a string to an int using strconv.Atoi. If the
// string is empty or cannot be parsed as an integer, it returns the
// provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit bounds a caller-supplied page size to [1, maxPageSize].
func ClampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
