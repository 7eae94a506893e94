package middleware

import "strconv"

// ValidateLimit parses a history limit query value. Missing or invalid
// values fall back to def; values are capped at max.
func ValidateLimit(raw string, def, max int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
