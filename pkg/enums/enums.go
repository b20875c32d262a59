// Package enums holds the string enums shared by models, services and the
// Postgres enum types created in the migrations.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse matches raw input case-insensitively after trimming.
func parse[T ~string](what string, set []T, raw string) (T, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range set {
		if string(candidate) == norm {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid %s %q", what, raw)
}
