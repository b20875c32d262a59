package metrics

import (
	"strings"

	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
)

const namespace = "posledger"

const resultOK = "ok"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// resultLabel maps an operation outcome to a low-cardinality label:
// "ok" or the lower-cased error code.
func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
