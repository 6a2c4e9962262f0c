// Package runid generates the identifiers of runs and generated output names.
package runid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random RFC 4122 identifier.
func New() string {
	return uuid.NewString()
}

// Hex returns a random identifier as 32 lowercase hex digits.
func Hex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
