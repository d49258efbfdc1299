package shared

import (
	"strings"

	"github.com/google/uuid"
)

// sourceKeyNamespace scopes deterministic keys of trigger-generated records.
var sourceKeyNamespace = uuid.MustParse("5d0b7f3e-8c1a-4f61-9d0e-2a6c1b7e4f90")

// SourceKey derives a stable identifier from parts. Generating the same
// record twice yields the same key, so upserts keyed on it stay idempotent.
func SourceKey(parts ...string) uuid.UUID {
	return uuid.NewSHA1(sourceKeyNamespace, []byte(strings.Join(parts, ":")))
}
