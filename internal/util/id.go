// Package util holds small helpers shared across packages.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier. A non-empty prefix names the kind of
// record, as in "sp_…" for spaces.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
