// Package idutil generates document ids and rev_id tokens: the
// "<generation>-<digest>" pairs the revision store needs on every write.
//
// Unlike a content hash, the digest half is an opaque random token, so
// this package wraps google/uuid directly rather than hashing anything.
package idutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/revtree/ldb/internal/types"
)

// NewDocID generates a docid for documents inserted without one.
func NewDocID() string {
	return uuid.NewString()
}

// NewDigest generates the opaque token half of a rev_id.
func NewDigest() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FormatRevID builds a "<gen>-<digest>" rev_id.
func FormatRevID(generation int, digest string) string {
	return fmt.Sprintf("%d-%s", generation, digest)
}

// ParseGeneration extracts the leading generation integer from a rev_id.
// Returns ErrBadRequest if the rev_id is not of the form
// "<positive-decimal-integer>-<token>".
func ParseGeneration(revID string) (int, error) {
	idx := strings.IndexByte(revID, '-')
	if idx <= 0 {
		return 0, types.NewStatusError(400, "malformed rev_id: missing generation")
	}
	gen, err := strconv.Atoi(revID[:idx])
	if err != nil || gen <= 0 {
		return 0, types.NewStatusError(400, "malformed rev_id: generation must be a positive integer")
	}
	return gen, nil
}

// NextRevID parses prevRevID's generation, increments it, and mints a
// fresh digest. prevRevID == "" mints generation 1 (a root revision).
func NextRevID(prevRevID string) (string, error) {
	gen := 0
	if prevRevID != "" {
		g, err := ParseGeneration(prevRevID)
		if err != nil {
			return "", err
		}
		gen = g
	}
	return FormatRevID(gen+1, NewDigest()), nil
}
