// Package fingerprint computes order-independent content digests of records.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/chmdznr/recsync/internal/normalize"
	"github.com/chmdznr/recsync/pkg/models"
)

// Fingerprint hashes the sorted field=value tokens of rec with SHA-256.
func Fingerprint(rec models.Record) string {
	tokens := make([]string, 0, len(rec))
	for field, v := range rec {
		tokens = append(tokens, field+"="+normalize.NormalizeValue(v))
	}
	sort.Strings(tokens)
	sum := sha256.Sum256([]byte(strings.Join(tokens, "|")))
	return hex.EncodeToString(sum[:])
}

// Columns fingerprints rec projected onto columns; absent columns count as
// empty and fields outside columns are ignored.
func Columns(columns []string, rec models.Record) string {
	projected := make(models.Record, len(columns))
	for _, c := range columns {
		projected[c] = rec[c]
	}
	return Fingerprint(projected)
}
