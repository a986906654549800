package fingerprint

import (
	"testing"

	"github.com/chmdznr/recsync/pkg/models"
	"github.com/stretchr/testify/assert"
)

func rec(pairs ...string) models.Record {
	r := make(models.Record)
	for i := 0; i+1 < len(pairs); i += 2 {
		r[pairs[i]] = models.StringPtr(pairs[i+1])
	}
	return r
}

func TestFingerprint_Format(t *testing.T) {
	fp := Fingerprint(rec("KEY", "1"))

	assert.Len(t, fp, 64)
	assert.Regexp(t, "^[0-9a-f]+$", fp)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	cols := []string{"KEY", "CAT", "STATUS", "BUDGET"}
	vals := map[string]string{"KEY": "1", "CAT": "X", "STATUS": "open", "BUDGET": "10"}

	permutations := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	var digests []string
	for _, perm := range permutations {
		ordered := make([]string, 0, len(cols))
		for _, i := range perm {
			ordered = append(ordered, cols[i])
		}
		r := make(models.Record)
		for _, c := range ordered {
			r[c] = models.StringPtr(vals[c])
		}
		digests = append(digests, Fingerprint(r))
		assert.Equal(t, digests[0], Columns(ordered, r))
	}
	for _, d := range digests[1:] {
		assert.Equal(t, digests[0], d)
	}
}

func TestFingerprint_NullNormalization(t *testing.T) {
	withNil := models.Record{"KEY": models.StringPtr("1"), "CAT": nil}
	withEmpty := rec("KEY", "1", "CAT", "")
	withSpaces := rec("KEY", " 1 ", "CAT", "  ")

	assert.Equal(t, Fingerprint(withNil), Fingerprint(withEmpty))
	assert.Equal(t, Fingerprint(withNil), Fingerprint(withSpaces))
	assert.Equal(t, Fingerprint(withNil), Columns([]string{"KEY", "CAT"}, rec("KEY", "1")))
}

func TestFingerprint_DetectsDifferences(t *testing.T) {
	base := Fingerprint(rec("KEY", "1", "CAT", "X"))

	assert.NotEqual(t, base, Fingerprint(rec("KEY", "1", "CAT", "Y")))
	assert.NotEqual(t, base, Fingerprint(rec("KEY", "1", "CAT", "X", "NEW", "")), "extra column changes the digest")
	assert.NotEqual(t, base, Fingerprint(rec("KEY", "1", "CAT ", "X")))
}
