package state

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const fingerprintDelimiter = "||"

// Fingerprint derives the stable dedup key for an item from its source and
// identifier. Both parts are trimmed and the source is case-folded; "%" and "|"
// are escaped so distinct pairs never join to the same input.
func Fingerprint(source, id string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	id = strings.TrimSpace(id)
	key := escapeDelimiter(source) + fingerprintDelimiter + escapeDelimiter(id)
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func escapeDelimiter(part string) string {
	return strings.NewReplacer("%", "%25", "|", "%7C").Replace(part)
}
