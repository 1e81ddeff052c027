package query

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
)

// Signature derives the deterministic cache/dedup key for a request:
// the endpoint plus its parameter mapping with keys in sorted order, so
// two requests with the same values always collide regardless of the
// order the parameters were supplied in.
func Signature(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := md5.New()
	hash.Write([]byte(endpoint))
	for _, key := range keys {
		hash.Write([]byte{0})
		hash.Write([]byte(key))
		hash.Write([]byte{'='})
		hash.Write([]byte(params[key]))
	}

	return hex.EncodeToString(hash.Sum(nil))
}
