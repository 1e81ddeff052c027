package analytics

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/saiset-co/sai-query-service/types"
)

type memoized struct {
	records []types.Record
	stats   *types.Stats
	trends  *types.TrendReport
}

// resultMemo caches enrichment output keyed by a content hash of the
// input sequence. Purely an optimization: callers observe identical
// results with or without a hit.
type resultMemo struct {
	mu      sync.Mutex
	entries map[string]memoized
	max     int
}

func newResultMemo(max int) *resultMemo {
	return &resultMemo{
		entries: make(map[string]memoized),
		max:     max,
	}
}

func (m *resultMemo) get(key string) (memoized, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	return entry, ok
}

func (m *resultMemo) put(key string, entry memoized) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.max {
		m.entries = make(map[string]memoized)
	}

	m.entries[key] = entry
}

func contentHash(records []types.Record) string {
	hash := md5.New()

	var buf [8]byte
	for i := range records {
		hash.Write([]byte(records[i].ID))
		hash.Write([]byte{0})
		hash.Write([]byte(records[i].Date))
		hash.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(records[i].Amount.Float64()))
		hash.Write(buf[:])
		hash.Write([]byte(records[i].Status))
		hash.Write([]byte{0})
		hash.Write([]byte(records[i].Details))
		hash.Write([]byte{0})
	}

	return hex.EncodeToString(hash.Sum(nil))
}
