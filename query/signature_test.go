package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureDeterministic(t *testing.T) {
	params := map[string]string{
		"project_id": "demo",
		"uk_code":    "UK-001",
		"start_date": "2025-01-01",
		"end_date":   "2025-01-31",
	}

	first := Signature("/api/query", params)
	second := Signature("/api/query", params)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}

func TestSignatureIgnoresInsertionOrder(t *testing.T) {
	a := map[string]string{"alpha": "1", "beta": "2", "gamma": "3"}
	b := map[string]string{"gamma": "3", "alpha": "1", "beta": "2"}

	assert.Equal(t, Signature("/api/query", a), Signature("/api/query", b))
}

func TestSignatureSensitivity(t *testing.T) {
	base := map[string]string{"project_id": "demo", "uk_code": "UK-001"}
	sig := Signature("/api/query", base)

	t.Run("different_endpoint", func(t *testing.T) {
		assert.NotEqual(t, sig, Signature("/api/other", base))
	})

	t.Run("different_value", func(t *testing.T) {
		changed := map[string]string{"project_id": "demo", "uk_code": "UK-002"}
		assert.NotEqual(t, sig, Signature("/api/query", changed))
	})

	t.Run("different_key", func(t *testing.T) {
		changed := map[string]string{"project_id": "demo", "region": "UK-001"}
		assert.NotEqual(t, sig, Signature("/api/query", changed))
	})

	t.Run("extra_param", func(t *testing.T) {
		extra := map[string]string{"project_id": "demo", "uk_code": "UK-001", "page": "1"}
		assert.NotEqual(t, sig, Signature("/api/query", extra))
	})
}

func TestSignatureKeyValueBoundary(t *testing.T) {
	// "ab"="c" and "a"="bc" must not hash identically.
	a := Signature("/api/query", map[string]string{"ab": "c"})
	b := Signature("/api/query", map[string]string{"a": "bc"})

	assert.NotEqual(t, a, b)
}

func TestSignatureEmptyParams(t *testing.T) {
	assert.Equal(t, Signature("/api/query", nil), Signature("/api/query", map[string]string{}))
}
