package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/sonic"
)

func TestAmountUnmarshalJSON(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		expected float64
	}{
		{name: "plain_number", payload: `123.45`, expected: 123.45},
		{name: "integer", payload: `500`, expected: 500},
		{name: "numeric_string", payload: `"123.45"`, expected: 123.45},
		{name: "thousands_separator", payload: `"1,234.56"`, expected: 1234.56},
		{name: "yen_prefix", payload: `"¥1,000"`, expected: 1000},
		{name: "dollar_prefix", payload: `"$99.99"`, expected: 99.99},
		{name: "padded_string", payload: `"  42  "`, expected: 42},
		{name: "garbage_string", payload: `"n/a"`, expected: 0},
		{name: "empty_string", payload: `""`, expected: 0},
		{name: "null", payload: `null`, expected: 0},
		{name: "negative", payload: `"-25.5"`, expected: -25.5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var amount Amount
			require.NoError(t, amount.UnmarshalJSON([]byte(tc.payload)))
			assert.InDelta(t, tc.expected, amount.Float64(), 1e-9)
		})
	}
}

func TestRecordDecodingToleratesMixedAmounts(t *testing.T) {
	payload := `{
		"status": "success",
		"data": [
			{"id": "r1", "date": "2025-01-01", "amount": 100.5, "status": "success"},
			{"id": "r2", "date": "2025-01-02", "amount": "¥2,000", "status": "failed"},
			{"id": "r3", "date": "2025-01-03", "amount": "bogus", "status": "refunded"}
		]
	}`

	var envelope UpstreamEnvelope
	require.NoError(t, sonic.Unmarshal([]byte(payload), &envelope))

	require.Len(t, envelope.Data, 3)
	assert.InDelta(t, 100.5, envelope.Data[0].Amount.Float64(), 1e-9)
	assert.InDelta(t, 2000, envelope.Data[1].Amount.Float64(), 1e-9)
	assert.Zero(t, envelope.Data[2].Amount.Float64())
}

func TestQueryRequestParamsExcludeCredentials(t *testing.T) {
	req := &QueryRequest{
		ProjectID: "demo",
		UKCode:    "UK-001",
		StartDate: "2025-01-01",
		EndDate:   "2025-01-31",
		AuthKey:   "secret",
		AppID:     "app-1",
	}

	params := req.Params()

	assert.Len(t, params, 4)
	assert.NotContains(t, params, "auth_key")
	assert.NotContains(t, params, "app_id")
	assert.Equal(t, "demo", params["project_id"])
}
