package history

import (
	"testing"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Format(t *testing.T) {
	data, err := Encode([]domain.HistoryRecord{
		{URL: "https://site.example", Date: "2024-01-01", Status: domain.HistoryStatusSuccess},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `[{"url":"https://site.example","date":"2024-01-01","status":"Success"}]`, string(data))
}

func TestEncode_EmptyIsArray(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestDecode_Valid(t *testing.T) {
	recs, err := Decode([]byte(`
	[
	  {"url": "https://b.example", "date": "2024-02-01", "status": "Failed"},
	  {"status": "Success", "date": "2024-01-01", "url": "https://a.example"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.HistoryRecord{
		{URL: "https://b.example", Date: "2024-02-01", Status: domain.HistoryStatusFailed},
		{URL: "https://a.example", Date: "2024-01-01", Status: domain.HistoryStatusSuccess},
	}, recs)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"empty input", ``, "expected a JSON array"},
		{"object at top level", `{"url":"x"}`, "expected a JSON array"},
		{"null", `null`, "expected a JSON array"},
		{"truncated", `[{"url":"x"`, "invalid JSON"},
		{"trailing data", `[] []`, "unexpected data"},
		{"element not object", `[1]`, "entry 1: expected an object"},
		{"null element", `[null]`, "entry 1: expected an object"},
		{"missing status", `[{"url":"x","date":"d"}]`, `entry 1: missing "status"`},
		{"number field", `[{"url":"x","date":5,"status":"Success"}]`, `entry 1: "date" must be a string`},
		{"null field", `[{"url":null,"date":"d","status":"Success"}]`, `entry 1: "url" must be a string`},
		{"unknown field", `[{"url":"x","date":"d","status":"Success","extra":1}]`, `entry 1: unknown field "extra"`},
		{"bad status", `[{"url":"x","date":"d","status":"Done"}]`, "entry 1: status must be"},
		{"empty url", `[{"url":"","date":"d","status":"Success"}]`, "entry 1: url is required"},
		{"second entry bad", `[{"url":"x","date":"d","status":"Success"},{"url":"y"}]`, "entry 2"},
		{"invalid utf8", "[\xff]", "not valid UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Decode([]byte(tt.input))
			assert.Nil(t, recs)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
