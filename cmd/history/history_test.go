package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/repotorpedo/torpedo/cmd/test"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `[
  {"url": "https://site.onrender.com", "date": "2024-05-01T10:00:00Z", "status": "Success"},
  {"url": "https://github.com/octo/site", "date": "2024-04-30T09:00:00Z", "status": "Failed"}
]`

func TestHistoryListEmpty(t *testing.T) {
	test.NewEnv(t)

	stdout, _, err := test.ExecuteCommand(NewCmdHistory())
	require.NoError(t, err)
	assert.Equal(t, "No deployments yet.\n", stdout)
}

func TestHistoryImportListExport(t *testing.T) {
	env := test.NewEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(in, []byte(export), 0o600))

	stdout, _, err := test.ExecuteCommand(NewCmdHistory(), "import", in)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Imported 2 records.")

	stdout, _, err = test.ExecuteCommand(NewCmdHistory(), "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://site.onrender.com")
	assert.Contains(t, stdout, "Failed")

	stdout, _, err = test.ExecuteCommand(NewCmdHistory(), "export")
	require.NoError(t, err)
	assert.JSONEq(t, export, stdout)

	out := filepath.Join(dir, "out.json")
	_, _, err = test.ExecuteCommand(NewCmdHistory(), "export", "-o", out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, export, string(data))

	recs, err := env.Services.History.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestHistoryImportInvalidKeepsHistory(t *testing.T) {
	env := test.NewEnv(t)
	require.NoError(t, env.Services.History.Record(context.Background(),
		domain.NewHistoryRecord("https://kept.example", time.Now(), domain.HistoryStatusSuccess)))

	tests := []struct {
		name    string
		content string
	}{
		{"not an array", `{"url": "x"}`},
		{"bad status", `[{"url": "x", "date": "d", "status": "Maybe"}]`},
		{"missing field", `[{"url": "x", "date": "d"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := filepath.Join(t.TempDir(), "in.json")
			require.NoError(t, os.WriteFile(in, []byte(tt.content), 0o600))

			_, _, err := test.ExecuteCommand(NewCmdHistory(), "import", in)
			assert.ErrorIs(t, err, domain.ErrValidation)

			recs, err := env.Services.History.List(context.Background())
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "https://kept.example", recs[0].URL)
		})
	}
}

func TestHistoryImportMissingFile(t *testing.T) {
	test.NewEnv(t)

	_, stderr, err := test.ExecuteCommand(NewCmdHistory(), "import", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	assert.Contains(t, stderr, "failed to read")
}
