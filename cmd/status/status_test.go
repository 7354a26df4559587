package status

import (
	"strings"
	"testing"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/cmd/test"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		connect map[string]string
		want    []string
	}{
		{
			name: "signed out",
			want: []string{"not signed in", "Hosts", "none", "Sign in with GitHub"},
		},
		{
			name:    "signed in without hosts",
			connect: map[string]string{"github": "octocat"},
			want:    []string{"octocat", "none"},
		},
		{
			name:    "ready to deploy",
			connect: map[string]string{"github": "octocat", "render": "team@example.com"},
			want:    []string{"octocat", "render"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := test.NewEnv(t)
			for id, label := range tt.connect {
				env.Connect(t, id, label)
			}

			stdout, _, err := test.ExecuteCommand(NewCmdStatus())
			require.NoError(t, err)
			assert.False(t, strings.HasSuffix(stdout, "\n\n"), "no blank line after the table")
			for _, want := range tt.want {
				assert.Contains(t, stdout, want)
			}
		})
	}
}

func TestStatusNotInitialized(t *testing.T) {
	app.SetServicesForTesting(nil)

	_, _, err := test.ExecuteCommand(NewCmdStatus())
	assert.ErrorIs(t, err, utils.ErrNotInitialized)
}
