package netlify

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func writeSite(t *testing.T) []string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "portfolio")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))

	files := map[string]string{
		"index.html":    "<h1>hi</h1>",
		"css/style.css": "h1{color:red}",
	}
	var paths []string
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestArchive(t *testing.T) {
	paths := writeSite(t)
	data, err := Archive(domain.ManifestSource(paths...).Assets)
	require.NoError(t, err)
	assert.Equal(t, []string{"css/style.css", "index.html"}, zipNames(t, data))

	_, err = Archive(domain.ManifestSource(paths[0]).Assets)
	assert.Error(t, err, "css only, no index.html")
}

type fakeNetlify struct {
	mu        sync.Mutex
	takenName string
	names     []string
	upload    []byte
	states    []string
}

func (f *fakeNetlify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sites", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.names = append(f.names, body["name"])
		if body["name"] != "" && body["name"] == f.takenName {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":{"subdomain":["must be unique"]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"site-1","url":"http://random-1.netlify.app","ssl_url":"https://random-1.netlify.app"}`))
	})
	mux.HandleFunc("POST /sites/site-1/deploys", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/zip", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		f.mu.Lock()
		f.upload = data
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"dep-1","site_id":"site-1","state":"uploaded"}`))
	})
	mux.HandleFunc("GET /deploys/dep-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := f.states[0]
		if len(f.states) > 1 {
			f.states = f.states[1:]
		}
		f.mu.Unlock()
		var msg string
		if state == "error" {
			msg = "Build script returned non-zero exit code"
		}
		_ = json.NewEncoder(w).Encode(deploy{
			ID:           "dep-1",
			State:        state,
			SSLURL:       "https://random-1.netlify.app",
			DeploySSLURL: "https://dep-1--random-1.netlify.app",
			ErrorMessage: msg,
		})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeNetlify) *Client {
	t.Helper()
	keyring.MockInit()
	vault := credentials.NewKeyringVault("torpedo-netlify-test")
	require.NoError(t, vault.Put(context.Background(), credentials.TokenRef(ProviderID), credentials.Token{AccessToken: "nfp_1"}))
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(vault, srv.URL, srv.Client())
}

func TestCreateAndPoll(t *testing.T) {
	f := &fakeNetlify{takenName: "portfolio", states: []string{"processing", "ready"}}
	c := newTestClient(t, f)
	ctx := context.Background()

	req := domain.DeploymentRequest{Source: domain.ManifestSource(writeSite(t)...), TargetProvider: ProviderID}
	h, err := c.CreateDeployment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "site-1", h.ServiceID)
	assert.Equal(t, "dep-1", h.DeployID)
	assert.Equal(t, "https://random-1.netlify.app", h.URL)

	f.mu.Lock()
	assert.Equal(t, []string{"portfolio", ""}, f.names, "taken name falls back to a generated one")
	assert.Equal(t, []string{"css/style.css", "index.html"}, zipNames(t, f.upload))
	f.mu.Unlock()

	st, err := c.PollDeploymentStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinalizing, st.Stage)
	assert.False(t, st.Done())

	st, err = c.PollDeploymentStatus(ctx, h)
	require.NoError(t, err)
	assert.True(t, st.Done())
	assert.Equal(t, "https://random-1.netlify.app", st.ResultURLs[domain.ResultURLWeb])
	assert.Equal(t, "https://dep-1--random-1.netlify.app", st.ResultURLs["deploy"])
}

func TestPoll_Error(t *testing.T) {
	f := &fakeNetlify{states: []string{"error"}}
	c := newTestClient(t, f)

	st, err := c.PollDeploymentStatus(context.Background(), hosting.Handle{ProviderID: ProviderID, ServiceID: "site-1", DeployID: "dep-1"})
	require.NoError(t, err)
	assert.ErrorIs(t, st.Err, domain.ErrProvider)
	assert.Contains(t, domain.UserMessage(st.Err), "non-zero exit code")
}

func TestCreateDeployment_RejectsRepository(t *testing.T) {
	c := newTestClient(t, &fakeNetlify{})
	req := domain.DeploymentRequest{Source: domain.RepositorySource("octo/site"), TargetProvider: ProviderID}

	_, err := c.CreateDeployment(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMapState(t *testing.T) {
	tests := map[string]domain.Stage{
		"new":        domain.StageUploading,
		"enqueued":   domain.StageUploading,
		"uploading":  domain.StageUploading,
		"uploaded":   domain.StageConfiguring,
		"prepared":   domain.StageConfiguring,
		"processing": domain.StageFinalizing,
		"ready":      domain.StageComplete,
	}
	for state, want := range tests {
		st := mapState(state, "")
		assert.NoError(t, st.Err, state)
		assert.Equal(t, want, st.Stage, state)
	}
	assert.ErrorIs(t, mapState("rejected", "").Err, domain.ErrProvider)
}
