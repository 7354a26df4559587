package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ValidationError("op", "bad"), http.StatusBadRequest},
		{"state", domain.StateError("op", "busy"), http.StatusConflict},
		{"auth", domain.AuthError("op", "denied"), http.StatusUnauthorized},
		{"provider", domain.ProviderError("op", "boom"), http.StatusBadGateway},
		{"network", domain.NetworkError("op", "down"), http.StatusBadGateway},
		{"cancelled", connection.ErrCancelled, http.StatusConflict},
		{"unclassified", errors.New("oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, domain.Wrap(domain.KindNetwork, "poll", errors.New("dial tcp: refused"), "could not reach Render"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"could not reach Render","kind":"network"}`, w.Body.String())
}

func TestParseAttemptID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"3f2504e0-4f89-11d3-9a0c-0305e82c3301", false},
		{"", true},
		{"not-a-uuid", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			id, err := ParseAttemptID(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id.String())
		})
	}
}

func TestDeployRequest_ToDomain(t *testing.T) {
	t.Run("repository with branch", func(t *testing.T) {
		req, err := DeployRequest{
			Provider:   " render ",
			Repository: "octo/site",
			Branch:     "gh-pages",
			Name:       " My Site ",
			Env:        []EnvVarRequest{{Key: " MODE ", Value: "prod"}},
		}.ToDomain()
		require.NoError(t, err)
		assert.Equal(t, "render", req.TargetProvider)
		assert.Equal(t, domain.SourceKindRepository, req.Source.Kind)
		assert.Equal(t, "https://github.com/octo/site", req.Source.Repository)
		assert.Equal(t, "gh-pages", req.Source.Branch)
		assert.Equal(t, "My Site", req.ProjectName)
		assert.Equal(t, []domain.EnvVar{{Key: "MODE", Value: "prod"}}, req.EnvVars)
	})

	t.Run("assets", func(t *testing.T) {
		req, err := DeployRequest{Provider: "netlify", Assets: []string{"site/index.html", "site/app.js"}}.ToDomain()
		require.NoError(t, err)
		assert.Equal(t, domain.SourceKindManifest, req.Source.Kind)
		assert.Len(t, req.Source.Assets, 2)
	})

	t.Run("both sources", func(t *testing.T) {
		_, err := DeployRequest{Provider: "render", Repository: "octo/site", Assets: []string{"index.html"}}.ToDomain()
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("no source", func(t *testing.T) {
		_, err := DeployRequest{Provider: "render", Repository: "  "}.ToDomain()
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestDecodeJSON(t *testing.T) {
	var req ConnectRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, DecodeJSON(r, &req))
	assert.Empty(t, req.APIKey)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"api_key":"k","extra":1}`))
	assert.ErrorIs(t, DecodeJSON(r, &req), domain.ErrValidation)
}

func TestStreamConnections_WithoutFeed(t *testing.T) {
	api := NewAPI(context.Background(), Services{})

	w := httptest.NewRecorder()
	api.StreamConnections()(w, httptest.NewRequest(http.MethodGet, "/api/connections/stream", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}
