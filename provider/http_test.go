package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelAt(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`[{"owner":{"email":"jane@example.com","id":42}}]`), &doc))

	label, err := LabelAt(doc, "0.owner.email")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", label)

	label, err = LabelAt(doc, "0.owner.id")
	require.NoError(t, err)
	assert.Equal(t, "42", label)

	for _, path := range []string{"1.owner.email", "0.team", "0.owner", "0.owner.email.x"} {
		_, err := LabelAt(doc, path)
		assert.Error(t, err, path)
	}
}

func TestFetchAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Circle-Token") {
		case "good":
			_, _ = w.Write([]byte(`{"login":"octo","name":"Octo"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid token provided."}`))
		}
	}))
	defer srv.Close()

	ar := AccountRequest{URL: srv.URL, Header: "Circle-Token", Token: "good", LabelField: "login"}
	acct, err := FetchAccount(context.Background(), srv.Client(), "verify", ar)
	require.NoError(t, err)
	assert.Equal(t, "octo", acct.Label)

	ar.Token = "bad"
	_, err = FetchAccount(context.Background(), srv.Client(), "verify", ar)
	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Contains(t, err.Error(), "Invalid token provided.")
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   *domain.Error
		detail string
	}{
		{http.StatusForbidden, `{"error":"forbidden"}`, domain.ErrAuth, "forbidden"},
		{http.StatusTooManyRequests, ``, domain.ErrProvider, "Too Many Requests"},
		{http.StatusBadGateway, `upstream down`, domain.ErrProvider, "upstream down"},
		{http.StatusUnprocessableEntity, `{"error_description":"name taken"}`, domain.ErrProvider, "name taken"},
		{http.StatusNotFound, `{"error":{"message":"no such site"}}`, domain.ErrProvider, "no such site"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(tt.status)
			_, _ = rec.WriteString(tt.body)

			err := CheckResponse("op", rec.Result())
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.detail)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}

	ok := httptest.NewRecorder()
	assert.NoError(t, CheckResponse("op", ok.Result()))
	assert.Zero(t, StatusCode(domain.NetworkError("op", "timeout")))
}

func TestFetchAccount_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := FetchAccount(context.Background(), http.DefaultClient, "verify", AccountRequest{URL: url, Token: "x"})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Client("render")
	assert.False(t, ok)

	var c Client
	r.Register("render", c)
	_, ok = r.Client("render")
	assert.True(t, ok)
}
