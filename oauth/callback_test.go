package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exchangerFunc func(ctx context.Context, state, code string) (string, error)

func (f exchangerFunc) Exchange(ctx context.Context, state, code string) (string, error) {
	return f(ctx, state, code)
}

func startCallbackServer(t *testing.T, ex Exchanger) *CallbackServer {
	t.Helper()
	s := NewCallbackServer(ex, "127.0.0.1:0")
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func get(t *testing.T, s *CallbackServer, query url.Values) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr() + CallbackPath + "?" + query.Encode())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func closedWithin(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestCallbackServer_SuccessSignalsWaiter(t *testing.T) {
	codes := make(chan string, 1)
	s := startCallbackServer(t, exchangerFunc(func(_ context.Context, state, code string) (string, error) {
		codes <- code
		return "github", nil
	}))

	done := s.Wait("state-1")
	other := s.Wait("state-2")

	status, body := get(t, s, url.Values{"state": {"state-1"}, "code": {"abc"}})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Connected")
	assert.Equal(t, "abc", <-codes)

	assert.True(t, closedWithin(done, time.Second))
	assert.False(t, closedWithin(other, 20*time.Millisecond))
}

func TestCallbackServer_FailuresStillSignal(t *testing.T) {
	s := startCallbackServer(t, exchangerFunc(func(context.Context, string, string) (string, error) {
		return "github", domain.AuthError("complete sign-in", "code expired")
	}))

	t.Run("denied by user", func(t *testing.T) {
		done := s.Wait("denied")
		status, body := get(t, s, url.Values{"state": {"denied"}, "error": {"access_denied"}, "error_description": {"The user has denied your application access."}})
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "denied your application access")
		assert.True(t, closedWithin(done, time.Second))
	})

	t.Run("exchange error", func(t *testing.T) {
		done := s.Wait("bad-code")
		_, body := get(t, s, url.Values{"state": {"bad-code"}, "code": {"x"}})
		assert.Contains(t, body, "code expired")
		assert.True(t, closedWithin(done, time.Second))
	})

	t.Run("missing code", func(t *testing.T) {
		done := s.Wait("no-code")
		status, _ := get(t, s, url.Values{"state": {"no-code"}})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.True(t, closedWithin(done, time.Second))
	})
}

func TestCallbackServer_ForgetAndEscape(t *testing.T) {
	s := startCallbackServer(t, exchangerFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("<script>alert(1)</script>")
	}))

	done := s.Wait("forgotten")
	s.Forget("forgotten")

	_, body := get(t, s, url.Values{"state": {"forgotten"}, "code": {"x"}})
	assert.NotContains(t, body, "<script>")
	assert.False(t, closedWithin(done, 20*time.Millisecond))
}
