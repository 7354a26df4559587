// Package surface opens the page where a user grants access and reports
// when that page is done.
package surface

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/pkg/browser"
	"github.com/repotorpedo/torpedo/domain"
)

// Handle tracks one opened surface.
type Handle interface {
	// Closed reports whether the user has finished with the surface.
	Closed() bool
	// Close abandons the surface.
	Close() error
}

// Surface opens an authorization page.
type Surface interface {
	Open(ctx context.Context, url string) (Handle, error)
}

// Callbacks is the part of the OAuth callback server a browser surface needs.
type Callbacks interface {
	Start() error
	Wait(state string) <-chan struct{}
	Forget(state string)
}

// Browser opens the system browser. Its handle counts as closed once the
// OAuth redirect carrying the page's state reaches the callback server.
type Browser struct {
	callbacks Callbacks
	open      func(string) error
	notice    io.Writer
}

func NewBrowser(callbacks Callbacks, notice io.Writer) *Browser {
	if notice == nil {
		notice = os.Stderr
	}
	return &Browser{callbacks: callbacks, open: browser.OpenURL, notice: notice}
}

func (b *Browser) Open(_ context.Context, rawURL string) (Handle, error) {
	const op = "open browser"
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.ValidationError(op, "invalid authorization URL")
	}
	state := u.Query().Get("state")
	if state == "" {
		return nil, domain.ValidationError(op, "authorization URL has no state")
	}

	if err := b.callbacks.Start(); err != nil {
		return nil, domain.Wrap(domain.KindNetwork, op, err, "cannot receive the sign-in redirect")
	}
	done := b.callbacks.Wait(state)

	if err := b.open(rawURL); err != nil {
		slog.Warn("Could not launch a browser",
			"layer", "surface",
			"error", err)
		_, _ = fmt.Fprintf(b.notice, "Open this URL in your browser to continue:\n  %s\n", rawURL)
	}

	return &callbackHandle{
		done:    done,
		release: func() { b.callbacks.Forget(state) },
	}, nil
}

type callbackHandle struct {
	done      <-chan struct{}
	abandoned atomic.Bool
	release   func()
}

func (h *callbackHandle) Closed() bool {
	if h.abandoned.Load() {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *callbackHandle) Close() error {
	if h.abandoned.CompareAndSwap(false, true) {
		h.release()
	}
	return nil
}
