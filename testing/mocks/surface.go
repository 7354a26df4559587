package mocks

import (
	"context"
	"sync/atomic"

	"github.com/repotorpedo/torpedo/surface"
	"github.com/stretchr/testify/mock"
)

// MockSurface implements surface.Surface for testing
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) Open(ctx context.Context, url string) (surface.Handle, error) {
	args := m.Called(ctx, url)
	h, _ := args.Get(0).(surface.Handle)
	return h, args.Error(1)
}

// FakeHandle is a surface.Handle that reports closed after CloseAfter polls.
// A negative CloseAfter never closes on its own.
type FakeHandle struct {
	CloseAfter int64

	polls  atomic.Int64
	closed atomic.Bool
}

func (h *FakeHandle) Closed() bool {
	if h.closed.Load() {
		return true
	}
	n := h.polls.Add(1)
	return h.CloseAfter >= 0 && n > h.CloseAfter
}

func (h *FakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// Polls returns how many times Closed was called.
func (h *FakeHandle) Polls() int64 {
	return h.polls.Load()
}

// WasClosed reports whether Close was called.
func (h *FakeHandle) WasClosed() bool {
	return h.closed.Load()
}
