// Package credentials owns per-provider connection state and the vaults
// that hold provider tokens.
package credentials

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/repository"
)

// Reader is the read-only view of connection state handed to every
// component other than the connection orchestrator.
type Reader interface {
	Connection(providerID string) domain.Connection
	Connections() []domain.Connection
	IsConnected(providerID string) bool
	Subscribe(buffer int) (<-chan domain.Connection, func())
}

// Store is the single owner of connection state. Only the orchestrator
// writes to it.
type Store struct {
	repo repository.ConnectionRepository
	now  func() time.Time

	mu      sync.RWMutex
	conns   map[string]domain.Connection
	subs    map[int]chan domain.Connection
	nextSub int
}

// NewStore builds a store. A nil repo keeps state in memory only.
func NewStore(repo repository.ConnectionRepository) *Store {
	return &Store{
		repo:  repo,
		now:   time.Now,
		conns: make(map[string]domain.Connection),
		subs:  make(map[int]chan domain.Connection),
	}
}

// Load restores persisted connections. A connection persisted mid-flow
// cannot be resumed and is moved to the error state.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	conns, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	var interrupted []domain.Connection
	s.mu.Lock()
	for _, c := range conns {
		if c.Status == domain.ConnectionStatusConnecting {
			c = c.Failed(domain.AuthError("connect", "connection to %s was interrupted", c.ProviderID), s.now())
			interrupted = append(interrupted, c)
		}
		s.conns[c.ProviderID] = c
	}
	s.mu.Unlock()

	for _, c := range interrupted {
		slog.Warn("Interrupted connection reset",
			"layer", "credentials",
			"provider_id", c.ProviderID)
		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Connection returns the current state for providerID; unknown providers
// are disconnected.
func (s *Store) Connection(providerID string) domain.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conns[providerID]; ok {
		return c
	}
	return domain.NewConnection(providerID)
}

func (s *Store) Connections() []domain.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Connection) int {
		return cmp.Compare(a.ProviderID, b.ProviderID)
	})
	return out
}

func (s *Store) IsConnected(providerID string) bool {
	return s.Connection(providerID).IsConnected()
}

// Put replaces the state for conn.ProviderID and notifies subscribers.
// The in-memory state changes even when persisting fails; the persist
// error is returned for the caller to log.
func (s *Store) Put(ctx context.Context, conn domain.Connection) error {
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = s.now()
	}

	s.mu.Lock()
	s.conns[conn.ProviderID] = conn
	for _, ch := range s.subs {
		notify(ch, conn)
	}
	s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	return s.repo.Save(ctx, conn)
}

// Subscribe returns a channel of connection changes. Slow readers lose the
// oldest pending change. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan domain.Connection, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Connection, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func notify(ch chan domain.Connection, conn domain.Connection) {
	for {
		select {
		case ch <- conn:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
