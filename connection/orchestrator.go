// Package connection drives provider connection flows to a terminal outcome.
// The Orchestrator is the only writer of the credential store.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/metrics"
	"github.com/repotorpedo/torpedo/provider"
	"github.com/repotorpedo/torpedo/surface"
)

const (
	DefaultPollInterval  = time.Second
	DefaultMaxPollCycles = 300
)

// ErrCancelled is returned by BeginConnection when CancelConnection stopped the flow.
var ErrCancelled = errors.New("connection cancelled")

type Options struct {
	// PollInterval is the delay between checks of an open authorization surface.
	PollInterval time.Duration
	// MaxPollCycles bounds how long a surface is watched before the
	// provider is asked for the outcome anyway.
	MaxPollCycles int
}

type ConnectOption func(*connectOptions)

type connectOptions struct {
	apiKey string
}

// WithAPIKey supplies the key for providers that authenticate with API keys.
func WithAPIKey(key string) ConnectOption {
	return func(o *connectOptions) {
		o.apiKey = key
	}
}

type flow struct {
	prior     domain.Connection
	cancel    context.CancelFunc
	cancelled bool
}

type Orchestrator struct {
	catalog provider.Catalog
	clients *provider.Registry
	surface surface.Surface
	store   *credentials.Store
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time

	mu    sync.Mutex
	flows map[string]*flow
}

func New(
	catalog provider.Catalog,
	clients *provider.Registry,
	surf surface.Surface,
	store *credentials.Store,
	m *metrics.Metrics,
	opts Options,
) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPollCycles <= 0 {
		opts.MaxPollCycles = DefaultMaxPollCycles
	}
	return &Orchestrator{
		catalog: catalog,
		clients: clients,
		surface: surf,
		store:   store,
		metrics: m,
		opts:    opts,
		now:     time.Now,
		flows:   make(map[string]*flow),
	}
}

// Connection returns the current state of providerID.
func (o *Orchestrator) Connection(providerID string) domain.Connection {
	return o.store.Connection(providerID)
}

// Connections returns every connection the store knows about.
func (o *Orchestrator) Connections() []domain.Connection {
	return o.store.Connections()
}

// Result is the outcome of a connection flow started with StartConnection.
type Result struct {
	Connection domain.Connection
	Err        error
}

// BeginConnection runs one connection flow and blocks until it settles.
// Precondition failures return synchronously without touching state.
// The returned Connection is the state the flow left behind.
func (o *Orchestrator) BeginConnection(ctx context.Context, providerID string, options ...ConnectOption) (domain.Connection, error) {
	conn, done, err := o.StartConnection(ctx, providerID, options...)
	if err != nil {
		return conn, err
	}
	res := <-done
	return res.Connection, res.Err
}

// StartConnection checks preconditions, moves the provider to connecting and
// runs the flow in the background. The channel yields exactly one Result.
func (o *Orchestrator) StartConnection(ctx context.Context, providerID string, options ...ConnectOption) (domain.Connection, <-chan Result, error) {
	const op = "connect"

	var co connectOptions
	for _, opt := range options {
		opt(&co)
	}

	p, ok := o.catalog.Get(providerID)
	if !ok {
		return domain.Connection{}, nil, domain.ValidationError(op, "unknown provider %q", providerID)
	}
	client, ok := o.clients.Client(providerID)
	if !ok {
		return domain.Connection{}, nil, domain.ValidationError(op, "%s is not supported", p.Name)
	}
	key := strings.TrimSpace(co.apiKey)
	if p.AuthMethod == domain.AuthMethodAPIKey && key == "" {
		return domain.Connection{}, nil, domain.ValidationError(op, "%s requires an API key", p.Name)
	}

	o.mu.Lock()
	if _, busy := o.flows[providerID]; busy {
		o.mu.Unlock()
		return o.store.Connection(providerID), nil, domain.StateError(op, "%s is already connecting", p.Name)
	}
	current := o.store.Connection(providerID)
	if !current.Status.CanBegin() {
		o.mu.Unlock()
		return current, nil, domain.StateError(op, "%s is already %s", p.Name, current.Status)
	}
	flowCtx, cancel := context.WithCancel(ctx)
	f := &flow{prior: current, cancel: cancel}
	o.flows[providerID] = f
	connecting := current.Connecting(o.now())
	o.put(connecting)
	o.mu.Unlock()

	slog.Info("Connection started",
		"layer", "connection",
		"operation", op,
		"provider_id", providerID,
		"auth_method", p.AuthMethod.String())

	done := make(chan Result, 1)
	go func() {
		defer cancel()
		var label string
		var err error
		if p.AuthMethod == domain.AuthMethodAPIKey {
			label, err = o.runAPIKey(flowCtx, client, providerID, key)
		} else {
			label, err = o.runOAuth(flowCtx, client, providerID)
		}
		conn, err := o.finish(ctx, f, providerID, label, err)
		done <- Result{Connection: conn, Err: err}
		close(done)
	}()
	return connecting, done, nil
}

func (o *Orchestrator) runAPIKey(ctx context.Context, client provider.Client, providerID, key string) (string, error) {
	account, err := client.VerifyAPIKey(ctx, providerID, key)
	if err != nil {
		return "", err
	}
	return account.Label, nil
}

func (o *Orchestrator) runOAuth(ctx context.Context, client provider.Client, providerID string) (string, error) {
	authURL, err := client.AuthorizationURL(ctx, providerID)
	if err != nil {
		return "", err
	}

	h, err := o.surface.Open(ctx, authURL)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := h.Close(); err != nil {
			slog.Debug("Closing authorization surface failed",
				"layer", "connection",
				"provider_id", providerID,
				"error", err)
		}
	}()

	if err := o.awaitSurface(ctx, h, providerID); err != nil {
		return "", err
	}

	// The surface closing says nothing about the outcome; ask the provider.
	status, err := client.ConnectionStatus(ctx, providerID)
	if err != nil {
		return "", err
	}
	if !status.Connected {
		return "", domain.AuthError("connect", "authorization was not completed")
	}
	return status.AccountLabel, nil
}

// awaitSurface polls h until it closes or MaxPollCycles elapse. It only
// fails when ctx ends.
func (o *Orchestrator) awaitSurface(ctx context.Context, h surface.Handle, providerID string) error {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for i := 0; i < o.opts.MaxPollCycles; i++ {
		if h.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	slog.Warn("Authorization surface still open, checking provider",
		"layer", "connection",
		"provider_id", providerID,
		"poll_cycles", o.opts.MaxPollCycles)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, f *flow, providerID, label string, err error) (domain.Connection, error) {
	const op = "connect"

	o.mu.Lock()
	defer o.mu.Unlock()

	if f.cancelled {
		o.metrics.ConnectionFinished(providerID, "cancelled")
		return o.store.Connection(providerID), ErrCancelled
	}
	delete(o.flows, providerID)

	if ctx.Err() != nil {
		restored := f.prior
		restored.UpdatedAt = o.now()
		o.put(restored)
		o.metrics.ConnectionFinished(providerID, "cancelled")
		return restored, ctx.Err()
	}

	current := o.store.Connection(providerID)
	if err != nil {
		derr := domain.Wrap(domain.KindProvider, op, err, "connection failed")
		failed := current.Failed(derr, o.now())
		o.put(failed)
		o.metrics.ConnectionFinished(providerID, "error")
		slog.Error("Connection failed",
			"layer", "connection",
			"operation", op,
			"provider_id", providerID,
			"kind", derr.Kind.String(),
			"error", derr)
		return failed, derr
	}

	connected := current.Connected(label, credentials.TokenRef(providerID), o.now())
	o.put(connected)
	o.metrics.ConnectionFinished(providerID, "connected")
	slog.Info("Connection established",
		"layer", "connection",
		"operation", op,
		"provider_id", providerID,
		"account", label)
	return connected, nil
}

// CancelConnection stops an in-flight flow and restores the state it began from.
func (o *Orchestrator) CancelConnection(providerID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.flows[providerID]
	if !ok {
		return domain.StateError("cancel connection", "%s has no connection in progress", providerID)
	}
	f.cancelled = true
	f.cancel()
	delete(o.flows, providerID)

	restored := f.prior
	restored.UpdatedAt = o.now()
	o.put(restored)

	slog.Info("Connection cancelled",
		"layer", "connection",
		"operation", "cancel connection",
		"provider_id", providerID,
		"restored_status", restored.Status.String())
	return nil
}

// Disconnect drops a connected provider. Revocation is best effort; the
// local state always ends disconnected.
func (o *Orchestrator) Disconnect(ctx context.Context, providerID string) error {
	const op = "disconnect"

	o.mu.Lock()
	current := o.store.Connection(providerID)
	if !current.IsConnected() {
		o.mu.Unlock()
		return domain.StateError(op, "%s is not connected", providerID)
	}
	o.mu.Unlock()

	if client, ok := o.clients.Client(providerID); ok {
		if err := client.Revoke(ctx, providerID); err != nil {
			slog.Warn("Revoking provider access failed",
				"layer", "connection",
				"operation", op,
				"provider_id", providerID,
				"error", err)
		}
	}

	o.mu.Lock()
	o.put(current.Disconnected(o.now()))
	o.mu.Unlock()

	slog.Info("Provider disconnected",
		"layer", "connection",
		"operation", op,
		"provider_id", providerID)
	return nil
}

// DisconnectAll ends the session: in-flight flows are cancelled and every
// connected provider is disconnected.
func (o *Orchestrator) DisconnectAll(ctx context.Context) error {
	o.mu.Lock()
	var pending []string
	for id := range o.flows {
		pending = append(pending, id)
	}
	o.mu.Unlock()

	var errs []error
	for _, id := range pending {
		if err := o.CancelConnection(id); err != nil && !errors.Is(err, domain.ErrState) {
			errs = append(errs, err)
		}
	}
	for _, c := range o.store.Connections() {
		if !c.IsConnected() {
			continue
		}
		if err := o.Disconnect(ctx, c.ProviderID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// put must be called with o.mu held.
func (o *Orchestrator) put(conn domain.Connection) {
	if err := o.store.Put(context.Background(), conn); err != nil {
		slog.Error("Failed to persist connection",
			"layer", "connection",
			"provider_id", conn.ProviderID,
			"status", conn.Status.String(),
			"error", err)
	}
}
