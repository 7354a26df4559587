// Package pipeline runs deployment attempts from submission to a single
// terminal state, publishing progress snapshots along the way.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repotorpedo/torpedo/credentials"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/repotorpedo/torpedo/hosting"
	"github.com/repotorpedo/torpedo/metrics"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 10 * time.Minute

	subscriberBuffer = 16
	// Progress stays below 100 until the provider reports completion.
	maxActiveProgress = 99
)

// Preparer completes a source before it is handed to the hosting provider.
type Preparer interface {
	Prepare(ctx context.Context, src domain.SourceRef) (domain.SourceRef, error)
}

// Publisher turns a manifest into a repository source for providers that
// only build from repositories.
type Publisher interface {
	Publish(ctx context.Context, req domain.DeploymentRequest) (domain.SourceRef, error)
}

// Recorder keeps the outcome of finished attempts.
type Recorder interface {
	Record(ctx context.Context, rec domain.HistoryRecord) error
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration

	// Publisher, when set, lets manifests reach repository-only providers.
	Publisher Publisher
}

type attempt struct {
	snap   domain.DeploymentAttempt
	handle hosting.Handle
	subs   []chan domain.DeploymentAttempt
	cancel context.CancelFunc
	done   chan struct{}
}

type Pipeline struct {
	conns    credentials.Reader
	hosts    *hosting.Registry
	preparer Preparer
	history  Recorder
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	attempts map[uuid.UUID]*attempt
	order    []uuid.UUID
	wg       sync.WaitGroup
}

// New builds a pipeline. A nil preparer deploys sources as submitted; a nil
// recorder keeps no history.
func New(
	conns credentials.Reader,
	hosts *hosting.Registry,
	preparer Preparer,
	history Recorder,
	m *metrics.Metrics,
	opts Options,
) *Pipeline {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Pipeline{
		conns:    conns,
		hosts:    hosts,
		preparer: preparer,
		history:  history,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
		attempts: make(map[uuid.UUID]*attempt),
	}
}

// Submit validates req, creates a queued attempt and advances it in the
// background. The returned snapshot is the queued attempt.
func (p *Pipeline) Submit(ctx context.Context, req domain.DeploymentRequest) (domain.DeploymentAttempt, error) {
	const op = "submit deployment"

	if req.RequestedAt.IsZero() {
		req.RequestedAt = p.now()
	}
	if err := req.Validate(); err != nil {
		return domain.DeploymentAttempt{}, err
	}
	client, ok := p.hosts.Client(req.TargetProvider)
	if !ok {
		return domain.DeploymentAttempt{}, domain.ValidationError(op, "%s cannot host deployments", req.TargetProvider)
	}
	if !p.accepts(client, req.Source.Kind) {
		return domain.DeploymentAttempt{}, domain.ValidationError(op, "%s cannot deploy from %s", req.TargetProvider, req.Source.Kind)
	}
	if !p.conns.IsConnected(req.TargetProvider) {
		return domain.DeploymentAttempt{}, domain.StateError(op, "connect %s before deploying", req.TargetProvider)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	a := &attempt{
		snap:   domain.NewDeploymentAttempt(req, p.now()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	snap := a.snap.Clone()

	p.mu.Lock()
	p.attempts[a.snap.ID] = a
	p.order = append(p.order, a.snap.ID)
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.DeploymentStarted()
	slog.Info("Deployment submitted",
		"layer", "pipeline",
		"operation", op,
		"attempt_id", snap.ID.String(),
		"provider_id", req.TargetProvider,
		"source", req.Source.String())

	go p.run(runCtx, a, client, snap.Request)
	return snap, nil
}

func (p *Pipeline) accepts(client hosting.Client, kind domain.SourceKind) bool {
	if client.Supports(kind) {
		return true
	}
	return kind == domain.SourceKindManifest && p.opts.Publisher != nil && client.Supports(domain.SourceKindRepository)
}

// run owns req; the attempt snapshot is only touched under p.mu.
func (p *Pipeline) run(ctx context.Context, a *attempt, client hosting.Client, req domain.DeploymentRequest) {
	defer p.wg.Done()
	defer a.cancel()

	providerID := req.TargetProvider

	if !p.advance(a, func(s *domain.DeploymentAttempt) {
		s.State = domain.AttemptStateProvisioning
		s.Stage = domain.StagePreparing
	}) {
		return
	}

	if p.preparer != nil {
		src, err := p.preparer.Prepare(ctx, req.Source)
		if err != nil {
			p.fail(ctx, a, err)
			return
		}
		req.Source = src
	}
	if !p.advance(a, func(s *domain.DeploymentAttempt) {
		s.Progress = max(s.Progress, 10)
	}) {
		return
	}

	if req.Source.Kind == domain.SourceKindManifest && !client.Supports(domain.SourceKindManifest) {
		src, err := p.opts.Publisher.Publish(ctx, req)
		if err != nil {
			p.fail(ctx, a, err)
			return
		}
		slog.Info("Manifest published",
			"layer", "pipeline",
			"operation", "publish manifest",
			"provider_id", providerID,
			"repository", src.Repository)
		req.Source = src
		if !p.advance(a, func(s *domain.DeploymentAttempt) {
			s.Progress = max(s.Progress, 15)
		}) {
			return
		}
	}

	h, err := client.CreateDeployment(ctx, req)
	if err != nil {
		p.fail(ctx, a, err)
		return
	}
	p.mu.Lock()
	a.handle = h
	p.mu.Unlock()

	if !p.advance(a, func(s *domain.DeploymentAttempt) {
		s.State = domain.AttemptStateProgressing
		s.Stage = domain.StageUploading
		s.Progress = max(s.Progress, domain.StageUploading.ProgressFor(hosting.UnknownPercent))
	}) {
		return
	}

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.fail(ctx, a, ctx.Err())
			return
		case <-ticker.C:
		}

		if !p.conns.IsConnected(providerID) {
			p.fail(ctx, a, domain.AuthError("deploy", "%s was disconnected during the deployment", providerID))
			return
		}

		st, err := client.PollDeploymentStatus(ctx, h)
		if err != nil {
			p.fail(ctx, a, err)
			return
		}
		if st.Err != nil {
			p.fail(ctx, a, st.Err)
			return
		}
		if st.Stage == domain.StageComplete {
			p.succeed(ctx, a, st)
			return
		}

		if !p.advance(a, func(s *domain.DeploymentAttempt) {
			s.Stage = max(s.Stage, st.Stage)
			s.Progress = min(max(s.Progress, s.Stage.ProgressFor(st.PercentDone)), maxActiveProgress)
		}) {
			return
		}
	}
}

// advance applies mutate to a non-terminal attempt and publishes the result.
// It reports false once the attempt has ended.
func (p *Pipeline) advance(a *attempt, mutate func(*domain.DeploymentAttempt)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a.snap.State.IsTerminal() {
		return false
	}

	next := a.snap
	mutate(&next)
	if next.State != a.snap.State && !a.snap.State.CanTransitionTo(next.State) {
		slog.Error("Invalid attempt transition",
			"layer", "pipeline",
			"attempt_id", a.snap.ID.String(),
			"from", a.snap.State.String(),
			"to", next.State.String())
		return false
	}
	next.Progress = max(next.Progress, a.snap.Progress)
	a.snap = next

	snap := a.snap.Clone()
	for _, ch := range a.subs {
		notify(ch, snap)
	}
	return true
}

func (p *Pipeline) succeed(ctx context.Context, a *attempt, st hosting.Status) {
	p.mu.Lock()
	handleURL := a.handle.URL
	p.mu.Unlock()

	urls := st.ResultURLs
	if urls[domain.ResultURLWeb] == "" {
		if handleURL == "" {
			p.fail(ctx, a, domain.ProviderError("deploy", "the provider reported success without a site URL"))
			return
		}
		urls = maps.Clone(st.ResultURLs)
		if urls == nil {
			urls = make(map[string]string, 1)
		}
		urls[domain.ResultURLWeb] = handleURL
	}

	p.terminate(a, func(s *domain.DeploymentAttempt) {
		s.State = domain.AttemptStateSuccess
		s.Stage = domain.StageComplete
		s.Progress = 100
		s.ResultURLs = urls
	})
}

func (p *Pipeline) fail(ctx context.Context, a *attempt, err error) {
	var derr *domain.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		derr = domain.NetworkError("deploy", "deployment did not finish within %s", p.opts.Timeout)
		derr.Err = err
	default:
		derr = domain.Wrap(domain.KindProvider, "deploy", err, "deployment failed")
	}

	p.terminate(a, func(s *domain.DeploymentAttempt) {
		s.State = domain.AttemptStateFailed
		s.Error = derr
	})
}

// terminate moves a to its terminal state exactly once, records history for
// success and failure, then closes every subscriber.
func (p *Pipeline) terminate(a *attempt, mutate func(*domain.DeploymentAttempt)) bool {
	p.mu.Lock()
	if a.snap.State.IsTerminal() {
		p.mu.Unlock()
		return false
	}
	next := a.snap
	mutate(&next)
	if !a.snap.State.CanTransitionTo(next.State) {
		p.mu.Unlock()
		return false
	}
	end := p.now()
	next.EndedAt = &end
	a.snap = next
	snap := a.snap.Clone()
	handleURL := a.handle.URL
	p.mu.Unlock()

	p.record(snap, handleURL)
	p.metrics.DeploymentFinished(snap.Request.TargetProvider, snap.State.String(), snap.Duration())

	attrs := []any{
		"layer", "pipeline",
		"attempt_id", snap.ID.String(),
		"provider_id", snap.Request.TargetProvider,
		"state", snap.State.String(),
		"duration", snap.Duration(),
	}
	if snap.Error != nil {
		slog.Error("Deployment failed", append(attrs, "kind", snap.Error.Kind.String(), "error", snap.Error)...)
	} else {
		slog.Info("Deployment finished", append(attrs, "url", snap.WebURL())...)
	}

	p.mu.Lock()
	for _, ch := range a.subs {
		notify(ch, snap)
		close(ch)
	}
	a.subs = nil
	close(a.done)
	p.mu.Unlock()
	return true
}

func (p *Pipeline) record(snap domain.DeploymentAttempt, handleURL string) {
	if p.history == nil {
		return
	}
	status, ok := domain.HistoryStatusFor(snap.State)
	if !ok {
		return
	}

	url := snap.WebURL()
	if status == domain.HistoryStatusFailed {
		url = handleURL
		if url == "" {
			url = snap.Request.Source.WebURL()
		}
		if url == "" {
			url = snap.Request.Source.String()
		}
	}

	// History must survive a timed-out or cancelled run context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.history.Record(ctx, domain.NewHistoryRecord(url, *snap.EndedAt, status)); err != nil {
		slog.Error("Failed to record deployment history",
			"layer", "pipeline",
			"attempt_id", snap.ID.String(),
			"error", err)
	}
}

// Progress returns the latest snapshot of an attempt, including finished ones.
func (p *Pipeline) Progress(id uuid.UUID) (domain.DeploymentAttempt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attempts[id]
	if !ok {
		return domain.DeploymentAttempt{}, unknownAttempt("deployment progress", id)
	}
	return a.snap.Clone(), nil
}

// Cancel stops an active attempt. Anything already created on the provider
// stays there.
func (p *Pipeline) Cancel(id uuid.UUID) error {
	const op = "cancel deployment"
	p.mu.Lock()
	a, ok := p.attempts[id]
	if !ok {
		p.mu.Unlock()
		return unknownAttempt(op, id)
	}
	p.mu.Unlock()

	if !p.terminate(a, func(s *domain.DeploymentAttempt) {
		s.State = domain.AttemptStateCancelled
	}) {
		return domain.StateError(op, "deployment %s has already finished", id)
	}
	a.cancel()
	return nil
}

// Subscribe streams snapshots of an attempt. The current snapshot arrives
// first; the channel closes after the terminal one. Slow readers lose
// intermediate snapshots, never the terminal one.
func (p *Pipeline) Subscribe(id uuid.UUID) (<-chan domain.DeploymentAttempt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attempts[id]
	if !ok {
		return nil, unknownAttempt("subscribe", id)
	}

	ch := make(chan domain.DeploymentAttempt, subscriberBuffer)
	ch <- a.snap.Clone()
	if a.snap.State.IsTerminal() {
		close(ch)
		return ch, nil
	}
	a.subs = append(a.subs, ch)
	return ch, nil
}

// Wait blocks until the attempt ends or ctx is done.
func (p *Pipeline) Wait(ctx context.Context, id uuid.UUID) (domain.DeploymentAttempt, error) {
	p.mu.Lock()
	a, ok := p.attempts[id]
	p.mu.Unlock()
	if !ok {
		return domain.DeploymentAttempt{}, unknownAttempt("wait", id)
	}

	select {
	case <-a.done:
		return p.Progress(id)
	case <-ctx.Done():
		return domain.DeploymentAttempt{}, ctx.Err()
	}
}

// List returns snapshots of every attempt, newest first.
func (p *Pipeline) List() []domain.DeploymentAttempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.DeploymentAttempt, 0, len(p.order))
	for i := len(p.order) - 1; i >= 0; i-- {
		id := p.order[i]
		out = append(out, p.attempts[id].snap.Clone())
	}
	return out
}

// Count is the number of attempts created.
func (p *Pipeline) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts)
}

// Shutdown cancels active attempts and waits for their goroutines.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	var active []uuid.UUID
	for id, a := range p.attempts {
		if !a.snap.State.IsTerminal() {
			active = append(active, id)
		}
	}
	p.mu.Unlock()

	for _, id := range active {
		_ = p.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unknownAttempt(op string, id uuid.UUID) error {
	return domain.ValidationError(op, "no deployment with id %s", id)
}

func notify(ch chan domain.DeploymentAttempt, snap domain.DeploymentAttempt) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
