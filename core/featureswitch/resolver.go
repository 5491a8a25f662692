package featureswitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core"
)

// DefaultTimeout bounds a single feature status fetch.
const DefaultTimeout = 10 * time.Second

// State of a Resolver.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateDegraded // Ready shape, fail-open status, error recorded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent view of a Resolver.
type Snapshot struct {
	State      State          `json:"state"`
	Role       string         `json:"role"`
	Bypassed   bool           `json:"bypassed"`
	Status     DetailedStatus `json:"status"`
	Resolution GateResolution `json:"gate"`
	Err        string         `json:"error,omitempty"`
}

type ResolverOption func(*Resolver)

// WithTimeout sets the fetch timeout. A timeout is handled like any fetch failure.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRootRole overrides the role literal exempt from restrictions.
func WithRootRole(role string) ResolverOption {
	return func(r *Resolver) { r.bypass = RootBypassFor(role) }
}

func WithLogger(logger core.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m Metrics) ResolverOption {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// flight is one fetch in progress. done is closed once its outcome is known.
type flight struct {
	seq  uint64
	done chan struct{}
}

// Resolver turns the feature status of one dashboard session into a GateResolution.
// It owns the current DetailedStatus and replaces it wholesale: readers never observe a
// partially updated status. Every run is numbered; only the newest run may commit, so a
// slow response can never overwrite the result of a more recent one.
type Resolver struct {
	client  Client
	bypass  func(role string) *DetailedStatus
	timeout time.Duration
	logger  core.Logger
	metrics Metrics

	mu       sync.Mutex
	seq      uint64
	inflight *flight
	state    State
	settled  State // state of the last commit
	role     string
	bypassed bool
	status   DetailedStatus
	err      error
}

func NewResolver(client Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:  client,
		bypass:  RootBypass,
		timeout: DefaultTimeout,
		logger:  core.NoopLogger{},
		metrics: NoopMetrics{},
		status:  FailOpenStatus(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves the gate for role. It never fails: when the feature status cannot be
// fetched the gate fails open and the error is kept for diagnostics (see Snapshot).
func (r *Resolver) Resolve(ctx context.Context, role string) GateResolution {
	return r.ResolveSnapshot(ctx, role).Resolution
}

// ResolveSnapshot is Resolve returning the Snapshot taken when the run settled.
func (r *Resolver) ResolveSnapshot(ctx context.Context, role string) Snapshot {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.role = role

	if status := r.bypass(role); status != nil {
		r.inflight = nil
		r.commitLocked(*status, true, nil)
		snap := r.snapshotLocked()
		r.mu.Unlock()
		r.metrics.IncResolutions(OutcomeBypass)
		return snap
	}

	f := &flight{seq: seq, done: make(chan struct{})}
	r.inflight = f
	r.state = StateLoading
	r.mu.Unlock()

	status, err := r.fetch(ctx)

	r.mu.Lock()
	close(f.done)
	if seq != r.seq {
		r.mu.Unlock()
		r.metrics.IncResolutions(OutcomeStale)
		r.logger.Debug(fmt.Sprintf("dropping stale feature status response #%d", seq))
		return r.await(ctx)
	}
	r.inflight = nil

	// the caller went away: only the resolver's own timeout counts as a fetch failure
	if err != nil && ctx.Err() != nil {
		r.state = r.settled
		snap := r.snapshotLocked()
		r.mu.Unlock()
		r.metrics.IncResolutions(OutcomeCanceled)
		r.logger.Debug(fmt.Sprintf("feature status request #%d canceled by caller: %v", seq, ctx.Err()))
		return snap
	}

	outcome := OutcomeReady
	if err != nil {
		outcome = OutcomeDegraded
		r.commitLocked(Normalize(nil, true), false, err)
	} else {
		r.commitLocked(Normalize(&status, false), false, nil)
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn(fmt.Sprintf("feature status unavailable, failing open: %v", err), err)
	}
	r.metrics.IncResolutions(outcome)
	return snap
}

// Refresh re-runs the resolution with the latest known role.
func (r *Resolver) Refresh(ctx context.Context) GateResolution {
	return r.RefreshSnapshot(ctx).Resolution
}

func (r *Resolver) RefreshSnapshot(ctx context.Context) Snapshot {
	r.mu.Lock()
	role := r.role
	r.mu.Unlock()
	return r.ResolveSnapshot(ctx, role)
}

// Resolution returns the current resolution without fetching.
func (r *Resolver) Resolution() GateResolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolutionLocked()
}

func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      r.state,
		Role:       r.role,
		Bypassed:   r.bypassed,
		Status:     r.status,
		Resolution: r.resolutionLocked(),
	}
	if r.err != nil {
		snap.Err = r.err.Error()
	}
	return snap
}

func (r *Resolver) fetch(ctx context.Context) (DetailedStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	status, err := r.client.FetchDetailedStatus(ctx)
	r.metrics.ObserveFetch(time.Since(start).Seconds(), err != nil)
	if err != nil {
		return DetailedStatus{}, errors.Wrap(err, "fetching detailed status")
	}
	if !status.CombinedStatus.Valid() {
		return DetailedStatus{}, errors.Wrap(ErrUnexpectedResponseShape, "combined_status is inconsistent")
	}
	return status, nil
}

// await waits for the newest run to commit, then returns the committed state.
func (r *Resolver) await(ctx context.Context) Snapshot {
	for {
		r.mu.Lock()
		f := r.inflight
		if f == nil {
			snap := r.snapshotLocked()
			r.mu.Unlock()
			return snap
		}
		r.mu.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return r.Snapshot()
		}
	}
}

func (r *Resolver) commitLocked(status DetailedStatus, bypassed bool, err error) {
	r.status = status
	r.bypassed = bypassed
	r.err = err
	if err != nil {
		r.state = StateDegraded
	} else {
		r.state = StateReady
	}
	r.settled = r.state
}

func (r *Resolver) resolutionLocked() GateResolution {
	return resolutionOf(r.status, r.bypassed)
}
