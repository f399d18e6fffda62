// Package health serves the liveness and readiness probes of the storefront
// API and tells interested components when a dependency comes or goes.
//
// Every probe runs on its own ticker. A probe turns unhealthy only after
// failureThreshold consecutive failures and healthy again after
// successThreshold consecutive successes, so a single blip does not flap the
// service. Watchers registered with Watch hear about every flip.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// ChangeFunc receives the first settled state of a watched probe and every
// flip after that.
type ChangeFunc func(ctx context.Context, healthy bool)

// CheckOption customizes a registered probe.
type CheckOption func(*probe)

// WithThresholds overrides the default of 3 failures and 1 success.
func WithThresholds(failure, success int) CheckOption {
	return func(p *probe) {
		if failure > 0 {
			p.failAfter = failure
		}
		if success > 0 {
			p.recoverAfter = success
		}
	}
}

// Critical marks whether a failing readiness probe takes the service out of
// rotation. Non-critical probes are reported as degraded and still notify
// watchers.
func Critical(critical bool) CheckOption {
	return func(p *probe) { p.critical = critical }
}

// probe is one registered check. tick runs on a single goroutine and owns the
// streak counters; healthy and lastErr are read concurrently by the
// endpoints.
type probe struct {
	name         string
	timeout      time.Duration
	check        CheckFunc
	failAfter    int
	recoverAfter int
	critical     bool

	watchers []ChangeFunc
	settled  bool

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newProbe(name string, timeout time.Duration, check CheckFunc, opts []CheckOption) *probe {
	p := &probe{
		name:         name,
		timeout:      timeout,
		check:        check,
		failAfter:    3,
		recoverAfter: 1,
		critical:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.healthy.Store(true)
	return p
}

// status reports the current state and the error of the latest run.
func (p *probe) status() (bool, error) {
	var err error
	if e := p.lastErr.Load(); e != nil {
		err = *e
	}
	return p.healthy.Load(), err
}

// tick runs the check once and applies the thresholds.
func (p *probe) tick(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails < p.failAfter {
			return
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks < p.recoverAfter {
			return
		}
	}

	healthy := err == nil
	if was := p.healthy.Swap(healthy); p.settled && was == healthy {
		return
	}
	p.settled = true
	for _, fn := range p.watchers {
		fn(ctx, healthy)
	}
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Health owns the liveness and readiness probes of a service.
type Health struct {
	ready atomic.Bool

	// mu guards registration and Start/Stop. Endpoints copy the slices under
	// RLock and read probe state without it.
	mu     sync.RWMutex
	live   []*probe
	readyz []*probe
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez, such as goroutine count or
// GC pause.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, check, opts))
}

// AddReadinessCheck registers a probe for /readyz, such as the database or
// the voucher API.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyz = append(h.readyz, newProbe(name, timeout, check, opts))
}

// Watch subscribes fn to the named probe. It must be called before Start
// and reports false when no probe has that name.
func (h *Health) Watch(name string, fn ChangeFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.all() {
		if p.name == name {
			p.watchers = append(p.watchers, fn)
			return true
		}
	}
	return false
}

func (h *Health) all() []*probe {
	out := make([]*probe, 0, len(h.live)+len(h.readyz))
	out = append(out, h.live...)
	return append(out, h.readyz...)
}

// Start runs every registered probe on its own goroutine until Stop or ctx
// cancellation. Call it once, after registration.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := h.all()
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the probe goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch: true once wiring completes,
// false when draining for shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every critical
// readiness probe passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(false) {
		if ok, _ := p.status(); p.critical && !ok {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(live bool) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if live {
		return append([]*probe(nil), h.live...)
	}
	return append([]*probe(nil), h.readyz...)
}

// report is the JSON body of both endpoints.
type report struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Degraded map[string]string `json:"degraded,omitempty"`
}

func (r *report) add(p *probe) {
	ok, err := p.status()
	if ok {
		return
	}
	msg := "check is unhealthy"
	if err != nil {
		msg = err.Error()
	}
	if p.critical {
		if r.Checks == nil {
			r.Checks = make(map[string]string)
		}
		r.Checks[p.name] = msg
		return
	}
	if r.Degraded == nil {
		r.Degraded = make(map[string]string)
	}
	r.Degraded[p.name] = msg
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness
// probe passes, otherwise 503 listing the failures.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	var r report
	for _, p := range h.snapshot(true) {
		r.add(p)
	}
	r.write(w)
}

// ReadyEndpoint serves /readyz. Failing non-critical probes are listed under
// "degraded" and keep the status at 200.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	var r report
	for _, p := range h.snapshot(false) {
		r.add(p)
	}
	if !h.ready.Load() {
		if r.Checks == nil {
			r.Checks = make(map[string]string)
		}
		r.Checks["_readiness"] = "service is not ready"
	}
	r.write(w)
}

func (r *report) write(w http.ResponseWriter) {
	code := http.StatusOK
	r.Status = "ok"
	if len(r.Checks) > 0 {
		r.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// The status line is already out; an encode error means the client left.
	_ = json.NewEncoder(w).Encode(r)
}
