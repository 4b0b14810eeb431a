// Package health probes the backends ProofStamp depends on (database, ledger
// host, cache) and tracks whether each one is currently reachable.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dependency states.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks a single dependency. Check returns nil when it is reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Checker runs periodic dependency probes. A dependency is reported degraded
// only after FailThreshold consecutive failures.
type Checker struct {
	probes     []Probe
	failCounts map[string]int
	status     map[string]string
	mu         sync.RWMutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker for the given probes.
func New(probes []Probe, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	status := make(map[string]string, len(probes))
	for _, p := range probes {
		status[p.Name] = StatusUnknown
	}
	return &Checker{
		probes:     probes,
		failCounts: make(map[string]int, len(probes)),
		status:     status,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start checks once immediately, then on every interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and updates the dependency states.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Check(pctx)
			cancel()
			h.record(p.Name, err)
		}(p)
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(name, success)
	}

	h.mu.Lock()
	prevCount := h.failCounts[name]
	if success {
		h.failCounts[name] = 0
		h.status[name] = StatusHealthy
	} else {
		h.failCounts[name]++
	}
	count := h.failCounts[name]
	if count >= h.cfg.FailThreshold {
		h.status[name] = StatusDegraded
	}
	h.mu.Unlock()

	switch {
	case success && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case !success && count == h.cfg.FailThreshold:
		// Logged once, at the transition.
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	case !success:
		h.logger.Debug("health: probe failed", zap.String("dependency", name), zap.Error(err))
	}
}

// Status returns a snapshot of every dependency's state.
func (h *Checker) Status() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.status))
	for k, v := range h.status {
		out[k] = v
	}
	return out
}

// Ready reports whether no dependency is degraded. Dependencies that have not
// been probed yet do not block readiness.
func (h *Checker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.status {
		if s == StatusDegraded {
			return false
		}
	}
	return true
}

// Names returns the probed dependency names, sorted.
func (h *Checker) Names() []string {
	names := make([]string, 0, len(h.probes))
	for _, p := range h.probes {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// HTTPProbe checks that endpoint answers with a 2xx, trying HEAD then GET.
func HTTPProbe(name, endpoint string, client *http.Client) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			return probeEndpoint(ctx, client, endpoint)
		},
	}
}

func probeEndpoint(ctx context.Context, client *http.Client, endpoint string) error {
	// Try HEAD first.
	err := probeOnce(ctx, client, http.MethodHead, endpoint)
	if err == nil {
		return nil
	}
	return probeOnce(ctx, client, http.MethodGet, endpoint)
}

func probeOnce(ctx context.Context, client *http.Client, method, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: endpoint, Status: resp.StatusCode}
	}
	return nil
}

// StatusError reports a non-2xx probe response.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return "health: " + e.Endpoint + " returned " + http.StatusText(e.Status)
}
