// Package telemetry provides counters, gauges, and histograms for the
// booking backend, plus a Prometheus text exposition endpoint. It follows
// OTel naming conventions using only standard library constructs -- the
// collector-side SDK stays out of the binary.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) add(key string, delta int64) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, delta)
		return
	}
	s.mu.Lock()
	p, ok = s.items[key]
	if !ok {
		v := delta
		s.items[key] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, delta)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]int64, len(s.items))
	for k, p := range s.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}

type gaugeStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newGaugeStore() *gaugeStore {
	return &gaugeStore{items: make(map[string]*int64)}
}

func (s *gaugeStore) set(name string, val int64) {
	s.mu.Lock()
	p, ok := s.items[name]
	if !ok {
		v := val
		s.items[name] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.StoreInt64(p, val)
}

func (s *gaugeStore) add(name string, delta int64) {
	s.mu.Lock()
	p, ok := s.items[name]
	if !ok {
		v := delta
		s.items[name] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, delta)
}

func (s *gaugeStore) get(name string) int64 {
	s.mu.RLock()
	p, ok := s.items[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// durationBuckets are histogram boundaries in seconds for sync cycle and
// HTTP request durations.
var durationBuckets = []float64{
	0.010, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0, 30.0,
}

type histogram struct {
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          float64
}

func newHistogram() *histogram {
	return &histogram{bucketCounts: make([]int64, len(durationBuckets))}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range durationBuckets {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) export() (cum []int64, count int64, sum float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum = make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider manages all observability state for the booking backend. A nil
// Provider is valid and drops every recording, so optional wiring stays
// branch-free at call sites.
type Provider struct {
	serviceName string

	counters   *counterStore
	gauges     *gaugeStore
	histograms map[string]*histogram
	histMu     sync.RWMutex
}

// NewProvider creates and initialises the telemetry provider.
func NewProvider(serviceName string) *Provider {
	if serviceName == "" {
		serviceName = "booking-server"
	}
	return &Provider{
		serviceName: serviceName,
		counters:    newCounterStore(),
		gauges:      newGaugeStore(),
		histograms:  make(map[string]*histogram),
	}
}

func (p *Provider) getOrCreateHistogram(name string) *histogram {
	p.histMu.RLock()
	h, ok := p.histograms[name]
	p.histMu.RUnlock()
	if ok {
		return h
	}
	p.histMu.Lock()
	h, ok = p.histograms[name]
	if !ok {
		h = newHistogram()
		p.histograms[name] = h
	}
	p.histMu.Unlock()
	return h
}

// ---------------------------------------------------------------------------
// Sync engine metrics
// ---------------------------------------------------------------------------

// SyncRunCompleted counts one reconciliation cycle by outcome
// ("ok", "failed", "skipped").
func (p *Provider) SyncRunCompleted(outcome string, dur time.Duration) {
	if p == nil {
		return
	}
	p.counters.add("sync.runs.count|"+outcome, 1)
	p.getOrCreateHistogram("sync.run.duration").Observe(dur.Seconds())
}

// EventsSeen counts external calendar events processed in a cycle.
func (p *Provider) EventsSeen(n int) {
	if p == nil || n == 0 {
		return
	}
	p.counters.add("sync.events.seen.count", int64(n))
}

// SlotsRetracted counts bookable slots removed due to external conflicts.
func (p *Provider) SlotsRetracted(n int) {
	if p == nil || n == 0 {
		return
	}
	p.counters.add("sync.slots.retracted.count", int64(n))
}

// CursorReset counts cursor-expiry recoveries (full re-fetches).
func (p *Provider) CursorReset() {
	if p == nil {
		return
	}
	p.counters.add("sync.cursor.resets.count", 1)
}

// UnparsableSlots counts stored slot strings the resolver could not parse.
// These are kept, not retracted; the counter exists for operator review.
func (p *Provider) UnparsableSlots(n int) {
	if p == nil || n == 0 {
		return
	}
	p.counters.add("sync.slots.unparsable.count", int64(n))
}

// SetClinicianBacklog records how many clinicians the last scheduler pass
// selected for syncing.
func (p *Provider) SetClinicianBacklog(n int64) {
	if p == nil {
		return
	}
	p.gauges.set("sync.pass.selected", n)
}

// GetCounter returns a counter value; key format matches the internal
// store ("sync.runs.count|ok"). Exported for tests.
func (p *Provider) GetCounter(key string) int64 {
	if p == nil {
		return 0
	}
	return p.counters.get(key)
}

// GetGauge returns the current value of the named gauge.
func (p *Provider) GetGauge(name string) int64 {
	if p == nil {
		return 0
	}
	return p.gauges.get(name)
}

// ---------------------------------------------------------------------------
// HTTP middleware
// ---------------------------------------------------------------------------

// Middleware records request durations and in-flight request count.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p == nil {
				return next(c)
			}
			p.gauges.add("http.server.active_requests", 1)
			start := time.Now()

			err := next(c)

			p.gauges.add("http.server.active_requests", -1)
			p.getOrCreateHistogram("http.server.request.duration").Observe(time.Since(start).Seconds())
			p.counters.add(fmt.Sprintf("http.server.requests.count|%d", c.Response().Status), 1)
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Prometheus exposition
// ---------------------------------------------------------------------------

// PrometheusHandler serves all metrics in Prometheus text format. A nil
// Provider serves an empty body.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		if p == nil {
			return c.String(http.StatusOK, "")
		}
		var b strings.Builder

		counters := p.counters.snapshot()

		writeLabeledCounter(&b, counters, "sync_runs_total",
			"Reconciliation cycles by outcome.", "sync.runs.count|", "outcome")
		writePlainCounter(&b, counters, "sync_events_seen_total",
			"External calendar events processed.", "sync.events.seen.count")
		writePlainCounter(&b, counters, "sync_slots_retracted_total",
			"Bookable slots retracted due to external conflicts.", "sync.slots.retracted.count")
		writePlainCounter(&b, counters, "sync_cursor_resets_total",
			"Sync cursor expiries recovered by full re-fetch.", "sync.cursor.resets.count")
		writePlainCounter(&b, counters, "sync_slots_unparsable_total",
			"Stored slot strings that could not be parsed.", "sync.slots.unparsable.count")
		writeLabeledCounter(&b, counters, "http_server_requests_total",
			"HTTP requests by status code.", "http.server.requests.count|", "status")

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.gauges.get("http.server.active_requests"))

		b.WriteString("# HELP sync_pass_selected Clinicians selected by the last scheduler pass.\n")
		b.WriteString("# TYPE sync_pass_selected gauge\n")
		fmt.Fprintf(&b, "sync_pass_selected %d\n\n", p.gauges.get("sync.pass.selected"))

		p.histMu.RLock()
		names := make([]string, 0, len(p.histograms))
		for name := range p.histograms {
			names = append(names, name)
		}
		sort.Strings(names)
		hists := make(map[string]*histogram, len(names))
		for _, name := range names {
			hists[name] = p.histograms[name]
		}
		p.histMu.RUnlock()

		for _, name := range names {
			promName := strings.ReplaceAll(name, ".", "_") + "_seconds"
			writeHistogram(&b, promName, hists[name])
		}

		return c.String(http.StatusOK, b.String())
	}
}

func writePlainCounter(b *strings.Builder, counters map[string]int64, promName, help, key string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", promName, help, promName)
	fmt.Fprintf(b, "%s %d\n\n", promName, counters[key])
}

func writeLabeledCounter(b *strings.Builder, counters map[string]int64, promName, help, prefix, label string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", promName, help, promName)
	keys := make([]string, 0)
	for k := range counters {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", promName, label, strings.TrimPrefix(k, prefix), counters[k])
	}
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, promName string, h *histogram) {
	cum, count, sum := h.export()
	fmt.Fprintf(b, "# HELP %s Duration histogram.\n# TYPE %s histogram\n", promName, promName)
	for i, boundary := range durationBuckets {
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"} %d\n", promName, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", promName, count)
	fmt.Fprintf(b, "%s_sum %g\n", promName, sum)
	fmt.Fprintf(b, "%s_count %d\n\n", promName, count)
}
