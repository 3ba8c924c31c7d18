// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package metrics provides counters, gauges and histograms exposed in
// the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Labels are metric dimensions.
type Labels map[string]string

// key is the canonical sorted form used to index series.
func (l Labels) key() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, l[k])
	}
	return sb.String()
}

// String renders labels in exposition syntax, e.g. {a="1",b="2"}.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) with(k, v string) Labels {
	out := make(Labels, len(l)+1)
	for kk, vv := range l {
		out[kk] = vv
	}
	out[k] = v
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string {
	return labelEscaper.Replace(s)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is anything the registry can expose.
type Metric interface {
	Name() string
	write(w io.Writer)
}

// family holds the labelled series of one metric.
type family[V any] struct {
	mu     sync.Mutex
	name   string
	help   string
	series map[string]*V
	labels map[string]Labels
}

func newFamily[V any](name, help string) family[V] {
	return family[V]{name: name, help: help, series: make(map[string]*V), labels: make(map[string]Labels)}
}

// get returns the series for labels, creating it with init. Caller holds mu.
func (f *family[V]) get(labels Labels, init func() *V) *V {
	k := labels.key()
	v, ok := f.series[k]
	if !ok {
		v = init()
		f.series[k] = v
		f.labels[k] = labels
	}
	return v
}

func (f *family[V]) sortedKeys() []string {
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *family[V]) header(w io.Writer, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, kind)
}

// Counter is a monotonically increasing count.
type Counter struct {
	family[float64]
}

func NewCounter(name, help string) *Counter {
	return &Counter{newFamily[float64](name, help)}
}

func (c *Counter) Name() string { return c.name }

func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increases the counter; negative deltas are ignored.
func (c *Counter) Add(labels Labels, delta float64) {
	if delta < 0 {
		return
	}
	c.mu.Lock()
	*c.get(labels, func() *float64 { return new(float64) }) += delta
	c.mu.Unlock()
}

func (c *Counter) Get(labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.series[labels.key()]; ok {
		return *v
	}
	return 0
}

func (c *Counter) write(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header(w, "counter")
	for _, k := range c.sortedKeys() {
		fmt.Fprintf(w, "%s%s %s\n", c.name, c.labels[k], formatFloat(*c.series[k]))
	}
}

// Gauge is a value that can go up and down.
type Gauge struct {
	family[float64]
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{newFamily[float64](name, help)}
}

func (g *Gauge) Name() string { return g.name }

func (g *Gauge) Set(labels Labels, v float64) {
	g.mu.Lock()
	*g.get(labels, func() *float64 { return new(float64) }) = v
	g.mu.Unlock()
}

func (g *Gauge) Add(labels Labels, delta float64) {
	g.mu.Lock()
	*g.get(labels, func() *float64 { return new(float64) }) += delta
	g.mu.Unlock()
}

// SetBool stores 1 for true and 0 for false.
func (g *Gauge) SetBool(labels Labels, b bool) {
	v := 0.0
	if b {
		v = 1
	}
	g.Set(labels, v)
}

func (g *Gauge) Get(labels Labels) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.series[labels.key()]; ok {
		return *v
	}
	return 0
}

func (g *Gauge) write(w io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.header(w, "gauge")
	for _, k := range g.sortedKeys() {
		fmt.Fprintf(w, "%s%s %s\n", g.name, g.labels[k], formatFloat(*g.series[k]))
	}
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	family[histogramValue]
	bounds []float64
}

type histogramValue struct {
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// NewHistogram creates a histogram with the given upper bounds.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &Histogram{family: newFamily[histogramValue](name, help), bounds: b}
}

// LinearBuckets returns count bounds starting at start, width apart.
func LinearBuckets(start, width float64, count int) []float64 {
	b := make([]float64, count)
	for i := range b {
		b[i] = start + float64(i)*width
	}
	return b
}

// ExponentialBuckets returns count bounds starting at start, each factor
// times the previous.
func ExponentialBuckets(start, factor float64, count int) []float64 {
	b := make([]float64, count)
	for i := range b {
		b[i] = start
		start *= factor
	}
	return b
}

func (h *Histogram) Name() string { return h.name }

func (h *Histogram) Observe(labels Labels, v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hv := h.get(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.bounds))}
	})
	hv.count++
	hv.sum += v
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		hv.counts[i]++
	}
}

func (h *Histogram) write(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header(w, "histogram")
	for _, k := range h.sortedKeys() {
		hv, ls := h.series[k], h.labels[k]
		var run uint64
		for i, b := range h.bounds {
			run += hv.counts[i]
			fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, ls.with("le", formatFloat(b)), run)
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, ls.with("le", "+Inf"), hv.count)
		fmt.Fprintf(w, "%s_sum%s %s\n", h.name, ls, formatFloat(hv.sum))
		fmt.Fprintf(w, "%s_count%s %d\n", h.name, ls, hv.count)
	}
}

// Registry exposes metrics in registration order.
type Registry struct {
	mu      sync.Mutex
	metrics []Metric
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a metric; names must be unique.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[m.Name()]; dup {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
	return nil
}

// MustRegister is Register that panics on duplicates.
func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// WriteTo writes every metric in the text exposition format.
func (r *Registry) WriteTo(w io.Writer) {
	r.mu.Lock()
	ms := append([]Metric(nil), r.metrics...)
	r.mu.Unlock()
	for _, m := range ms {
		m.write(w)
	}
}

// Gather returns the exposition text.
func (r *Registry) Gather() string {
	var sb strings.Builder
	r.WriteTo(&sb)
	return sb.String()
}

// ServeHTTP serves the exposition text.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	r.WriteTo(w)
}
