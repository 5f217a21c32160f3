// Package metrics holds the exporter's instruments and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/vesaa/neonboard/internal/config"
	"github.com/vesaa/neonboard/internal/models"
)

// ContentType is the media type of Render's output.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Registry owns every instrument for the lifetime of the process. Apply
// replaces a whole pass atomically and Render reads under the same lock, so a
// render never sees labeled entries from two different passes.
type Registry struct {
	mu     sync.RWMutex
	reg    *prometheus.Registry
	table  []Instrument
	vecs   map[string]*prometheus.GaugeVec
	policy string
}

// NewRegistry registers every instrument in table. policy is one of the
// config.Stale* values.
func NewRegistry(table []Instrument, policy string) (*Registry, error) {
	switch policy {
	case config.StaleZero, config.StaleRetain, config.StaleDrop:
	default:
		return nil, fmt.Errorf("unknown stale policy %q", policy)
	}

	r := &Registry{
		reg:    prometheus.NewRegistry(),
		table:  table,
		vecs:   make(map[string]*prometheus.GaugeVec, len(table)),
		policy: policy,
	}
	for _, in := range table {
		if in.Extract == nil {
			return nil, fmt.Errorf("instrument %s has no extractor", in.Name)
		}
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: in.Name, Help: in.Help}, in.Labels)
		if err := r.reg.Register(vec); err != nil {
			return nil, fmt.Errorf("registering %s: %w", in.Name, err)
		}
		r.vecs[in.Name] = vec
	}
	return r, nil
}

// Apply writes one collection pass. Instruments of successful sources are
// cleared and rewritten; instruments of failed sources follow the stale policy.
func (r *Registry) Apply(snap *models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, in := range r.table {
		vec := r.vecs[in.Name]
		if !snap.OK(in.Source) {
			switch r.policy {
			case config.StaleRetain:
				continue
			case config.StaleDrop:
				vec.Reset()
				continue
			}
			// StaleZero: the snapshot already carries the source's fallback values.
		}
		vec.Reset()
		for _, s := range in.Extract(snap) {
			vec.WithLabelValues(validLabels(s.Labels)...).Set(s.Value)
		}
	}
}

// validLabels replaces invalid UTF-8 in label values. Process names and
// sensor keys come straight from the kernel and may hold arbitrary bytes,
// which client_golang rejects with a panic.
func validLabels(values []string) []string {
	for i, v := range values {
		if utf8.ValidString(v) {
			continue
		}
		out := make([]string, len(values))
		copy(out, values)
		for j := i; j < len(out); j++ {
			out[j] = strings.ToValidUTF8(out[j], "\uFFFD")
		}
		return out
	}
	return values
}

// Render writes the current values in text exposition format. It performs
// no collection.
func (r *Registry) Render(w io.Writer) error {
	r.mu.RLock()
	families, err := r.reg.Gather()
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// RenderBytes is Render into a fresh buffer.
func (r *Registry) RenderBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
