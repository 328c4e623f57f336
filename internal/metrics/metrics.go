// Package metrics holds the counters recorded by store operations.
//
// Counters are registered on a caller-supplied registry; nothing is served
// over the network. The CLI prints them with Dump when asked.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/renshi/internal/fault"
)

const namespace = "renshi"

// Metrics groups every counter.
type Metrics struct {
	// RetryAttempts counts retries after contention, per operation.
	RetryAttempts *prometheus.CounterVec

	// RetryExhausted counts operations that ran out of attempts.
	RetryExhausted *prometheus.CounterVec

	// ImportRows counts import rows by outcome (imported, skipped).
	ImportRows *prometheus.CounterVec

	// Operations counts finished operations by outcome (ok or error kind).
	Operations *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
// A nil reg leaves the counters unregistered but usable.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries performed after store contention.",
		}, []string{"op"}),
		RetryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Operations that failed after exhausting every attempt.",
		}, []string{"op"}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Import rows by outcome.",
		}, []string{"outcome"}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished operations by outcome.",
		}, []string{"op", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RetryAttempts, m.RetryExhausted, m.ImportRows, m.Operations)
	}
	return m
}

// ObserveOperation records the outcome of op.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(fault.KindOf(err)))
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// Dump writes every non-zero counter of g as "name{labels} value" lines,
// sorted by name.
func Dump(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			c := metric.GetCounter()
			if c == nil || c.GetValue() == 0 {
				continue
			}
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), c.GetValue()))
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
