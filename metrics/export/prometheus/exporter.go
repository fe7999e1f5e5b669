package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hts/authsvc"
	"github.com/hts/authsvc/metrics/export/internaldefs"
)

// Source is what the exporter reads on every scrape. *authsvc.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authsvc.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in Prometheus text exposition format.
// It owns no registry; callers mount Handler where they like.
type Exporter struct {
	source Source
	extra  []func(*strings.Builder)
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// WithCounter appends a counter read from fn at render time. It is used for
// values owned outside the engine, such as lifecycle worker totals.
func (p *Exporter) WithCounter(name, help string, fn func() uint64) *Exporter {
	p.extra = append(p.extra, func(b *strings.Builder) {
		writeCounter(b, name, help, fn())
	})
	return p
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when the engine records no
// metrics and nothing was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && len(p.extra) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	if len(snapshot.Counters) > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		nonCumulative := internaldefs.NormalizeBuckets(raw)
		writeHistogram(&b, def.Name, def.Help, nonCumulative)
	}

	writeCounter(&b, "authsvc_audit_dropped_total", "Audit events dropped under dispatcher backpressure.", dropped)
	for _, fn := range p.extra {
		fn(&b)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, buckets [8]uint64) {
	writeHeader(b, name, help, "histogram")

	cumulative := internaldefs.CumulativeBuckets(buckets)
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	b.WriteString(name)
	b.WriteString("_sum ")
	b.WriteString(strconv.FormatFloat(estimateSum(buckets), 'f', 3, 64))
	b.WriteByte('\n')

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	b.WriteByte('\n')
}

// estimateSum approximates the sum in seconds by charging every sample its
// bucket's upper bound. Overflow samples are charged the last finite bound.
func estimateSum(buckets [8]uint64) float64 {
	var sum float64
	last := authsvc.HistogramBucketBounds[len(authsvc.HistogramBucketBounds)-1]
	for i, n := range buckets {
		bound := last
		if i < len(authsvc.HistogramBucketBounds) {
			bound = authsvc.HistogramBucketBounds[i]
		}
		sum += float64(n) * float64(bound) / 1000
	}
	return sum
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
