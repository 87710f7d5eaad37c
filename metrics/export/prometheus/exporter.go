package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders engine metrics in Prometheus text exposition
// format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates an exporter reading from engine.
func NewPrometheusExporter(engine *authflow.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates an exporter from any value that
// exposes a metrics snapshot and the audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves the rendered metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. It is empty when the engine has
// metrics disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && len(snap.Attempts) == 0 && dropped == 0 {
		return ""
	}

	var x exposition
	x.b.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		x.header(def.Name, def.Help, "counter")
		x.sample(def.Name, "", snap.Counters[def.ID])
	}

	x.header(internaldefs.AttemptFamily, internaldefs.AttemptHelp, "counter")
	for _, op := range authflow.AttemptOperations() {
		for _, outcome := range authflow.AttemptOutcomes() {
			labels := `operation="` + internaldefs.OperationLabel(op) + `",outcome="` + outcome.String() + `"`
			x.sample(internaldefs.AttemptFamily, labels, snap.Attempts[authflow.AttemptKey{Operation: op, Outcome: outcome}])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		x.histogram(def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID])))
	}

	x.header(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	x.sample(internaldefs.AuditDroppedName, "", dropped)

	return x.b.String()
}

// exposition accumulates text format output.
type exposition struct {
	b strings.Builder
}

func (x *exposition) header(name, help, kind string) {
	x.b.WriteString("# HELP ")
	x.b.WriteString(name)
	x.b.WriteByte(' ')
	x.b.WriteString(escapeHelp(help))
	x.b.WriteString("\n# TYPE ")
	x.b.WriteString(name)
	x.b.WriteByte(' ')
	x.b.WriteString(kind)
	x.b.WriteByte('\n')
}

func (x *exposition) sample(name, labels string, value uint64) {
	x.b.WriteString(name)
	if labels != "" {
		x.b.WriteByte('{')
		x.b.WriteString(labels)
		x.b.WriteByte('}')
	}
	x.b.WriteByte(' ')
	x.b.WriteString(strconv.FormatUint(value, 10))
	x.b.WriteByte('\n')
}

func (x *exposition) histogram(name, help string, cumulative [8]uint64) {
	x.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		x.sample(name+"_bucket", `le="`+le+`"`, cumulative[i])
	}
	x.sample(name+"_count", "", cumulative[len(cumulative)-1])
	// The engine keeps bucket counts only.
	x.sample(name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
