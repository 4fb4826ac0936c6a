package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/metrics/export/internaldefs"
)

// Source is what the exporter reads. *otpAuth.Engine implements it.
type Source interface {
	MetricsSnapshot() otpAuth.MetricsSnapshot
	AuditDropped() uint64
	AuditDelivered() uint64
}

// Exporter renders a Source in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// NewPrometheusExporter reads from engine.
func NewPrometheusExporter(engine *otpAuth.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource reads from any Source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition for /metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if r.Method == http.MethodHead {
			return
		}
		_ = p.Write(w)
	})
}

// Render returns the exposition as a string.
func (p *Exporter) Render() string {
	var b strings.Builder
	_ = p.Write(&b)
	return b.String()
}

// Write streams every counter, histogram and the audit dispatcher counters to w.
// A nil exporter or source writes nothing.
func (p *Exporter) Write(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}

	snapshot := p.source.MetricsSnapshot()
	bw := bufio.NewWriter(w)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(bw, def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
	}
	writeCounter(bw, "otpauth_audit_dropped_total", "Audit events dropped because the dispatcher buffer was full.", p.source.AuditDropped())
	writeCounter(bw, "otpauth_audit_delivered_total", "Audit events handed to the audit sink.", p.source.AuditDelivered())

	return bw.Flush()
}

func writeHeader(w *bufio.Writer, name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeCounter(w *bufio.Writer, name, help string, value uint64) {
	writeHeader(w, name, help, "counter")
	w.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

func writeHistogram(w *bufio.Writer, name, help string, cumulative [8]uint64) {
	writeHeader(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.WriteString(name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	w.WriteString(name + "_count " + strconv.FormatUint(cumulative[len(cumulative)-1], 10) + "\n")
	// the engine keeps bucket counts only
	w.WriteString(name + "_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
