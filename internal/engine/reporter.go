package engine

import (
	"sync/atomic"

	"golang.org/x/time/rate"

	"firestige.xyz/scanguard/internal/classifier"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/metrics"
)

// LogReporter logs drop events at warn level, sampled by a token bucket.
// Other decisions are logged at debug level.
type LogReporter struct {
	logger     log.Logger
	limiter    *rate.Limiter
	logDrops   bool
	suppressed atomic.Uint64
}

// NewLogReporter creates a log reporter allowing burst drop events and
// ratePerSec more per second.
func NewLogReporter(logger log.Logger, logDrops bool, ratePerSec float64, burst int) *LogReporter {
	return &LogReporter{
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logDrops: logDrops,
	}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ev *Event) {
	d := &ev.Decision
	if d.Verdict == core.VerdictDrop {
		if !r.logDrops {
			return
		}
		if !r.limiter.Allow() {
			r.suppressed.Add(1)
			return
		}
		l := r.logger.WithFields(viewFields(&d.View)).WithField("rule", d.Rule)
		if n := r.suppressed.Swap(0); n > 0 {
			l = l.WithField("suppressed", n)
		}
		l.Warn("scan packet dropped")
		return
	}

	if !r.logger.IsDebugEnabled() {
		return
	}
	if d.Err != nil {
		r.logger.WithError(d.Err).WithField("reason", d.Reason).Debug("packet accepted without classification")
		return
	}
	r.logger.WithFields(viewFields(&d.View)).WithField("reason", d.Reason).Debug("packet accepted")
}

// Suppressed returns the number of drop events not logged since the last one that was.
func (r *LogReporter) Suppressed() uint64 {
	return r.suppressed.Load()
}

func viewFields(v *core.HeaderView) map[string]interface{} {
	f := map[string]interface{}{
		"proto": v.Protocol.String(),
		"src":   v.SrcIP.String(),
		"dst":   v.DstIP.String(),
	}
	if v.Protocol == core.ProtocolTCP {
		f["sport"] = v.SrcPort
		f["dport"] = v.DstPort
		f["flags"] = v.Flags.String()
		f["window"] = v.Window
	}
	return f
}

// MetricsReporter exports events to Prometheus.
type MetricsReporter struct{}

func NewMetricsReporter() *MetricsReporter { return &MetricsReporter{} }

func (MetricsReporter) Name() string { return "metrics" }

func (MetricsReporter) Report(ev *Event) {
	d := &ev.Decision
	metrics.PacketsTotal.WithLabelValues(d.Verdict.String()).Inc()
	metrics.DecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
	metrics.ClassifyLatencySeconds.Observe(ev.Latency.Seconds())

	switch {
	case d.Reason == classifier.ReasonMatched:
		metrics.RuleMatchesTotal.WithLabelValues(d.Rule).Inc()
	case d.Err != nil:
		metrics.ExtractErrorsTotal.WithLabelValues(ExtractReason(d.Err)).Inc()
	}
}
