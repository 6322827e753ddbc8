package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/authmode/authmode/internal/metrics"
)

// Source yields the current counter values. Implemented by the engine.
type Source interface {
	MetricsSnapshot() metrics.Snapshot
	AuditDropped() uint64
}

// Collector adapts a Source to prometheus.Collector. All metrics are
// cumulative counters read at scrape time.
type Collector struct {
	source Source

	logins        *prometheus.Desc
	loginFailures *prometheus.Desc
	registrations *prometheus.Desc
	refreshes     *prometheus.Desc
	reuseDetected *prometheus.Desc
	logouts       *prometheus.Desc
	csrfRejected  *prometheus.Desc
	auditDropped  *prometheus.Desc
}

// NewCollector builds a Collector over source.
func NewCollector(source Source) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("authmode_"+name, help, nil, nil)
	}
	return &Collector{
		source:        source,
		logins:        desc("logins_total", "Successful authentications."),
		loginFailures: desc("login_failures_total", "Rejected authentication attempts."),
		registrations: desc("registrations_total", "Accounts created."),
		refreshes:     desc("token_refreshes_total", "Successful refresh token rotations."),
		reuseDetected: desc("token_reuse_detected_total", "Refresh tokens presented after consumption."),
		logouts:       desc("logouts_total", "Explicit logouts."),
		csrfRejected:  desc("csrf_rejections_total", "Requests rejected by CSRF protection."),
		auditDropped:  desc("audit_dropped_total", "Audit events dropped under backpressure."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.logins
	ch <- c.loginFailures
	ch <- c.registrations
	ch <- c.refreshes
	ch <- c.reuseDetected
	ch <- c.logouts
	ch <- c.csrfRejected
	ch <- c.auditDropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.MetricsSnapshot()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.logins, snap.Logins)
	counter(c.loginFailures, snap.LoginFailures)
	counter(c.registrations, snap.Registrations)
	counter(c.refreshes, snap.Refreshes)
	counter(c.reuseDetected, snap.ReuseDetected)
	counter(c.logouts, snap.Logouts)
	counter(c.csrfRejected, snap.CSRFRejected)
	counter(c.auditDropped, c.source.AuditDropped())
}
