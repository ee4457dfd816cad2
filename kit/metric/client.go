package metric

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// REDClient records rate, errors and duration of the calls of a service.
type REDClient struct {
	calls    *prometheus.CounterVec
	errs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a REDClient for service and registers its collectors with reg.
func New(reg prometheus.Registerer, service string, opts ...ClientOptFn) *REDClient {
	o := ApplyMetricOpts(opts...)

	c := &REDClient{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Subsystem: service,
			Name:      "call_total",
			Help:      "Number of calls",
		}, []string{"method"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Subsystem: service,
			Name:      "error_total",
			Help:      "Number of errors encountered",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Subsystem: service,
			Name:      "duration",
			Help:      "Duration of calls",
			Buckets:   o.buckets,
		}, []string{"method"}),
	}
	reg.MustRegister(c.calls, c.errs, c.duration)
	return c
}

// Record starts timing method. The returned func stops the timer, counts the
// call and the error when there is one, and returns err unchanged.
func (c *REDClient) Record(method string) func(error) error {
	start := time.Now()
	return func(err error) error {
		c.calls.WithLabelValues(method).Inc()
		if err != nil {
			code := errors.ErrorCode(err)
			if code == "" {
				code = "unknown"
			}
			c.errs.WithLabelValues(method, code).Inc()
		}
		c.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return err
	}
}

type metricOpts struct {
	namespace     string
	serviceSuffix string
	buckets       []float64
}

// ClientOptFn configures a REDClient.
type ClientOptFn func(*metricOpts)

// WithNamespace overrides the metric namespace, "tenantdb" by default.
func WithNamespace(ns string) ClientOptFn {
	return func(o *metricOpts) {
		o.namespace = ns
	}
}

// WithSuffix is appended to the service name of every metric.
func WithSuffix(suffix string) ClientOptFn {
	return func(o *metricOpts) {
		o.serviceSuffix = suffix
	}
}

// WithBuckets overrides the duration histogram buckets.
func WithBuckets(b ...float64) ClientOptFn {
	return func(o *metricOpts) {
		o.buckets = b
	}
}

// ApplyMetricOpts applies opts over the defaults.
func ApplyMetricOpts(opts ...ClientOptFn) *metricOpts {
	o := metricOpts{
		namespace: "tenantdb",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

// ApplySuffix returns prefix joined with the configured service suffix.
func (o *metricOpts) ApplySuffix(prefix string) string {
	if o.serviceSuffix != "" {
		return fmt.Sprintf("%s_%s", prefix, o.serviceSuffix)
	}
	return prefix
}
