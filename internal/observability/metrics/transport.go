package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Transport records HTTPClient* metrics for every request it forwards.
type Transport struct {
	Base    http.RoundTripper
	Service string
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(service string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Service: service}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	inFlight := HTTPClientInFlight.WithLabelValues(t.Service)
	inFlight.Inc()
	defer inFlight.Dec()

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	RecordRequest(t.Service, req.Method, statusLabel(resp, err), time.Since(start))
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		HTTPClientThrottledTotal.WithLabelValues(t.Service).Inc()
	}
	return resp, err
}

// RecordRequest records one outbound request.
func RecordRequest(service, method, status string, duration time.Duration) {
	HTTPClientRequestsTotal.WithLabelValues(service, method, status).Inc()
	HTTPClientRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

func statusLabel(resp *http.Response, err error) string {
	if err != nil || resp == nil {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode)
}
