package server

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Server Metrics
// --------------------------------------------------------------------------

var (
	metricConnsAccepted  = metrics.NewCounter("ekv_connections_accepted_total")
	metricConnsClosed    = metrics.NewCounter("ekv_connections_closed_total")
	metricRequestsServed = metrics.NewCounter("ekv_requests_served_total")
	metricProtocolErrors = metrics.NewCounter("ekv_protocol_errors_total")
	metricBytesRead      = metrics.NewCounter("ekv_bytes_read_total")
	metricBytesWritten   = metrics.NewCounter("ekv_bytes_written_total")
)

// serveMetrics exposes the counters in Prometheus text format on its own
// listener. It runs on a separate goroutine and never touches event-loop
// state beyond the atomic counters.
func serveMetrics(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	go func() {
		Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
		if err := http.ListenAndServe(endpoint, mux); err != nil {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}
