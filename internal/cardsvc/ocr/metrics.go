package ocr

import "github.com/prometheus/client_golang/prometheus"

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ocr_requests_total",
		Help: "Total number of OCR scans by outcome",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers the OCR metrics. Call it once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(requestsTotal)
}
