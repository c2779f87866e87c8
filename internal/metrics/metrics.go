package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DetectorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_detector_cycles_total", Help: "Completed detector cycles"},
		[]string{"detector"},
	)
	DetectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_detector_errors_total", Help: "Quote fetch failures"},
		[]string{"detector"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_signals_total", Help: "Detected price-lag signals"},
		[]string{"detector"},
	)
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_orders_placed_total", Help: "Orders accepted by the exchange"},
		[]string{"side"},
	)
	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_orders_rejected_total", Help: "Orders refused by the exchange"},
		[]string{"side"},
	)
	OrderCancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_order_cancels_total", Help: "Cancel requests by result"},
		[]string{"side", "result"},
	)
	ChunkOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_chunk_outcomes_total", Help: "Terminal chunk outcomes"},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		DetectorCycles,
		DetectorErrors,
		SignalsTotal,
		OrdersPlaced,
		OrdersRejected,
		OrderCancels,
		ChunkOutcomes,
	)
}
