package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders dispatched to the exchange"},
		[]string{"product", "side"},
	)
	ProductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "productions_total", Help: "Completed production runs"},
		[]string{"product", "mode"},
	)
	ProductionUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "production_units_total", Help: "Units added to inventory by production"},
		[]string{"product"},
	)
	AutoCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auto_cycles_total", Help: "Auto-production cycles by outcome"},
		[]string{"result"},
	)
	InboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "inbound_events_total", Help: "Exchange events received"},
		[]string{"kind"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconnects_total", Help: "Reconnect attempts by outcome"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(OrdersTotal, ProductionsTotal, ProductionUnitsTotal, AutoCyclesTotal, InboundEventsTotal, ReconnectsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
