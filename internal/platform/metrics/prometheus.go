package metrics

import (
	"net/http"

	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the service's Prometheus metrics.
type MetricsManager struct {
	Registry *prometheus.Registry

	ListingsCreatedTotal prometheus.Counter
	PurchasesTotal       prometheus.Counter
	CancellationsTotal   prometheus.Counter
	SettlementsTotal     prometheus.Counter
	ArbitrationsTotal    prometheus.Counter
	TransitionErrors     *prometheus.CounterVec
	RequestLatency       *prometheus.HistogramVec
}

// NewMetricsManager initializes and registers the custom metrics on a
// dedicated registry.
func NewMetricsManager(serviceName string) *MetricsManager {
	registry := prometheus.NewRegistry()

	listingsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "listings_created_total",
		Help:      "Total number of listings created.",
	})
	purchasesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "purchases_total",
		Help:      "Total number of listings purchased.",
	})
	cancellationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "purchase_cancellations_total",
		Help:      "Total number of purchases cancelled before shipping.",
	})
	settlementsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "settlements_total",
		Help:      "Total number of escrows settled on buyer receipt.",
	})
	arbitrationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "arbitrations_total",
		Help:      "Total number of escrows settled by arbitration.",
	})
	transitionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "transition_errors_total",
		Help:      "Total number of rejected lifecycle transitions by action and error type.",
	}, []string{"action", "error_type"})
	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "api_request_latency_seconds",
		Help:      "Latency of API requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(
		listingsCreatedTotal,
		purchasesTotal,
		cancellationsTotal,
		settlementsTotal,
		arbitrationsTotal,
		transitionErrors,
		requestLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &MetricsManager{
		Registry:             registry,
		ListingsCreatedTotal: listingsCreatedTotal,
		PurchasesTotal:       purchasesTotal,
		CancellationsTotal:   cancellationsTotal,
		SettlementsTotal:     settlementsTotal,
		ArbitrationsTotal:    arbitrationsTotal,
		TransitionErrors:     transitionErrors,
		RequestLatency:       requestLatency,
	}
}

// StartMetricsServer exposes the registry on its own port. Returns
// immediately if no port is configured.
func StartMetricsServer(port string, appLogger logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Infof("Prometheus metrics server starting on port %s", port)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return server.ListenAndServe()
}
