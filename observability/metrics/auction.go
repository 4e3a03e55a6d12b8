package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type AuctionMetrics struct {
	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	settlementPrice prometheus.Histogram
	openAuctions    prometheus.Gauge
	rpcRequests     *prometheus.CounterVec
	rpcThrottled    prometheus.Counter
}

var (
	auctionOnce     sync.Once
	auctionRegistry *AuctionMetrics
)

// Auction returns the process-wide auction metrics, registering them with the
// default prometheus registry on first use.
func Auction() *AuctionMetrics {
	auctionOnce.Do(func() {
		auctionRegistry = &AuctionMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_operations_total",
				Help: "Count of applied operations by name and outcome.",
			}, []string{"op", "outcome"}),
			operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_operation_errors_total",
				Help: "Count of rejected operations by name and error kind.",
			}, []string{"op", "kind"}),
			settlementPrice: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "auction_settlement_price",
				Help:    "Winning price of settled auctions in payment units.",
				Buckets: prometheus.ExponentialBuckets(1, 10, 12),
			}),
			openAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "auction_open",
				Help: "Number of auctions opened minus those cancelled or settled since start.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_rpc_requests_total",
				Help: "JSON-RPC requests by method and result code.",
			}, []string{"method", "code"}),
			rpcThrottled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "auction_rpc_throttled_total",
				Help: "JSON-RPC requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(
			auctionRegistry.operations,
			auctionRegistry.operationErrors,
			auctionRegistry.settlementPrice,
			auctionRegistry.openAuctions,
			auctionRegistry.rpcRequests,
			auctionRegistry.rpcThrottled,
		)
	})
	return auctionRegistry
}

func (m *AuctionMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *AuctionMetrics) ObserveError(op, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "internal"
	}
	m.operationErrors.WithLabelValues(op, kind).Inc()
}

func (m *AuctionMetrics) ObserveSettlement(price uint64) {
	if m == nil {
		return
	}
	m.settlementPrice.Observe(float64(price))
}

func (m *AuctionMetrics) AuctionOpened() {
	if m == nil {
		return
	}
	m.openAuctions.Inc()
}

func (m *AuctionMetrics) AuctionClosed() {
	if m == nil {
		return
	}
	m.openAuctions.Dec()
}

func (m *AuctionMetrics) ObserveRPC(method string, code int) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	label := "ok"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	m.rpcRequests.WithLabelValues(method, label).Inc()
}

func (m *AuctionMetrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.rpcThrottled.Inc()
}
