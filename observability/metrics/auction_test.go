package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuctionMetricsRegisterOnce(t *testing.T) {
	first := Auction()
	if first != Auction() {
		t.Fatalf("expected a single registry instance")
	}

	first.ObserveOperation("bid", "ok")
	first.ObserveOperation("bid", "ok")
	if got := testutil.ToFloat64(first.operations.WithLabelValues("bid", "ok")); got != 2 {
		t.Fatalf("expected 2 bid operations, got %v", got)
	}

	first.ObserveError("close", "")
	if got := testutil.ToFloat64(first.operationErrors.WithLabelValues("close", "internal")); got != 1 {
		t.Fatalf("expected empty kind to be recorded as internal, got %v", got)
	}

	first.AuctionOpened()
	first.AuctionOpened()
	first.AuctionClosed()
	if got := testutil.ToFloat64(first.openAuctions); got != 1 {
		t.Fatalf("expected 1 open auction, got %v", got)
	}

	first.ObserveRPC("auction_get", -32004)
	if got := testutil.ToFloat64(first.rpcRequests.WithLabelValues("auction_get", "-32004")); got != 1 {
		t.Fatalf("expected coded rpc counter, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *AuctionMetrics
	m.ObserveOperation("bid", "ok")
	m.ObserveError("bid", "state")
	m.ObserveSettlement(10)
	m.AuctionOpened()
	m.AuctionClosed()
	m.ObserveRPC("auction_get", 0)
	m.ObserveThrottled()
}
