package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchTotal == nil || httpRequestsTotal == nil || jobsTotal == nil || runsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("metrics-test.example.com", 200, 150*time.Millisecond, 512)
	ObserveFetch("metrics-test.example.com", 0, time.Second, 0)

	if val := testutil.ToFloat64(fetchTotal.WithLabelValues("metrics-test.example.com", "200")); val != 1 {
		t.Errorf("expected one 200 fetch, got %f", val)
	}
	if val := testutil.ToFloat64(fetchTotal.WithLabelValues("metrics-test.example.com", "network")); val != 1 {
		t.Errorf("expected one network fetch, got %f", val)
	}
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("metrics-test.example.com")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}
}

func TestObserveItemsIgnoresZero(t *testing.T) {
	ObserveItems("metrics-test", 0)
	ObserveItems("metrics-test", 3)
	if val := testutil.ToFloat64(itemsTotal.WithLabelValues("metrics-test")); val != 3 {
		t.Errorf("expected 3 items, got %f", val)
	}
}

func TestHostInFlightGauge(t *testing.T) {
	SetHostInFlight("gauge.example.com", 2)
	if val := testutil.ToFloat64(hostInFlight.WithLabelValues("gauge.example.com")); val != 2 {
		t.Errorf("expected gauge 2, got %f", val)
	}
	SetHostInFlight("gauge.example.com", 0)
	if val := testutil.ToFloat64(hostInFlight.WithLabelValues("gauge.example.com")); val != 0 {
		t.Errorf("expected gauge 0, got %f", val)
	}
}

func TestObserveRunAndJobs(t *testing.T) {
	ObserveRun("dummy", "success", 2*time.Second)
	if val := testutil.ToFloat64(runsTotal.WithLabelValues("dummy", "success")); val < 1 {
		t.Errorf("expected a dummy success run, got %f", val)
	}

	Init()
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("requeued"))
	ObserveJob("requeued")
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("requeued")); val != before+1 {
		t.Errorf("expected requeued jobs to grow by one, got %f -> %f", before, val)
	}
}

func TestDiscoveryCacheOutcomes(t *testing.T) {
	Init()
	hits := testutil.ToFloat64(discoveryCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(discoveryCacheTotal.WithLabelValues("miss"))
	ObserveDiscoveryCache(true)
	ObserveDiscoveryCache(false)
	ObserveDiscoveryCache(false)
	if val := testutil.ToFloat64(discoveryCacheTotal.WithLabelValues("hit")); val != hits+1 {
		t.Errorf("expected one more hit, got %f", val-hits)
	}
	if val := testutil.ToFloat64(discoveryCacheTotal.WithLabelValues("miss")); val != misses+2 {
		t.Errorf("expected two more misses, got %f", val-misses)
	}
}
