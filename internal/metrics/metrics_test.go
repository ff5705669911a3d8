package metrics

import "testing"

func TestRecordTransactionAndStep(t *testing.T) {
	m := NewMetrics()
	m.RecordTransaction("committed", 1.5)
	m.SetActiveTransaction(true)
	m.RecordStep("apt_package", "succeeded", 0.2)
	m.RecordRollback("rolled_back")
	m.RecordCompensationFailure()
	m.RecordStoreOperation("insert_transaction", "ok", 0.001)
	m.RecordHTTPRequest("GET", "/health", "200", 0.001)
}

func TestNewMetricsUsesAPrivateRegistry(t *testing.T) {
	// Each instance must own its registry: constructing two must never
	// panic on duplicate metric registration against a shared default.
	a := NewMetrics()
	b := NewMetrics()
	if a.Registry() == b.Registry() {
		t.Fatalf("expected distinct registries per Metrics instance")
	}
}
