package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}

	// Registering twice on the same registry must panic (duplicate collectors).
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(registry)
}

func TestRecordAction(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAction("telegram", "specialty", "success", 0.02)
	m.RecordAction("telegram", "specialty", "success", 0.03)
	m.RecordAction("line", "main_menu", "error", 0.5)

	if got := testutil.ToFloat64(m.ActionsTotal.WithLabelValues("telegram", "specialty", "success")); got != 2 {
		t.Errorf("telegram specialty success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ActionsTotal.WithLabelValues("line", "main_menu", "error")); got != 1 {
		t.Errorf("line main_menu error = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ActionDurationSeconds); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecordStoreQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordStoreQuery("list_specialties", 0.001, nil)
	m.RecordStoreQuery("universities_for", 0.002, errors.New("locked"))

	if got := testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("universities_for")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("list_specialties")); got != 0 {
		t.Errorf("successful query counted as error: %v", got)
	}
}

func TestCountersAndGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSplit()
	m.RecordDeliveryFallback("telegram")
	m.RecordDroppedButton("telegram")
	m.RecordHTTPError("invalid_signature")
	m.RecordRateLimiterDrop("user")
	m.SetRateLimiterUsers(3)
	m.RecordSnapshotSync("swapped")
	m.SetCatalogueSize(10, 72)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"splits", testutil.ToFloat64(m.MessageSplitsTotal), 1},
		{"fallbacks", testutil.ToFloat64(m.DeliveryFallbacks.WithLabelValues("telegram")), 1},
		{"dropped buttons", testutil.ToFloat64(m.DroppedButtons.WithLabelValues("telegram")), 1},
		{"http errors", testutil.ToFloat64(m.HTTPErrorsTotal.WithLabelValues("invalid_signature")), 1},
		{"limiter drops", testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("user")), 1},
		{"limiter users", testutil.ToFloat64(m.RateLimiterUsers), 3},
		{"snapshot swaps", testutil.ToFloat64(m.SnapshotSyncTotal.WithLabelValues("swapped")), 1},
		{"specialties", testutil.ToFloat64(m.CatalogueSpecialties), 10},
		{"universities", testutil.ToFloat64(m.CatalogueUniversities), 72},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}
