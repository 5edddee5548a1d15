package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveIncrementsOutcomeCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Observe(OutcomeCommitted, time.Now().Add(-5*time.Millisecond))

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range metrics {
		if mf.GetName() != "mtm_commit_outcomes_total" {
			continue
		}
		for _, m := range mf.Metric {
			if labelValue(m, "outcome") == "committed" && m.Counter.GetValue() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected one committed outcome recorded")
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
