package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"

	"cloudpico-humidity/internal/flow"
)

func TestRegistry_Families(t *testing.T) {
	r := NewRegistry()
	r.Observe("living", flow.Emitted)
	r.Observe("living", flow.Emitted)
	r.Observe("living", flow.Rejected)
	r.Observe("cellar", flow.Pending)
	r.SetDeployed(2)

	fams := r.Families()
	if len(fams) != 2 {
		t.Fatalf("families = %d; want 2", len(fams))
	}
	msgs := fams[0]
	if msgs.GetName() != "humidity_messages_total" {
		t.Fatalf("first family = %q", msgs.GetName())
	}
	if len(msgs.GetMetric()) != 3 {
		t.Fatalf("series = %d; want 3", len(msgs.GetMetric()))
	}
	// Sorted by node then outcome: cellar/pending, living/emitted, living/rejected.
	first := msgs.GetMetric()[0]
	if first.GetLabel()[0].GetValue() != "cellar" || first.GetLabel()[1].GetValue() != "pending" {
		t.Errorf("first series labels = %v", first.GetLabel())
	}
	if v := msgs.GetMetric()[1].GetCounter().GetValue(); v != 2 {
		t.Errorf("living/emitted = %v; want 2", v)
	}
	if v := fams[1].GetMetric()[0].GetGauge().GetValue(); v != 2 {
		t.Errorf("nodes deployed = %v; want 2", v)
	}
}

func TestRegistry_EmptyHasOnlyGauge(t *testing.T) {
	fams := NewRegistry().Families()
	if len(fams) != 1 || fams[0].GetName() != "humidity_nodes_deployed" {
		t.Fatalf("families = %v; want only the deployed gauge", fams)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Observe("living", flow.Emitted)
	r.Observe("living", flow.Ignored)
	r.SetDeployed(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q; want text/plain", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `humidity_messages_total{node="living",outcome="emitted"} 1`) {
		t.Errorf("body missing emitted series:\n%s", body)
	}

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		t.Fatalf("exposition does not parse: %v", err)
	}
	if got := len(fams["humidity_messages_total"].GetMetric()); got != 2 {
		t.Errorf("parsed series = %d; want 2", got)
	}
	if got := fams["humidity_nodes_deployed"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("parsed deployed = %v; want 1", got)
	}
}
