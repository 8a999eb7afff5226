package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveAdmission(t *testing.T) {
	m := NewMetrics()
	m.ObserveAdmission("added", 3)
	m.ObserveAdmission("added", 2)
	m.ObserveAdmission("invalid module", 0)

	if got := testutil.ToFloat64(m.admissionTotal.WithLabelValues("added")); got != 5 {
		t.Errorf("expected 5 added admissions, got %v", got)
	}
	if got := testutil.CollectAndCount(m.admissionTotal); got != 1 {
		t.Errorf("zero observations must not create a series, got %d series", got)
	}
}

func TestMetrics_ObservePass(t *testing.T) {
	m := NewMetrics()
	m.ObservePass(2, 1, 0, 7, 150*time.Millisecond)

	if got := testutil.ToFloat64(m.configurationTotal.WithLabelValues("applied")); got != 2 {
		t.Errorf("expected 2 applied configurations, got %v", got)
	}
	if got := testutil.ToFloat64(m.mergedModules); got != 7 {
		t.Errorf("expected 7 merged modules, got %v", got)
	}
}

func TestMetrics_WriteText(t *testing.T) {
	m := NewMetrics()
	m.ObserveAdmission("incorrect chunks", 1)
	m.ObservePass(1, 0, 0, 2, time.Second)

	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE hoist_concat_admission_total counter",
		`hoist_concat_admission_total{outcome="incorrect chunks"} 1`,
		"hoist_concat_pass_duration_seconds_count 1",
		"hoist_concat_merged_modules 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
}
