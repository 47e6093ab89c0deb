package metrics

import "testing"

func TestWithLabel(t *testing.T) {
	t.Parallel()

	base := Metric{
		Name:   "allocation",
		Value:  0.5,
		Type:   GaugeType,
		Labels: map[string]string{"allocation_type": "cpu_quota"},
	}

	labeled := base.WithLabel("task_id", "w1")
	if labeled.Labels["task_id"] != "w1" || labeled.Labels["allocation_type"] != "cpu_quota" {
		t.Errorf("unexpected labels: %v", labeled.Labels)
	}
	if _, leaked := base.Labels["task_id"]; leaked {
		t.Errorf("WithLabel mutated the receiver: %v", base.Labels)
	}

	var zero Metric
	if got := zero.WithLabel("k", "v"); got.Labels["k"] != "v" {
		t.Errorf("zero-value metric did not gain label: %v", got.Labels)
	}
}
