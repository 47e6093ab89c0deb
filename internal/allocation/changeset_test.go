package allocation

import (
	"errors"
	"reflect"
	"testing"

	"colloc-agent/internal/workload"
)

// bogusValue satisfies Value but none of the capability interfaces, to
// exercise the exhaustive-switch failure paths.
type bogusValue struct{}

func (bogusValue) isAllocationValue() {}

func TestCalculateTaskAllocationsChangeset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		current       TaskAllocations
		new           TaskAllocations
		wantTarget    TaskAllocations
		wantChangeset TaskAllocations
	}{
		{
			name:          "empty inputs",
			current:       TaskAllocations{},
			new:           TaskAllocations{},
			wantTarget:    TaskAllocations{},
			wantChangeset: TaskAllocations{},
		},
		{
			name:          "first quota request",
			current:       TaskAllocations{},
			new:           TaskAllocations{QuotaAllocationType: Scalar(0.8)},
			wantTarget:    TaskAllocations{QuotaAllocationType: Scalar(0.8)},
			wantChangeset: TaskAllocations{QuotaAllocationType: Scalar(0.8)},
		},
		{
			name:          "scalar change below tolerance is a no-op",
			current:       TaskAllocations{SharesAllocationType: Scalar(0.50)},
			new:           TaskAllocations{SharesAllocationType: Scalar(0.505)},
			wantTarget:    TaskAllocations{SharesAllocationType: Scalar(0.50)},
			wantChangeset: TaskAllocations{},
		},
		{
			name:          "scalar change above tolerance is applied",
			current:       TaskAllocations{SharesAllocationType: Scalar(0.50)},
			new:           TaskAllocations{SharesAllocationType: Scalar(0.60)},
			wantTarget:    TaskAllocations{SharesAllocationType: Scalar(0.60)},
			wantChangeset: TaskAllocations{SharesAllocationType: Scalar(0.60)},
		},
		{
			name:          "scalar change from zero is always applied",
			current:       TaskAllocations{SharesAllocationType: Scalar(0)},
			new:           TaskAllocations{SharesAllocationType: Scalar(0.001)},
			wantTarget:    TaskAllocations{SharesAllocationType: Scalar(0.001)},
			wantChangeset: TaskAllocations{SharesAllocationType: Scalar(0.001)},
		},
		{
			name:    "axes only in current are carried forward",
			current: TaskAllocations{QuotaAllocationType: Scalar(0.5)},
			new:     TaskAllocations{SharesAllocationType: Scalar(0.3)},
			wantTarget: TaskAllocations{
				QuotaAllocationType:  Scalar(0.5),
				SharesAllocationType: Scalar(0.3),
			},
			wantChangeset: TaskAllocations{SharesAllocationType: Scalar(0.3)},
		},
		{
			name:    "rdt merge keeps current fields and emits only the diff",
			current: TaskAllocations{RDTAllocationType: &RDTAllocation{Name: "g", L3: "A", MB: "B"}},
			new:     TaskAllocations{RDTAllocationType: &RDTAllocation{Name: "g", L3: "C"}},
			wantTarget: TaskAllocations{
				RDTAllocationType: &RDTAllocation{Name: "g", L3: "C", MB: "B"},
			},
			wantChangeset: TaskAllocations{
				RDTAllocationType: &RDTAllocation{Name: "g", L3: "C"},
			},
		},
		{
			name:          "identical rdt request produces no changeset",
			current:       TaskAllocations{RDTAllocationType: &RDTAllocation{Name: "g", L3: "A"}},
			new:           TaskAllocations{RDTAllocationType: &RDTAllocation{Name: "g", L3: "A"}},
			wantTarget:    TaskAllocations{RDTAllocationType: &RDTAllocation{Name: "g", L3: "A"}},
			wantChangeset: TaskAllocations{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			target, changeset, err := CalculateTaskAllocationsChangeset(tt.current, tt.new)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(target, tt.wantTarget) {
				t.Errorf("target = %v, want %v", target, tt.wantTarget)
			}
			if !reflect.DeepEqual(changeset, tt.wantChangeset) {
				t.Errorf("changeset = %v, want %v", changeset, tt.wantChangeset)
			}
		})
	}
}

func TestCalculateTaskAllocationsChangesetUnsupportedValue(t *testing.T) {
	t.Parallel()

	_, _, err := CalculateTaskAllocationsChangeset(
		TaskAllocations{},
		TaskAllocations{QuotaAllocationType: bogusValue{}},
	)
	var unsupported *UnsupportedValueTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedValueTypeError, got %v", err)
	}
	if unsupported.AllocationType != QuotaAllocationType {
		t.Errorf("error names type %q, want %q", unsupported.AllocationType, QuotaAllocationType)
	}
}

func TestCalculateTasksAllocationsChangeset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		current       TasksAllocations
		new           TasksAllocations
		wantTarget    TasksAllocations
		wantChangeset TasksAllocations
	}{
		{
			name: "new workload enters changeset verbatim",
			current: TasksAllocations{
				"w1": {SharesAllocationType: Scalar(0.3)},
			},
			new: TasksAllocations{
				"w1": {SharesAllocationType: Scalar(0.3)},
				"w2": {QuotaAllocationType: Scalar(0.8)},
			},
			wantTarget: TasksAllocations{
				"w1": {SharesAllocationType: Scalar(0.3)},
				"w2": {QuotaAllocationType: Scalar(0.8)},
			},
			wantChangeset: TasksAllocations{
				"w2": {QuotaAllocationType: Scalar(0.8)},
			},
		},
		{
			name: "workload absent from new state is carried forward",
			current: TasksAllocations{
				"w1": {QuotaAllocationType: Scalar(0.5)},
			},
			new: TasksAllocations{},
			wantTarget: TasksAllocations{
				"w1": {QuotaAllocationType: Scalar(0.5)},
			},
			wantChangeset: TasksAllocations{},
		},
		{
			name: "mixed per workload merges",
			current: TasksAllocations{
				"w1": {
					QuotaAllocationType: Scalar(0.5),
					RDTAllocationType:   &RDTAllocation{Name: "g", L3: "A", MB: "B"},
				},
			},
			new: TasksAllocations{
				"w1": {
					QuotaAllocationType: Scalar(0.9),
					RDTAllocationType:   &RDTAllocation{Name: "g", MB: "B"},
				},
			},
			wantTarget: TasksAllocations{
				"w1": {
					QuotaAllocationType: Scalar(0.9),
					RDTAllocationType:   &RDTAllocation{Name: "g", L3: "A", MB: "B"},
				},
			},
			wantChangeset: TasksAllocations{
				"w1": {QuotaAllocationType: Scalar(0.9)},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			target, changeset, err := CalculateTasksAllocationsChangeset(tt.current, tt.new)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(target, tt.wantTarget) {
				t.Errorf("target = %v, want %v", target, tt.wantTarget)
			}
			if !reflect.DeepEqual(changeset, tt.wantChangeset) {
				t.Errorf("changeset = %v, want %v", changeset, tt.wantChangeset)
			}
		})
	}
}

func TestCalculateTasksAllocationsChangesetIdempotent(t *testing.T) {
	t.Parallel()

	state := TasksAllocations{
		"w1": {
			QuotaAllocationType:  Scalar(0.8),
			SharesAllocationType: Scalar(0.2),
			RDTAllocationType:    &RDTAllocation{Name: "be", L3: "L3:0=ff", MB: "mb:0=50"},
		},
		"w2": {
			SharesAllocationType: Scalar(0.5),
		},
	}

	target, changeset, err := CalculateTasksAllocationsChangeset(state, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(target, state) {
		t.Errorf("target = %v, want unchanged state", target)
	}
	if len(changeset) != 0 {
		t.Errorf("reconciling a state against itself produced changeset %v", changeset)
	}
}

func TestCalculateTasksAllocationsChangesetWrapsTaskID(t *testing.T) {
	t.Parallel()

	var badID workload.TaskID = "w1"
	_, _, err := CalculateTasksAllocationsChangeset(
		TasksAllocations{badID: {}},
		TasksAllocations{badID: {QuotaAllocationType: bogusValue{}}},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	var unsupported *UnsupportedValueTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected wrapped UnsupportedValueTypeError, got %v", err)
	}
}
