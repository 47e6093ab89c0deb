package resctrl

import (
	"testing"

	"github.com/intel/goresctrl/pkg/rdt"

	"colloc-agent/internal/allocation"
)

func TestQuotaMicroseconds(t *testing.T) {
	t.Parallel()

	config := allocation.DefaultAllocationConfiguration()

	tests := []struct {
		name  string
		value float64
		want  int
	}{
		{name: "full allocation means unthrottled", value: 1.0, want: -1},
		{name: "above one is unthrottled too", value: 2.5, want: -1},
		{name: "half a cpu", value: 0.5, want: 500000},
		{name: "small fraction", value: 0.01, want: 10000},
		{name: "zero", value: 0, want: 0},
		{name: "negative clamps to zero", value: -0.3, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := QuotaMicroseconds(config, tt.value); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSharesValue(t *testing.T) {
	t.Parallel()

	config := allocation.DefaultAllocationConfiguration()

	tests := []struct {
		name  string
		value float64
		want  int
	}{
		{name: "full allocation", value: 1.0, want: 10000},
		{name: "half", value: 0.5, want: 5000},
		{name: "below minimum clamps", value: 0.0, want: 2},
		{name: "tiny clamps to minimum", value: 0.0001, want: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := SharesValue(config, tt.value); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatConfigFromRow(t *testing.T) {
	t.Parallel()

	t.Run("empty row is nil", func(t *testing.T) {
		got, err := CatConfigFromRow("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})

	t.Run("masks gain hex prefix", func(t *testing.T) {
		got, err := CatConfigFromRow("L3:0=ff;1=0xf0")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 domains, got %v", got)
		}
		if got["0"].Unified != rdt.CacheProportion("0xff") {
			t.Errorf("domain 0 = %v, want 0xff", got["0"].Unified)
		}
		if got["1"].Unified != rdt.CacheProportion("0xf0") {
			t.Errorf("domain 1 = %v, want 0xf0", got["1"].Unified)
		}
	})

	t.Run("malformed row errors", func(t *testing.T) {
		if _, err := CatConfigFromRow("L3:0"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestMbaConfigFromRow(t *testing.T) {
	t.Parallel()

	t.Run("bare integers become percentages", func(t *testing.T) {
		got, err := MbaConfigFromRow("mb:0=20")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got["0"]) != 1 || got["0"][0] != rdt.MbProportion("20%") {
			t.Fatalf("domain 0 = %v, want 20%%", got["0"])
		}
	})

	t.Run("values with unit suffix pass through", func(t *testing.T) {
		got, err := MbaConfigFromRow("mb:0=2048MBps")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got["0"][0] != rdt.MbProportion("2048MBps") {
			t.Fatalf("domain 0 = %v, want 2048MBps", got["0"])
		}
	})

	t.Run("empty row is nil", func(t *testing.T) {
		got, err := MbaConfigFromRow("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
	})
}
