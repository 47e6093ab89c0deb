package allocation

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSchemataRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "mb row with two domains",
			line: "mb:1=20;2=50",
			want: map[string]string{"1": "20", "2": "50"},
		},
		{
			name: "l3 row with masks",
			line: "L3:0=ff;1=f0",
			want: map[string]string{"0": "ff", "1": "f0"},
		},
		{
			name: "empty line decodes to empty map",
			line: "",
			want: map[string]string{},
		},
		{
			name: "single domain without resource prefix keeps working",
			line: "0=20",
			want: map[string]string{"0": "20"},
		},
		{
			name:    "prefix only",
			line:    "mb:",
			wantErr: true,
		},
		{
			name:    "missing value separator",
			line:    "mb:1=20;2",
			wantErr: true,
		},
		{
			name:    "empty domain id",
			line:    "mb:=20",
			wantErr: true,
		},
		{
			name:    "empty value",
			line:    "mb:1=",
			wantErr: true,
		},
		{
			name:    "conflicting domain ids",
			line:    "mb:1=20;1=30",
			wantErr: true,
		},
		{
			name:    "trailing separator leaves empty domain",
			line:    "mb:1=20;",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemataRow(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected ParseError, got %T: %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountEnabledBits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "f202", in: "f202", want: 7},
		{name: "empty string counts zero", in: "", want: 0},
		{name: "full byte", in: "ff", want: 8},
		{name: "accepts 0x prefix", in: "0xff", want: 8},
		{name: "zero", in: "0", want: 0},
		{name: "invalid hex", in: "zz", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountEnabledBits(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}
