package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "integer", in: "1", want: 100},
		{name: "trailing zero", in: "1.0", want: 100},
		{name: "dot separator", in: "1.23", want: 123},
		{name: "comma separator", in: "1,23", want: 123},
		{name: "single cent", in: "0.01", want: 1},
		{name: "bare fraction", in: ".5", want: 50},
		{name: "trailing dot", in: "12.", want: 1200},
		{name: "third decimal rounds down", in: "1.234", want: 123},
		{name: "third decimal rounds up", in: "1.005", want: 101},
		{name: "surrounding spaces", in: " 2.50 ", want: 250},
		{name: "negative", in: "-1", wantErr: true},
		{name: "explicit plus", in: "+1", wantErr: true},
		{name: "zero", in: "0", wantErr: true},
		{name: "rounds to zero", in: "0.004", wantErr: true},
		{name: "not a number", in: "abc", wantErr: true},
		{name: "two separators", in: "1.2.3", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "overflow", in: "92233720368547759", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimalToCents(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimalToCents(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyEuros(t *testing.T) {
	if got := (Money{Cents: 1234}).Euros(); got != 12.34 {
		t.Errorf("Euros() = %v, want 12.34", got)
	}
	if got := (Money{}).Euros(); got != 0 {
		t.Errorf("Euros() = %v, want 0", got)
	}
}
