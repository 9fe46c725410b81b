package normalize

import (
	"database/sql"
	"math"
	"testing"
)

func TestFloat64Variants(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want *float64
	}{
		{"nil", nil, nil},
		{"float64", 3.5, ptr(3.5)},
		{"bytes", []byte("12.75"), ptr(12.75)},
		{"string", "9", ptr(9.0)},
		{"empty string", "", nil},
		{"nan", math.NaN(), nil},
		{"null float64 invalid", sql.NullFloat64{Valid: false}, nil},
		{"null float64 valid", sql.NullFloat64{Valid: true, Float64: 1.25}, ptr(1.25)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Float64(c.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !floatPtrEqual(got, c.want) {
				t.Errorf("Float64(%v) = %v, want %v", c.in, deref(got), deref(c.want))
			}
		})
	}
}

func TestBoolStringFlags(t *testing.T) {
	cases := map[string]bool{"Y": true, "N": false, "ON": true, "OFF": false}
	for in, want := range cases {
		got, err := Bool(in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		if got == nil || *got != want {
			t.Errorf("Bool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBoolRejectsUnknownString(t *testing.T) {
	if _, err := Bool("maybe"); err == nil {
		t.Fatal("expected error for unrecognized bool string")
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0.5, false); got != 50 {
		t.Errorf("expected 50, got %v", got)
	}
	if got := Percent(92.3, true); got != 92.3 {
		t.Errorf("expected 92.3, got %v", got)
	}
}

func ptr(f float64) *float64 { return &f }

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
