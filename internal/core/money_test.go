package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.25", 1.25, true},
		{"1,25", 1.25, true},
		{"0", 0, true},
		{".5", 0.5, true},
		{" 2.50 ", 2.5, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{".", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(" 42 "); err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (err=%v)", id, err)
	}
	for _, in := range []string{"", "x", "0", "-3", "1.5"} {
		if _, err := ParseID(in); err == nil {
			t.Fatalf("%q expected error", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(3); got != "3.00" {
		t.Fatalf("FormatAmount(3) = %q", got)
	}
}

func TestEncodeAmountRoundTrips(t *testing.T) {
	for _, v := range []float64{0, 3, 0.125, 12.345, 1e-7, 123456789.0625} {
		got, err := ParseAmount(EncodeAmount(v))
		if err != nil {
			t.Fatalf("ParseAmount(EncodeAmount(%v)) error = %v", v, err)
		}
		if got != v {
			t.Errorf("EncodeAmount(%v) = %q parsed to %v", v, EncodeAmount(v), got)
		}
	}
}
