package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundingHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in    string
		cents string
		milli string
	}{
		{in: "1.225", cents: "1.23", milli: "1.225"},
		{in: "-1.225", cents: "-1.23", milli: "-1.225"},
		{in: "0.0045", cents: "0", milli: "0.005"},
		{in: "-0.0045", cents: "0", milli: "-0.005"},
		{in: "0.125", cents: "0.13", milli: "0.125"},
		{in: "2.3449", cents: "2.34", milli: "2.345"},
	}
	for _, tc := range tests {
		in := MustParse(tc.in)
		if got := Cents(in); !got.Equal(MustParse(tc.cents)) {
			t.Fatalf("Cents(%s)=%s want %s", tc.in, got, tc.cents)
		}
		if got := Milli(in); !got.Equal(MustParse(tc.milli)) {
			t.Fatalf("Milli(%s)=%s want %s", tc.in, got, tc.milli)
		}
	}
}

func TestParse(t *testing.T) {
	valid := map[string]string{
		"1":         "1",
		"$0.25":     "0.25",
		" 2,000.10": "2000.10",
		"0.005":     "0.01",
	}
	for in, want := range valid {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", in, err)
		}
		if !got.Equal(MustParse(want)) {
			t.Fatalf("Parse(%q)=%s want %s", in, got, want)
		}
	}

	invalid := []string{"", "$", "abc", "-1", "0", "0.004"}
	for _, in := range invalid {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected Parse(%q) to fail", in)
		}
	}
}

func TestMicrosRoundTrip(t *testing.T) {
	values := []string{"0", "0.005", "1.225", "-12.34", "100", "0.00001"}
	for _, v := range values {
		d := MustParse(v)
		micros := ToMicros(d)
		if back := FromMicros(micros); !back.Equal(d) {
			t.Fatalf("%s -> %d -> %s", v, micros, back)
		}
	}
	if got := ToMicros(MustParse("1.23")); got != 1_230_000 {
		t.Fatalf("ToMicros(1.23)=%d", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(MustParse("1.2")); got != "$1.20" {
		t.Fatalf("got %q", got)
	}
	if got := Format(MustParse("-0.5")); got != "-$0.50" {
		t.Fatalf("got %q", got)
	}
	if got := FormatMilli(MustParse("0.005")); got != "$0.005" {
		t.Fatalf("got %q", got)
	}
}

func TestUniform(t *testing.T) {
	got := Cents(Uniform(0.5, New(1.5), New(0.50)))
	if !got.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("got %s", got)
	}
	if got := Uniform(0, New(1.5), New(0.50)); !got.Equal(New(0.5)) {
		t.Fatalf("lower bound got %s", got)
	}
}
