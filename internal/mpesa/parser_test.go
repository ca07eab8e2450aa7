package mpesa

import (
	"testing"
)

func TestNormalizeMSISDNVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"254700000000", "254700000000"},
		{"+254700000000", "254700000000"},
		{"0700000000", "254700000000"},
		{"700000000", "254700000000"},
		{" 0712 345 678 ", "254712345678"},
		{"0712-345-678", "254712345678"},
		{"0110123456", "254110123456"},
	}

	for _, c := range cases {
		got, err := NormalizeMSISDN(c.raw)
		if err != nil {
			t.Fatalf("expected %q to normalize, got err: %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("wrong msisdn for %q. want %s got %s", c.raw, c.want, got)
		}
	}
}

func TestNormalizeMSISDNRejects(t *testing.T) {
	for _, raw := range []string{"", "12345", "255700000000", "0800000000", "07000000000", "phone"} {
		if _, err := NormalizeMSISDN(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestParseReceipt(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"QAA1B2C3", "QAA1B2C3", false},
		{" tih5crr635 ", "TIH5CRR635", false},
		{"", "", false},
		{"QA-1", "", true},
	}
	for _, c := range cases {
		got, err := ParseReceipt(c.raw)
		if (err != nil) != c.wantErr {
			t.Fatalf("ParseReceipt(%q) err = %v, wantErr %v", c.raw, err, c.wantErr)
		}
		if got != c.want {
			t.Fatalf("ParseReceipt(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
