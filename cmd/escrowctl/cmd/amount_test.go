package cmd

import (
	"testing"
	"time"
)

func TestToMicroUnits(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1.5", want: 1500000},
		{in: "1.50", want: 1500000},
		{in: "0.000001", want: 1},
		{in: " 25 ", want: 25000000},
		{in: "18446744073709.551615", want: 18446744073709551615},
		{in: "0.0000001", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "18446744073709.551616", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := toMicroUnits(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestFromMicroUnits(t *testing.T) {
	for units, want := range map[uint64]string{
		1500000: "1.50",
		1:       "0.000001",
		1234567: "1.234567",
		0:       "0.00",
	} {
		if got := fromMicroUnits(units); got != want {
			t.Errorf("fromMicroUnits(%d) = %q, want %q", units, got, want)
		}
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := parseExpiry("720h", now)
	if err != nil || got != now.Add(720*time.Hour).Unix() {
		t.Fatalf("duration: got %d, %v", got, err)
	}
	got, err = parseExpiry("2026-02-01T00:00:00Z", now)
	if err != nil || got != 1769904000 {
		t.Fatalf("rfc3339: got %d, %v", got, err)
	}
	got, err = parseExpiry("1769904000", now)
	if err != nil || got != 1769904000 {
		t.Fatalf("unix: got %d, %v", got, err)
	}
	for _, bad := range []string{"", "-5h", "tomorrow", "1.5"} {
		if _, err := parseExpiry(bad, now); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
