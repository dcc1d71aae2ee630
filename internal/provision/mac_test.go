package provision

import (
	"errors"
	"testing"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare hex", "001565a6699b", "00:15:65:A6:69:9B"},
		{"already canonical", "00:15:65:A6:69:9B", "00:15:65:A6:69:9B"},
		{"dashes", "00-15-65-a6-69-9b", "00:15:65:A6:69:9B"},
		{"dots", "0015.65a6.699b", "00:15:65:A6:69:9B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if err != nil {
				t.Fatalf("NormalizeMAC(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}

			again, err := NormalizeMAC(got)
			if err != nil || again != got {
				t.Errorf("NormalizeMAC not idempotent: %q -> %q, %v", got, again, err)
			}
		})
	}
}

func TestNormalizeMACRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "0015", "zz1565a6699b", "001565a6699b00"} {
		if _, err := NormalizeMAC(in); !errors.Is(err, ErrBadMAC) {
			t.Errorf("NormalizeMAC(%q) error = %v, want ErrBadMAC", in, err)
		}
	}
}

func TestMACFromUserAgent(t *testing.T) {
	got, err := MACFromUserAgent("Yealink SIP-T46G 28.83.0.120 00:15:65:a6:69:9b")
	if err != nil {
		t.Fatalf("MACFromUserAgent() error = %v", err)
	}
	if got != "00:15:65:A6:69:9B" {
		t.Errorf("MACFromUserAgent() = %q", got)
	}

	if _, err := MACFromUserAgent("Mozilla/5.0"); !errors.Is(err, ErrBadMAC) {
		t.Errorf("error = %v, want ErrBadMAC", err)
	}
}
