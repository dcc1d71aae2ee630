package dialplan

import (
	"strings"
	"testing"
)

func TestStr2Regex(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		prefix string
		want   string
	}{
		{"plain digits", "441632960001", "", "^(441632960001)$"},
		{"leading plus", "+441632960001", "", `^\+(441632960001)$`},
		{"macro letters", "NXXXXXX", "", "^([2-9][0-9][0-9][0-9][0-9][0-9][0-9])$"},
		{"lowercase macros", "nxz", "", "^([2-9][0-9][1-9])$"},
		{"already anchored passes through", `^(\d{11})$`, "", `^(\d{11})$`},
		{"anchored without tail gains one", "^123", "", "^(123)$"},
		{"anchored without group gains one", "^123$", "", "^(123)$"},
		{"short prefix no plus", "1632960001", "44", "^(?:44)?(1632960001)$"},
		{"short prefix with plus", "+1632960001", "44", `^\+?44?(1632960001)$`},
		{"macro prefix", "200X", "9", "^(?:9)?(200[0-9])$"},
		{"long prefix ignored", "960001", "0044", "^(960001)$"},
		{"surrounding space trimmed", " 201 ", "", "^(201)$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Str2Regex(tt.in, tt.prefix); got != tt.want {
				t.Errorf("Str2Regex(%q, %q) = %q, want %q", tt.in, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestStr2RegexAlwaysAnchoredWithOneGroup(t *testing.T) {
	inputs := []string{"201", "+441632960001", "NXXXXXX", "0", "911", "Z00", "^123", "^7700$"}
	for _, in := range inputs {
		got := Str2Regex(in, "")
		if !strings.HasPrefix(got, "^") || !strings.HasSuffix(got, "$") {
			t.Errorf("Str2Regex(%q) = %q, not anchored", in, got)
		}
		if strings.Count(got, "(") != 1 || strings.Count(got, ")") != 1 {
			t.Errorf("Str2Regex(%q) = %q, want exactly one capture group", in, got)
		}
	}
}
