package dialplan

import "strings"

// macro letters expanded inside dial patterns.
var macroReplacer = strings.NewReplacer(
	"N", "[2-9]",
	"X", "[0-9]",
	"Z", "[1-9]",
	"n", "[2-9]",
	"x", "[0-9]",
	"z", "[1-9]",
)

// Str2Regex normalises a dialed-number pattern into an anchored regular
// expression with exactly one capture group. A string already anchored
// with ^ keeps its body verbatim, gaining only the missing trailing $ and,
// when the body has no group of its own, one capture group around it. A
// leading + becomes a literal \+ outside the capture group. A short prefix
// (fewer than 4 digits) is matched optionally before the captured body.
func Str2Regex(s, prefix string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "^") {
		body := strings.TrimSuffix(s[1:], "$")
		if !strings.Contains(body, "(") {
			body = "(" + body + ")"
		}
		return "^" + body + "$"
	}

	plus := strings.HasPrefix(s, "+")
	if plus {
		s = s[1:]
	}

	out := "^"
	if prefix != "" && len(prefix) < 4 {
		if plus {
			out += `\+?` + macroReplacer.Replace(prefix) + `?`
		} else {
			out += `(?:` + macroReplacer.Replace(prefix) + `)?`
		}
	} else if plus {
		out += `\+`
	}
	return out + "(" + macroReplacer.Replace(s) + ")$"
}
