package dialplan

import (
	"strings"

	"github.com/tappbx/tappbx/internal/database/models"
)

// RenderContext concatenates compiled records into a <context> element for
// the switch. Callers supply records already filtered, excluded and
// ordered by the store; records with no compiled artifact are skipped.
func RenderContext(name string, records []models.DialplanRecord) string {
	var b strings.Builder
	b.WriteString(`<context name="` + escapeAttr(name) + "\">\n")
	for _, rec := range records {
		if rec.XML == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(rec.XML, "\n"), "\n") {
			b.WriteByte('\t')
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString("</context>\n")
	return b.String()
}
