package dialplan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tappbx/tappbx/internal/database/models"
)

func TestDecompile(t *testing.T) {
	doc := `<extension name="timed" continue="true" uuid="dp-1">
	<condition wday="2-6" hour="9-17" break="never">
		<action application="transfer" data="201 XML t1.example"/>
	</condition>
	<condition field="destination_number" expression="^510$">
		<action application="answer"/>
		<action application="set" data="x=1" inline="true"/>
		<anti-action application="hangup"/>
	</condition>
</extension>
`
	rows, err := Decompile(doc, 10)
	if err != nil {
		t.Fatalf("Decompile() error: %v", err)
	}

	want := []models.DialplanDetail{
		{Group: 0, Tag: "condition", Type: "wday", Data: "2-6", Break: "never", Sequence: 10},
		{Group: 0, Tag: "condition", Type: "hour", Data: "9-17", Break: "never", Sequence: 20},
		{Group: 0, Tag: "action", Type: "transfer", Data: "201 XML t1.example", Sequence: 30},
		{Group: 1, Tag: "condition", Type: "destination_number", Data: "^510$", Sequence: 40},
		{Group: 1, Tag: "action", Type: "answer", Sequence: 50},
		{Group: 1, Tag: "action", Type: "set", Data: "x=1", Inline: true, Sequence: 60},
		{Group: 1, Tag: "anti-action", Type: "hangup", Sequence: 70},
	}
	if len(rows) != len(want) {
		t.Fatalf("Decompile() returned %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestDecompileBulkStep(t *testing.T) {
	doc := `<extension name="x" continue="false" uuid="u">
	<condition field="destination_number" expression="^1$">
		<action application="answer"/>
	</condition>
</extension>
`
	rows, err := Decompile(doc, 5)
	if err != nil {
		t.Fatalf("Decompile() error: %v", err)
	}
	if rows[0].Sequence != 5 || rows[1].Sequence != 10 {
		t.Errorf("want sequences 5, 10, got %d, %d", rows[0].Sequence, rows[1].Sequence)
	}
}

func TestDecompileStripsComments(t *testing.T) {
	doc := `<extension name="x" continue="false" uuid="u">
	<!-- disabled block -->
	<condition field="destination_number" expression="^1$">
		<action application="answer"/>
	</condition>
</extension>
`
	rows, err := Decompile(doc, 10)
	if err != nil {
		t.Fatalf("Decompile() error: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("want 2 rows, got %+v", rows)
	}
}

func TestDecompileToleratesRawAngleBrackets(t *testing.T) {
	doc := `<extension name="x" continue="false" uuid="u">
	<condition field="destination_number" expression="^(1<2>3)$">
		<action application="answer"/>
	</condition>
</extension>
`
	rows, err := Decompile(doc, 10)
	if err != nil {
		t.Fatalf("Decompile() error: %v", err)
	}
	if rows[0].Data != "^(1<2>3)$" {
		t.Errorf("expression = %q, want raw brackets preserved", rows[0].Data)
	}
}

func TestDecompileInvalidDocument(t *testing.T) {
	if _, err := Decompile("not a dialplan", 10); !errors.Is(err, ErrInvalidXML) {
		t.Fatalf("want ErrInvalidXML, got %v", err)
	}
}

func TestRoundTripIdempotence(t *testing.T) {
	a := "gw-a"
	gws := &stubGateways{gws: map[string]*models.Gateway{a: {ID: a, Type: "bridge"}}}
	c := newTestCompiler(nil, localExtensions(), gws)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *models.DialplanRecord
		xml  func() string
	}{
		{
			name: "inbound",
			rec:  &models.DialplanRecord{ID: "dp-1", Name: "main-number", Continue: true, Context: "t1.example"},
			xml: func() string {
				return c.CompileInbound(&models.InboundRoute{
					ID: "ir-1", DomainID: "t1", DialplanID: "dp-1", Name: "main-number",
					Number: "+441632960001", Context: "t1.example",
					App: "transfer", Data: "201 XML t1.example",
				}, testTenant)
			},
		},
		{
			name: "public inbound with recording",
			rec:  &models.DialplanRecord{ID: "dp-2", Name: "recorded", Continue: true, Context: "public"},
			xml: func() string {
				return c.CompileInbound(&models.InboundRoute{
					ID: "ir-2", DomainID: "t1", DialplanID: "dp-2", Name: "recorded",
					Number: "+441632960002", Context: "public", Record: true,
					App: "transfer", Data: "201 XML t1.example",
				}, testTenant)
			},
		},
		{
			name: "outbound",
			rec:  &models.DialplanRecord{ID: "dp-3", Name: "11-digit", Continue: false, Context: "t1.example"},
			xml: func() string {
				got, err := c.CompileOutbound(ctx, &models.OutboundRoute{
					ID: "or-1", DomainID: "t1", DialplanID: "dp-3", Name: "11-digit",
					Number: `^(\d{11})$`, Gateway1ID: &a,
				}, testTenant)
				if err != nil {
					t.Fatalf("CompileOutbound() error: %v", err)
				}
				return got
			},
		},
		{
			name: "time condition",
			rec:  &models.DialplanRecord{ID: "dp-4", Name: "office-hours", Continue: true, Context: "t1.example"},
			xml: func() string {
				return c.CompileTimeCondition(ctx, &models.TimeCondition{
					ID: "tc-1", DomainID: "t1", DialplanID: "dp-4", Name: "office-hours",
					Extension:  "500",
					Settings:   `[{"matches":{"wday":"2-6","hour":"9-17"},"app":"transfer","data":"201 XML t1.example"}]`,
					DefaultApp: "transfer", DefaultData: "401 XML t1.example",
				}, testTenant)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := tt.xml()
			rows, err := Decompile(first, 10)
			if err != nil {
				t.Fatalf("Decompile() error: %v", err)
			}
			second := c.CompileGeneric(tt.rec, rows, testTenant)
			if second != first {
				t.Errorf("recompilation differs:\n%s\nvs\n%s", second, first)
			}
		})
	}
}

func TestRenderContext(t *testing.T) {
	records := []models.DialplanRecord{
		{ID: "dp-1", XML: "<extension name=\"a\" continue=\"false\" uuid=\"dp-1\">\n\t<condition field=\"destination_number\" expression=\"^1$\"/>\n</extension>\n"},
		{ID: "dp-2", XML: ""},
		{ID: "dp-3", XML: "<extension name=\"b\" continue=\"false\" uuid=\"dp-3\">\n\t<condition field=\"destination_number\" expression=\"^2$\"/>\n</extension>\n"},
	}

	want := `<context name="t1.example">
	<extension name="a" continue="false" uuid="dp-1">
		<condition field="destination_number" expression="^1$"/>
	</extension>
	<extension name="b" continue="false" uuid="dp-3">
		<condition field="destination_number" expression="^2$"/>
	</extension>
</context>
`
	if got := RenderContext("t1.example", records); got != want {
		t.Errorf("RenderContext() =\n%s\nwant\n%s", got, want)
	}
	if strings.Contains(RenderContext("t1.example", records), "dp-2") {
		t.Error("records without compiled artifacts must be skipped")
	}
}
