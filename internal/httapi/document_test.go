package httapi

import "testing"

func TestDocumentRender(t *testing.T) {
	doc := NewDocument().
		Param("url", "http://127.0.0.1:8080/app/httapi/conference").
		Execute("answer", "").
		Playback("welcome.wav").
		Hangup()

	want := `<document type="freeswitch/xml-httapi">
	<params>
		<param name="url" value="http://127.0.0.1:8080/app/httapi/conference"/>
	</params>
	<work>
		<execute application="answer"/>
		<playback file="welcome.wav"/>
		<hangup/>
	</work>
</document>
`
	if got := doc.Render(); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestHangupDocument(t *testing.T) {
	want := `<document type="freeswitch/xml-httapi">
	<params/>
	<work>
		<hangup/>
	</work>
</document>
`
	if got := HangupDocument(); got != want {
		t.Errorf("HangupDocument() =\n%s\nwant\n%s", got, want)
	}
}
