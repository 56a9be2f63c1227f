package helpers

import "testing"

func TestSanitizeHTMLStrict_RemovesTagsAndScripts(t *testing.T) {
	input := `<p>Market grew <strong>12%</strong><script>alert('x')</script></p>`
	got := SanitizeHTMLStrict(input)
	want := "Market grew 12%"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestProseToHTML_ParagraphsAndLists(t *testing.T) {
	input := "Overview line\n\n- first **key** point\n- second point\n\nClosing"
	got := ProseToHTML(input)
	want := `<p>Overview line</p><ul><li>first <strong>key</strong> point</li><li>second point</li></ul><p>Closing</p>`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestProseToHTML_EscapesMarkup(t *testing.T) {
	got := ProseToHTML(`<img src=x onerror=alert(1)> risk`)
	if got != `<p>&lt;img src=x onerror=alert(1)&gt; risk</p>` {
		t.Fatalf("unexpected markup %q", got)
	}
}

func TestProseToHTML_Empty(t *testing.T) {
	if got := ProseToHTML("   "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
