package htmlutil

import (
	"strings"
	"testing"
)

func TestCleanupFragment(t *testing.T) {
	got := CleanupFragment("<ul><li>a<li>b</ul>")
	if want := "<ul><li>a</li><li>b</li></ul>"; got != want {
		t.Errorf("CleanupFragment() = %q, want %q", got, want)
	}

	// A line break at the end of a list item is dropped.
	got = CleanupFragment("<ul><li>a<br></li></ul>")
	if want := "<ul><li>a</li></ul>"; got != want {
		t.Errorf("CleanupFragment() = %q, want %q", got, want)
	}

	got = CleanupFragment("plain text")
	if want := "plain text"; got != want {
		t.Errorf("CleanupFragment() = %q, want %q", got, want)
	}
}

func TestToPlaintext(t *testing.T) {
	fragment := `<p>first</p><p>second <a href="https://example.com">link</a></p>`

	got := ToPlaintext(fragment, true)
	if want := "first\nsecond link [https://example.com]"; got != want {
		t.Errorf("ToPlaintext(keep) = %q, want %q", got, want)
	}

	got = ToPlaintext(fragment, false)
	if want := "first\nsecond link"; got != want {
		t.Errorf("ToPlaintext(drop) = %q, want %q", got, want)
	}

	// An anchor whose text already is the target is not repeated.
	got = ToPlaintext(`<a href="https://example.com">https://example.com</a>`, true)
	if want := "https://example.com"; got != want {
		t.Errorf("ToPlaintext(self link) = %q, want %q", got, want)
	}

	// Images degrade to their alternative text.
	got = ToPlaintext(`before <img src="https://example.com/x.png" alt="a picture"> after`, false)
	if want := "before a picture after"; got != want {
		t.Errorf("ToPlaintext(img) = %q, want %q", got, want)
	}
}

func TestToPlaintext_LineBreaks(t *testing.T) {
	got := ToPlaintext("one<br />two<br>three", false)
	if want := "one\ntwo\nthree"; got != want {
		t.Errorf("ToPlaintext() = %q, want %q", got, want)
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags(`<p>text <a href="x">link</a></p>`)
	if want := "text link"; got != want {
		t.Errorf("StripTags() = %q, want %q", got, want)
	}
}

func TestSanitizeCSS(t *testing.T) {
	if got := SanitizeCSS("color: red; font-weight: bold"); got != "color: red; font-weight: bold" {
		t.Errorf("SanitizeCSS() = %q, want declarations kept", got)
	}

	// The last declaration keeps its value whether or not the input is
	// ;-terminated.
	if got := SanitizeCSS("color: red"); got != "color: red" {
		t.Errorf("SanitizeCSS(single) = %q, want %q", got, "color: red")
	}
	if got := SanitizeCSS("color: red;"); got != "color: red" {
		t.Errorf("SanitizeCSS(terminated) = %q, want %q", got, "color: red")
	}

	// Active content is dropped entirely.
	if got := SanitizeCSS("background: url(https://evil.example/x)"); got != "" {
		t.Errorf("SanitizeCSS(url) = %q, want empty", got)
	}
	if got := SanitizeCSS("width: expression(alert(1))"); got != "" {
		t.Errorf("SanitizeCSS(expression) = %q, want empty", got)
	}

	// Quotes and angle brackets never survive.
	got := SanitizeCSS(`fancy"class<name`)
	if strings.ContainsAny(got, `<>"'\`) {
		t.Errorf("SanitizeCSS() = %q, dangerous characters left", got)
	}
}

func TestEscapeXML(t *testing.T) {
	got := EscapeXML(`a & <b> "c" 'd'`)
	if want := "a &amp; &lt;b&gt; &quot;c&quot; &#039;d&#039;"; got != want {
		t.Errorf("EscapeXML() = %q, want %q", got, want)
	}
}
