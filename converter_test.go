package bbcodify

import (
	"errors"
	"strings"
	"testing"
)

var errProbeDisabled = errors.New("probing disabled in tests")

type stubImageProber struct {
	info ImageInfo
	err  error
}

func (s stubImageProber) Probe(string) (ImageInfo, error) { return s.info, s.err }

type stubSiteProber struct {
	info SiteInfo
	err  error
}

func (s stubSiteProber) Probe(string, bool) (SiteInfo, error) { return s.info, s.err }

type stubDirectory struct {
	contact Contact
	err     error
}

func (s stubDirectory) Resolve(string, Contact) (Contact, error) { return s.contact, s.err }

type stubSmilies struct{}

func (stubSmilies) Replace(text string) string {
	return strings.ReplaceAll(text, ":-)",
		`<img class="smiley" src="https://hub.example/images/smile.gif" alt=":-)">`)
}

type prefixProxy struct{ prefix string }

func (p prefixProxy) Proxy(url, _ string) string { return p.prefix + url }

// newTestConverter builds a Converter whose remote probes always fail,
// so no test ever touches the network.
func newTestConverter(opts ...Option) *Converter {
	base := []Option{
		WithImageProber(stubImageProber{err: errProbeDisabled}),
		WithSiteProber(stubSiteProber{err: errProbeDisabled}),
	}
	return New(append(base, opts...)...)
}

func TestConvert_AutoLinking(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantHTML bool
	}{
		{"unicode-path", "https://de.wikipedia.org/wiki/Juha_Sipilä", true},
		{"parens-in-path-word", "https://de.wikipedia.org/wiki/Dnepr_(Motorradmarke)", true},
		{"unicode-domain", "https://social.wäckerlin.ch/profile", true},
		{"mastodon-profile", "https://mastodon.social/@morevnaproject", true},
		{"mastodon-status", "https://social.nasqueron.org/@liw/100798039015010628", true},
		{"balanced-parens", "https://en.wikipedia.org/wiki/Solid_(web_decentralization_project)", true},
		{"no-protocol", "example.com/path", false},
		{"wrong-protocol", "ftp://example.com", false},
		{"domain-without-tld", "http://example", false},
		{"domain-without-tld-with-path", "http://example/path", false},
		{"linefeed-after-scheme", "http://\nexample.com", false},
		{"linefeed-in-domain", "http://example\n.com", false},
		{"linefeed-before-tld", "http://example.\ncom", false},
		{"linefeed-after-url", "http://example.com\ntest", false},
		{"markup-after-url", "http://example.com<ul>", false},
		{"nbsp-after-url", "http://example.com ", false},
		{"brackets-in-query", "https://example.com/search?q=square+brackets+[url]", true},
		{"brackets-in-path", "http://example.com/path/to/file[3].html", true},
	}

	conv := newTestConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.Convert(tt.data, true, FormatDisplay, false)
			want := `<a href="` + tt.data + `" target="_blank">` + tt.data + `</a>`
			if tt.wantHTML && got != want {
				t.Errorf("Convert(%q) = %q, want %q", tt.data, got, want)
			}
			if !tt.wantHTML && got == want {
				t.Errorf("Convert(%q) = %q, want anything but a full link", tt.data, got)
			}
		})
	}
}

func TestConvert_ListsWithLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"condensed-space",
			"[ol][*] http://example.com/[/ol]",
			`<ul class="listdecimal" style="list-style-type: decimal;"><li> <a href="http://example.com/" target="_blank">http://example.com/</a></li></ul>`,
		},
		{
			"condensed-nospace",
			"[ol][*]http://example.com/[/ol]",
			`<ul class="listdecimal" style="list-style-type: decimal;"><li><a href="http://example.com/" target="_blank">http://example.com/</a></li></ul>`,
		},
		{
			"indented-space",
			"[ul]\n[*] http://example.com/\n[/ul]",
			`<ul class="listbullet" style="list-style-type: circle;"><li> <a href="http://example.com/" target="_blank">http://example.com/</a></li></ul>`,
		},
		{
			"indented-nospace",
			"[ul]\n[*]http://example.com/\n[/ul]",
			`<ul class="listbullet" style="list-style-type: circle;"><li><a href="http://example.com/" target="_blank">http://example.com/</a></li></ul>`,
		},
	}

	conv := newTestConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.Convert(tt.text, false, FormatDisplay, false)
			if got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestConvert_InlineTags(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bold", "[b]bold[/b]", "<strong>bold</strong>"},
		{"italic", "[i]italic[/i]", "<em>italic</em>"},
		{"underline", "[u]underline[/u]", "<u>underline</u>"},
		{"strike", "[s]strike[/s]", "<s>strike</s>"},
		{"overline", "[o]overline[/o]", `<span class="overline">overline</span>`},
		{"color", "[color=red]red text[/color]", `<span style="color: red;">red text</span>`},
		{"size", "[size=16]sized[/size]", `<span style="font-size: 16px; line-height: initial;">sized</span>`},
		{"size-keyword", "[size=small]sized[/size]", `<span style="font-size: small; line-height: initial;">sized</span>`},
		{"center", "[center]middle[/center]", `<div style="text-align:center;">middle</div>`},
		{"heading", "[h3]Section[/h3]", "<h3>Section</h3>"},
		{"font", "[font=Monospace]mono[/font]", `<span style="font-family: Monospace;">mono</span>`},
		{"ruler", "[hr]", "<hr/>"},
	}

	conv := newTestConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.Convert(tt.text, false, FormatDisplay, false)
			if got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestConvert_BlockStructure(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"quote",
			"[quote]quoted[/quote]",
			"<blockquote>quoted</blockquote>",
		},
		{
			"quote-author",
			"[quote=Anna]quoted[/quote]",
			`<p><strong class="author">Anna wrote:</strong></p><blockquote>quoted</blockquote>`,
		},
		{
			"quote-nested",
			"[quote]a[quote]b[/quote]c[/quote]",
			"<blockquote>a<blockquote>b</blockquote>c</blockquote>",
		},
		{
			"spoiler",
			"[spoiler]hidden[/spoiler]",
			`<blockquote class="spoiler">hidden</blockquote>`,
		},
		{
			"spoiler-author",
			"[spoiler=Anna]hidden[/spoiler]",
			`<br/><strong class="spoiler">Anna wrote:</strong><blockquote class="spoiler">hidden</blockquote>`,
		},
		{
			"table",
			"[table][tr][td]cell[/td][/tr][/table]",
			"<table><tbody><tr><td>cell</td></tr></tbody></table>",
		},
	}

	conv := newTestConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.Convert(tt.text, false, FormatDisplay, false)
			if got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestConvert_CodeBlocks(t *testing.T) {
	conv := newTestConverter()

	got := conv.Convert("[code]$var = true;[/code]", false, FormatDisplay, false)
	if want := "<code>$var = true;</code>"; got != want {
		t.Errorf("single line code = %q, want %q", got, want)
	}

	got = conv.Convert("[code=php]\nfunction foo() {\n\treturn 1;\n}\n[/code]", false, FormatDisplay, false)
	want := "<pre><code class=\"language-php\">function foo() {\n\treturn 1;\n}</code></pre>"
	if got != want {
		t.Errorf("multi line code = %q, want %q", got, want)
	}

	// Tags inside a code block never render.
	got = conv.Convert("[code][b]kept verbatim[/b][/code]", false, FormatDisplay, false)
	if !strings.Contains(got, "[b]kept verbatim[/b]") {
		t.Errorf("code content was processed: %q", got)
	}
}

func TestConvert_Noparse(t *testing.T) {
	conv := newTestConverter()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"noparse", "[noparse][b]bold[/b][/noparse]", "[b]bold[/b]"},
		{"nobb", "[nobb][i]italic[/i][/nobb]", "[i]italic[/i]"},
		{"pre", "[pre][u]underline[/u][/pre]", "[u]underline[/u]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conv.Convert(tt.text, false, FormatDisplay, false)
			if got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestConvert_Links(t *testing.T) {
	conv := newTestConverter()

	got := conv.Convert("[url]https://example.com[/url]", false, FormatDisplay, false)
	if want := `<a href="https://example.com" target="_blank">https://example.com</a>`; got != want {
		t.Errorf("bare url = %q, want %q", got, want)
	}

	got = conv.Convert("[url=https://example.com]Example[/url]", false, FormatDisplay, false)
	if want := `<a href="https://example.com" target="_blank">Example</a>`; got != want {
		t.Errorf("named url = %q, want %q", got, want)
	}

	local := newTestConverter(WithBaseURL("https://hub.example"))
	got = local.Convert("[url=https://hub.example/profile/anna]Anna[/url]", false, FormatDisplay, false)
	if want := `<a href="https://hub.example/profile/anna">Anna</a>`; got != want {
		t.Errorf("local url = %q, want %q", got, want)
	}

	got = local.Convert("acct:anna@example.com", true, FormatDisplay, false)
	want := `<a href="https://hub.example/acctlink?addr=anna@example.com" target="extlink">acct:anna@example.com</a>`
	if got != want {
		t.Errorf("acct link = %q, want %q", got, want)
	}
}

func TestConvert_Bookmarks(t *testing.T) {
	conv := newTestConverter()
	text := "#^[url=https://example.com]Example Site[/url]"

	got := conv.Convert(text, false, FormatDisplay, false)
	if want := `<a href="https://example.com" target="_blank">Example Site</a>`; got != want {
		t.Errorf("bookmark display = %q, want %q", got, want)
	}

	got = conv.Convert(text, false, FormatReducedLinks, false)
	if want := `<a href="https://example.com" target="_blank">https://example.com</a>`; got != want {
		t.Errorf("bookmark reduced = %q, want %q", got, want)
	}
}

func TestConvert_LinkProtocolSanitizer(t *testing.T) {
	conv := newTestConverter()

	got := conv.Convert("[url=javascript:alert(1)]click[/url]", false, FormatDisplay, false)
	if !strings.Contains(got, `href="javascript:void(0)"`) {
		t.Errorf("dangerous href survived: %q", got)
	}
	if !strings.Contains(got, `class="invalid-href"`) {
		t.Errorf("dangerous href not flagged: %q", got)
	}
	if !strings.Contains(got, `data-original-href="javascript:alert(1)"`) {
		t.Errorf("original href not preserved: %q", got)
	}

	// The mailto scheme is not on the default allow-list either.
	got = conv.Convert("[mail]user@example.com[/mail]", false, FormatDisplay, false)
	if !strings.Contains(got, `data-original-href="mailto:user@example.com"`) {
		t.Errorf("mail link = %q, want neutralized mailto href", got)
	}

	allowed := newTestConverter(WithAllowedLinkProtocols([]string{"gopher://"}))
	got = allowed.Convert("[url=gopher://example.com/doc]doc[/url]", false, FormatDisplay, false)
	if !strings.Contains(got, `href="gopher://example.com/doc"`) || strings.Contains(got, "invalid-href") {
		t.Errorf("allowed protocol was neutralized: %q", got)
	}
}

func TestConvert_SrcProtocolSanitizer(t *testing.T) {
	conv := newTestConverter()
	got := conv.Convert("[img]ftp://example.com/a.png[/img]", false, FormatDisplay, false)
	if !strings.Contains(got, `src=""`) {
		t.Errorf("dangerous src survived: %q", got)
	}
	if !strings.Contains(got, `data-original-src="ftp://example.com/a.png"`) {
		t.Errorf("original src not preserved: %q", got)
	}
	if !strings.Contains(got, `class="invalid-src"`) {
		t.Errorf("dangerous src not flagged: %q", got)
	}
}

func TestConvert_Images(t *testing.T) {
	conv := newTestConverter()

	got := conv.Convert("[img]https://example.com/pic.jpg[/img]", false, FormatDisplay, false)
	if want := `<img src="https://example.com/pic.jpg" alt="Image/photo"/>`; got != want {
		t.Errorf("bare img = %q, want %q", got, want)
	}

	got = conv.Convert("[img=64x48]https://example.com/pic.jpg[/img]", false, FormatDisplay, false)
	if want := `<img src="https://example.com/pic.jpg" style="width: 64px;"/>`; got != want {
		t.Errorf("sized img = %q, want %q", got, want)
	}

	got = conv.Convert("[img=https://example.com/pic.jpg]A picture[/img]", false, FormatDisplay, false)
	if want := `<img src="https://example.com/pic.jpg" alt="A picture"/>`; got != want {
		t.Errorf("img with alt = %q, want %q", got, want)
	}
}

func TestConvert_ImageProxy(t *testing.T) {
	conv := newTestConverter(WithURLProxy(prefixProxy{prefix: "https://proxy.local/?url="}))

	got := conv.Convert("[img]https://remote.example/pic.jpg[/img]", false, FormatDisplay, false)
	if !strings.Contains(got, `src="https://proxy.local/?url=https://remote.example/pic.jpg"`) {
		t.Errorf("display img not proxied: %q", got)
	}

	// Federated output keeps the origin URL.
	got = conv.Convert("[img]https://remote.example/pic.jpg[/img]", false, FormatDiaspora, false)
	if strings.Contains(got, "proxy.local") {
		t.Errorf("federated img was proxied: %q", got)
	}
}

func TestConvert_EmbeddedDataImage(t *testing.T) {
	conv := newTestConverter(WithURLProxy(prefixProxy{prefix: "https://proxy.local/?url="}))

	payload := "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg=="
	got := conv.Convert("[img]"+payload+"[/img]", false, FormatDisplay, false)
	if !strings.Contains(got, `src="`+payload+`"`) {
		t.Errorf("data image lost its payload: %q", got)
	}
	if strings.Contains(got, "proxy.local") {
		t.Errorf("data image went through the proxy: %q", got)
	}
}

func TestConvert_MediaEmbeds(t *testing.T) {
	conv := newTestConverter()

	got := conv.Convert("[youtube]https://www.youtube.com/watch?v=x-DgL49CFlM[/youtube]", true, FormatDisplay, false)
	want := `<iframe width="425" height="350" src="https://www.youtube.com/embed/x-DgL49CFlM" frameborder="0" ></iframe>`
	if got != want {
		t.Errorf("youtube embed = %q, want %q", got, want)
	}

	got = conv.Convert("[vimeo]https://vimeo.com/123456[/vimeo]", true, FormatDisplay, false)
	want = `<iframe width="425" height="350" src="https://player.vimeo.com/video/123456" frameborder="0" ></iframe>`
	if got != want {
		t.Errorf("vimeo embed = %q, want %q", got, want)
	}

	got = conv.Convert("[video]https://example.com/clip.mp4[/video]", true, FormatDisplay, false)
	if !strings.Contains(got, `<video src="https://example.com/clip.mp4" controls="controls" width="425" height="350"`) {
		t.Errorf("video embed = %q, want a native video element", got)
	}

	// Without embedding, media degrades to a link.
	got = conv.Convert("[video]https://example.com/clip[/video]", false, FormatDisplay, false)
	if strings.Contains(got, "<video") || !strings.Contains(got, `<a href="https://example.com/clip"`) {
		t.Errorf("video link = %q, want a plain link", got)
	}
}

func TestConvert_Mentions(t *testing.T) {
	conv := newTestConverter()
	text := "@[url=https://example.com/profile/anna]Anna[/url]"

	got := conv.Convert(text, true, FormatDisplay, false)
	want := `@<a href="https://example.com/profile/anna" class="userinfo mention" title="Anna">Anna</a>`
	if got != want {
		t.Errorf("display mention = %q, want %q", got, want)
	}

	got = conv.Convert(text, false, FormatActivityPub, false)
	want = `@<span class="vcard"><a href="https://example.com/profile/anna" class="url u-url mention" title="Anna"><span class="fn nickname mention">Anna</span></a></span>`
	if got != want {
		t.Errorf("activitypub mention = %q, want %q", got, want)
	}

	got = conv.Convert(text, false, FormatDiaspora, false)
	want = `@<a href="https://example.com/profile/anna">Anna</a>`
	if got != want {
		t.Errorf("diaspora mention = %q, want %q", got, want)
	}

	// Text renderings strip the mention decoration entirely.
	got = conv.Convert(text, false, FormatDisplay, false)
	if want = "@Anna"; got != want {
		t.Errorf("stripped mention = %q, want %q", got, want)
	}
}

func TestConvert_HashtagLink(t *testing.T) {
	conv := newTestConverter(WithBaseURL("https://hub.example"))
	got := conv.Convert("#[url=https://hub.example/search?tag=cats]cats[/url]", true, FormatDisplay, false)
	want := `#<a href="https://hub.example/search?tag=cats" class="tag" title="cats">cats</a>`
	if got != want {
		t.Errorf("hashtag = %q, want %q", got, want)
	}
}

func TestConvert_Event(t *testing.T) {
	conv := newTestConverter()
	text := "[event-summary]Town Meetup[/event-summary][event-start]2019-09-10 12:00:00[/event-start][event-location]Town Hall[/event-location]"

	got := conv.Convert(text, false, FormatDisplay, false)
	if !strings.Contains(got, `class="vevent"`) {
		t.Errorf("event block missing: %q", got)
	}
	if !strings.Contains(got, "Town Meetup") || !strings.Contains(got, "Town Hall") {
		t.Errorf("event fields missing: %q", got)
	}
	if strings.Contains(got, "[event-") {
		t.Errorf("event tags left in output: %q", got)
	}
}

func TestConvert_Smilies(t *testing.T) {
	conv := newTestConverter(WithSmilies(stubSmilies{}))

	got := conv.Convert("hello :-)", false, FormatDisplay, false)
	if !strings.Contains(got, `class="smiley"`) {
		t.Errorf("smiley not replaced: %q", got)
	}

	got = conv.Convert("[nosmile]hello :-)", false, FormatDisplay, false)
	if strings.Contains(got, `class="smiley"`) {
		t.Errorf("nosmile did not suppress the smiley: %q", got)
	}
}

func TestConvert_Crypt(t *testing.T) {
	conv := newTestConverter()
	got := conv.Convert("[crypt]AAECAwQ=[/crypt]", false, FormatDisplay, false)
	if !strings.Contains(got, "lock_icon.gif") || !strings.Contains(got, "Encrypted content") {
		t.Errorf("crypt block = %q, want a lock icon placeholder", got)
	}
	if strings.Contains(got, "AAECAwQ=") {
		t.Errorf("crypt payload leaked: %q", got)
	}
}

func TestConvert_EscapesAngleBrackets(t *testing.T) {
	conv := newTestConverter()
	got := conv.Convert("1 < 2 && 3 > 2", true, FormatDisplay, false)
	if want := "1 &lt; 2 && 3 &gt; 2"; got != want {
		t.Errorf("Convert() = %q, want %q", got, want)
	}
}

func TestStripAbstract(t *testing.T) {
	got := StripAbstract("[abstract]tl;dr[/abstract]Full body")
	if want := "Full body"; got != want {
		t.Errorf("StripAbstract() = %q, want %q", got, want)
	}

	got = StripAbstract("Full body [abstract=twit]short[/abstract]")
	if want := "Full body"; got != want {
		t.Errorf("StripAbstract() with addon = %q, want %q", got, want)
	}
}

func TestGetAbstract(t *testing.T) {
	text := "[abstract]general[/abstract][abstract=twit]short[/abstract]body"

	if got := GetAbstract(text, "twit"); got != "short" {
		t.Errorf("GetAbstract(twit) = %q, want %q", got, "short")
	}
	if got := GetAbstract(text, ""); got != "general" {
		t.Errorf("GetAbstract() = %q, want %q", got, "general")
	}
	if got := GetAbstract(text, "unknown"); got != "general" {
		t.Errorf("GetAbstract(unknown) = %q, want fallback %q", got, "general")
	}
	if got := GetAbstract("no abstract here", ""); got != "" {
		t.Errorf("GetAbstract() without abstract = %q, want empty", got)
	}
}

func TestConvert_AbstractStripped(t *testing.T) {
	conv := newTestConverter()
	got := conv.Convert("[abstract]tl;dr[/abstract]Full body", false, FormatDisplay, false)
	if want := "Full body"; got != want {
		t.Errorf("Convert() = %q, want %q", got, want)
	}
}

func TestLimitBodySize(t *testing.T) {
	conv := New(WithConfig(&Config{MaxImportSize: 10}))

	if got := conv.LimitBodySize("short"); got != "short" {
		t.Errorf("LimitBodySize(short) = %q, want unchanged", got)
	}

	if got := conv.LimitBodySize("0123456789abcdef"); got != "0123456789" {
		t.Errorf("LimitBodySize() = %q, want %q", got, "0123456789")
	}

	// Embedded data images do not count against the limit.
	body := "12345[img=64x48]data:image/jpeg;base64,AAAA[/img]67890"
	if got := conv.LimitBodySize(body); got != body {
		t.Errorf("LimitBodySize() with data image = %q, want unchanged", got)
	}

	// Remote images are plain text for the limit.
	got := conv.LimitBodySize("12345[img]https://example.com/a.png[/img]xyz")
	if want := "12345[img]"; got != want {
		t.Errorf("LimitBodySize() with remote image = %q, want %q", got, want)
	}

	unlimited := New(WithConfig(&Config{}))
	if got := unlimited.LimitBodySize("0123456789abcdef"); got != "0123456789abcdef" {
		t.Errorf("LimitBodySize() without limit = %q, want unchanged", got)
	}
}

func TestScaleExternalImages(t *testing.T) {
	conv := newTestConverter(WithImageProber(stubImageProber{
		info: ImageInfo{Width: 1280, Height: 960, Mime: "image/jpeg"},
	}))

	got := conv.ScaleExternalImages("[img]https://remote.example/big.jpg[/img]", true)
	if !strings.Contains(got, "[img=640x480]https://remote.example/big.jpg[/img]") {
		t.Errorf("ScaleExternalImages() = %q, want a 640x480 size tag", got)
	}
	if !strings.Contains(got, "[url=https://remote.example/big.jpg]view full size[/url]") {
		t.Errorf("ScaleExternalImages() = %q, want a full size link", got)
	}

	got = conv.ScaleExternalImages("[img]https://remote.example/big.jpg[/img]", false)
	if strings.Contains(got, "view full size") {
		t.Errorf("ScaleExternalImages() without link = %q", got)
	}

	small := newTestConverter(WithImageProber(stubImageProber{
		info: ImageInfo{Width: 320, Height: 240, Mime: "image/jpeg"},
	}))
	body := "[img]https://remote.example/small.jpg[/img]"
	if got := small.ScaleExternalImages(body, true); got != body {
		t.Errorf("ScaleExternalImages() small image = %q, want unchanged", got)
	}

	// A failed probe keeps the body untouched.
	failing := newTestConverter()
	if got := failing.ScaleExternalImages(body, true); got != body {
		t.Errorf("ScaleExternalImages() failed probe = %q, want unchanged", got)
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{1280, 960, 640, 480},
		{960, 1280, 480, 640},
		{640, 640, 640, 640},
	}
	for _, tt := range tests {
		w, h := scaleDimensions(tt.w, tt.h, 640)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("scaleDimensions(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}
