package bbcodify

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/riverfjs/bbcodify-go/internal/event"
	"github.com/riverfjs/bbcodify-go/internal/htmlutil"
	"github.com/riverfjs/bbcodify-go/internal/imgprobe"
	"github.com/riverfjs/bbcodify-go/internal/siteinfo"
)

// Converter turns markup bodies into HTML for a set of target formats.
// The zero value is not usable, construct one with New.
type Converter struct {
	cfg *Config

	oembed      OembedResolver
	imageProber ImageProber
	siteProber  SiteProber
	directory   Directory
	cache       Cache
	smilies     SmilieReplacer
	events      EventHandler
	proxy       URLProxy
	location    LocationRenderer
	translate   Translator
	markdown    HTMLToMarkdown
	css         CSSSanitizer

	localURLRe      *regexp.Regexp
	localNamedURLRe *regexp.Regexp
}

// New returns a Converter. Collaborators left unset fall back to the
// built-in implementations; network probers share the configured cache.
func New(opts ...Option) *Converter {
	c := &Converter{cfg: defaultConfig()}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = &memoryCache{}
	}
	if c.imageProber == nil {
		c.imageProber = imgprobe.New(c.cache)
	}
	if c.siteProber == nil {
		c.siteProber = siteinfo.New(c.cache)
	}
	if c.events == nil {
		c.events = event.Handler{}
	}
	if c.proxy == nil {
		c.proxy = identityProxy{}
	}
	if c.translate == nil {
		c.translate = englishTranslator{}
	}
	if c.markdown == nil {
		c.markdown = newHTMLToMarkdown()
	}
	if c.css == nil {
		c.css = cssSanitizer{}
	}
	if c.cfg.BaseURL != "" {
		escaped := regexp.QuoteMeta(c.cfg.BaseURL)
		c.localURLRe = regexp.MustCompile(`(?is)\[url\](` + escaped + `.*?)\[/url\]`)
		c.localNamedURLRe = regexp.MustCompile(`(?is)\[url=(` + escaped + `.*?)\](.*?)\[/url\]`)
	}
	return c
}

type identityProxy struct{}

func (identityProxy) Proxy(url, _ string) string { return url }

type cssSanitizer struct{}

func (cssSanitizer) Sanitize(value string) string { return htmlutil.SanitizeCSS(value) }

func (c *Converter) t(key string, args ...interface{}) string {
	return c.translate.T(key, args...)
}

func (c *Converter) cacheGet(key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.Get(key)
}

func (c *Converter) cacheSet(key, value string) {
	if c.cache != nil {
		c.cache.Set(key, value)
	}
}

func (c *Converter) probeImage(url string) (ImageInfo, error) {
	if c.imageProber == nil {
		return ImageInfo{}, fmt.Errorf("no image prober configured")
	}
	return c.imageProber.Probe(url)
}

func (c *Converter) probeSite(url string, withImages bool) (SiteInfo, error) {
	if c.siteProber == nil {
		return SiteInfo{}, fmt.Errorf("no site prober configured")
	}
	return c.siteProber.Probe(url, withImages)
}

// probeSiteFresh bypasses the cache read when the prober supports it.
func (c *Converter) probeSiteFresh(url string, withImages bool) (SiteInfo, error) {
	type fresher interface {
		ProbeFresh(url string, withImages bool) (SiteInfo, error)
	}
	if f, ok := c.siteProber.(fresher); ok {
		return f.ProbeFresh(url, withImages)
	}
	return c.probeSite(url, withImages)
}

func (c *Converter) oembedAllowed(url string) bool {
	return c.oembed != nil && c.oembed.IsAllowed(url)
}

// proxyURL rewrites a media URL through the configured proxy. Only the
// display and API formats are served proxied media, federated outputs
// carry the origin URL.
func (c *Converter) proxyURL(rawURL string, format Format) string {
	if c.proxy == nil || rawURL == "" {
		return rawURL
	}
	if !format.is(FormatDisplay, FormatAPI) {
		return rawURL
	}
	if strings.HasPrefix(rawURL, "data:") {
		return rawURL
	}
	return c.proxy.Proxy(rawURL, ProxySizeLarge)
}

// tryOembedTag resolves a [tag]url[/tag] or [tag=url]title[/tag] match
// into embed HTML, keeping the match untouched on failure.
func (c *Converter) tryOembedTag(m []string) string {
	title := ""
	if len(m) > 2 {
		title = m[2]
	}
	if c.oembed != nil {
		if html, err := c.oembed.HTML(m[1], title); err == nil {
			return html
		}
	}
	return m[0]
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// replaceAllSubmatchFunc is ReplaceAllStringFunc with access to the
// submatches of each match.
func replaceAllSubmatchFunc(re *regexp.Regexp, text string, fn func(m []string) string) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		return fn(re.FindStringSubmatch(match))
	})
}

// fixpointReplace applies the replacer until the text stops changing.
// Each pair shrinks the text so the loop terminates.
func fixpointReplace(text string, r *strings.Replacer) string {
	for {
		next := r.Replace(text)
		if next == text {
			return text
		}
		text = next
	}
}

// shortenedLink renders a URL as an anchor whose label drops the scheme
// and is truncated to 30 characters.
func shortenedLink(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return rawURL
	}
	styled := strings.TrimPrefix(rawURL, parsed.Scheme+"://")
	if runes := []rune(styled); len(runes) > 30 {
		styled = string(runes[:30]) + "…"
	}
	return `<a href="` + rawURL + `" target="_blank">` + styled + `</a>`
}

var (
	whitespaceOpenRe  = regexp.MustCompile(`(?is)\[(\w*)\](\s*)`)
	whitespaceCloseRe = regexp.MustCompile(`(?is)(\s*)\[/(\w*)\]`)

	shareNewlineRe = regexp.MustCompile(`(?is)\s?\[share(.*?)\]\s?(.*?)\s?\[/share\]\s?`)
	quoteNewlineRe = regexp.MustCompile(`(?is)\s?\[quote(.*?)\]\s?(.*?)\s?\[/quote\]\s?`)
	shareAvatarRe  = regexp.MustCompile(`(?is)\s?\[share(.*?)avatar\s?=\s?'.*?'\s?(.*?)\]\s?(.*?)\s?\[/share\]\s?`)

	mapLocationRe = regexp.MustCompile(`(?is)\[map\](.*?)\[/map\]`)
	mapCoordRe    = regexp.MustCompile(`(?is)\[map=(.*?)\]`)

	boldRe      = regexp.MustCompile(`(?is)\[b\](.*?)\[/b\]`)
	italicRe    = regexp.MustCompile(`(?is)\[i\](.*?)\[/i\]`)
	underlineRe = regexp.MustCompile(`(?is)\[u\](.*?)\[/u\]`)
	strikeRe    = regexp.MustCompile(`(?is)\[s\](.*?)\[/s\]`)
	overlineRe  = regexp.MustCompile(`(?is)\[o\](.*?)\[/o\]`)
	paraRe      = regexp.MustCompile(`(?is)\[p\](.*?)\[/p\]`)
	colorRe     = regexp.MustCompile(`(?is)\[color=(.*?)\](.*?)\[/color\]`)
	sizeNumRe   = regexp.MustCompile(`(?is)\[size=(\d*?)\](.*?)\[/size\]`)
	sizeAnyRe   = regexp.MustCompile(`(?is)\[size=(.*?)\](.*?)\[/size\]`)
	centerRe    = regexp.MustCompile(`(?is)\[center\](.*?)\[/center\]`)
	styleRe     = regexp.MustCompile(`(?is)\[style=(.*?)\](.*?)\[/style\]`)
	classRe     = regexp.MustCompile(`(?is)\[class=(.*?)\](.*?)\[/class\]`)

	listBulletRe     = regexp.MustCompile(`(?is)\[list\](.*?)\[/list\]`)
	listNoneRe       = regexp.MustCompile(`(?is)\[list=\](.*?)\[/list\]`)
	listDecimalRe    = regexp.MustCompile(`(?is)\[list=1\](.*?)\[/list\]`)
	listLowerRomanRe = regexp.MustCompile(`(?s)\[(?i:list)=i\](.*?)\[/(?i:list)\]`)
	listUpperRomanRe = regexp.MustCompile(`(?s)\[(?i:list)=I\](.*?)\[/(?i:list)\]`)
	listLowerAlphaRe = regexp.MustCompile(`(?s)\[(?i:list)=a\](.*?)\[/(?i:list)\]`)
	listUpperAlphaRe = regexp.MustCompile(`(?s)\[(?i:list)=A\](.*?)\[/(?i:list)\]`)
	ulRe             = regexp.MustCompile(`(?is)\[ul\](.*?)\[/ul\]`)
	olRe             = regexp.MustCompile(`(?is)\[ol\](.*?)\[/ol\]`)
	liRe             = regexp.MustCompile(`(?is)\[li\](.*?)\[/li\]`)

	thRe          = regexp.MustCompile(`(?s)\[th\](.*?)\[/th\]`)
	tdRe          = regexp.MustCompile(`(?s)\[td\](.*?)\[/td\]`)
	trRe          = regexp.MustCompile(`(?s)\[tr\](.*?)\[/tr\]`)
	tableRe       = regexp.MustCompile(`(?s)\[table\](.*?)\[/table\]`)
	tableBorder1Re = regexp.MustCompile(`(?s)\[table border=1\](.*?)\[/table\]`)
	tableBorder0Re = regexp.MustCompile(`(?s)\[table border=0\](.*?)\[/table\]`)

	fontRe = regexp.MustCompile(`(?s)\[font=(.*?)\](.*?)\[/font\]`)

	spoilerRe       = regexp.MustCompile(`(?is)\[spoiler\](.*?)\[/spoiler\]`)
	spoilerAuthorRe = regexp.MustCompile(`(?is)\[spoiler=["']*(.*?)["']*\](.*?)\[/spoiler\]`)
	quoteRe         = regexp.MustCompile(`(?is)\[quote\](.*?)\[/quote\]`)
	quoteAuthorRe   = regexp.MustCompile(`(?is)\[quote=["']*(.*?)["']*\](.*?)\[/quote\]`)

	imgSizedProxyRe = regexp.MustCompile(`(?is)\[img=([0-9]*)x([0-9]*)\](.*?)\[/img\]`)
	zmgSizedRe      = regexp.MustCompile(`(?is)\[zmg=([0-9]*)x([0-9]*)\](.*?)\[/zmg\]`)
	imgAltRe        = regexp.MustCompile(`(?is)\[img=(.*?)\](.*?)\[/img\]`)
	imgBareRe       = regexp.MustCompile(`(?is)\[img\](.*?)\[/img\]`)
	zmgBareRe       = regexp.MustCompile(`(?is)\[zmg\](.*?)\[/zmg\]`)

	cryptBareRe = regexp.MustCompile(`(?is)\[crypt\](.*?)\[/crypt\]`)
	cryptAttrRe = regexp.MustCompile(`(?is)\[crypt(.*?)\](.*?)\[/crypt\]`)

	videoExtRe  = regexp.MustCompile(`(?is)\[video\](.*?\.(?:ogg|ogv|oga|ogm|webm|mp4).*?)\[/video\]`)
	audioExtRe  = regexp.MustCompile(`(?is)\[audio\](.*?\.(?:ogg|ogv|oga|ogm|webm|mp4|mp3).*?)\[/audio\]`)
	videoBareRe = regexp.MustCompile(`(?is)\[video\](.*?)\[/video\]`)
	audioBareRe = regexp.MustCompile(`(?is)\[audio\](.*?)\[/audio\]`)
	iframeRe    = regexp.MustCompile(`(?is)\[iframe\](.*?)\[/iframe\]`)

	youtubeWatchOembedRe = regexp.MustCompile(`(?is)\[youtube\](https?://www.youtube.com/watch\?v=.*?)\[/youtube\]`)
	youtubeBareOembedRe  = regexp.MustCompile(`(?is)\[youtube\](www.youtube.com/watch\?v=.*?)\[/youtube\]`)
	youtubeShortOembedRe = regexp.MustCompile(`(?is)\[youtube\](https?://youtu.be/.*?)\[/youtube\]`)
	youtubeWatchRe       = regexp.MustCompile(`(?is)\[youtube\]https?://www.youtube.com/watch\?v=(.*?)\[/youtube\]`)
	youtubeEmbedRe       = regexp.MustCompile(`(?is)\[youtube\]https?://www.youtube.com/embed/(.*?)\[/youtube\]`)
	youtubeShortRe       = regexp.MustCompile(`(?is)\[youtube\]https?://youtu.be/(.*?)\[/youtube\]`)
	youtubeIDRe          = regexp.MustCompile(`(?is)\[youtube\]([A-Za-z0-9\-_=]+)(.*?)\[/youtube\]`)

	vimeoPlayerOembedRe = regexp.MustCompile(`(?is)\[vimeo\](https?://player.vimeo.com/video/[0-9]+).*?\[/vimeo\]`)
	vimeoPageOembedRe   = regexp.MustCompile(`(?is)\[vimeo\](https?://vimeo.com/[0-9]+).*?\[/vimeo\]`)
	vimeoPlayerRe       = regexp.MustCompile(`(?is)\[vimeo\]https?://player.vimeo.com/video/([0-9]+)(.*?)\[/vimeo\]`)
	vimeoPageRe         = regexp.MustCompile(`(?is)\[vimeo\]https?://vimeo.com/([0-9]+)(.*?)\[/vimeo\]`)
	vimeoIDRe           = regexp.MustCompile(`(?is)\[vimeo\]([0-9]+)(.*?)\[/vimeo\]`)

	embedTagRe = regexp.MustCompile(`(?is)\[embed\](.*?)\[/embed\]`)

	eventSummaryRe     = regexp.MustCompile(`(?is)\[event\-summary\](.*?)\[/event\-summary\]`)
	eventDescriptionRe = regexp.MustCompile(`(?is)\[event\-description\](.*?)\[/event\-description\]`)
	eventStartRe       = regexp.MustCompile(`(?is)\[event\-start\](.*?)\[/event\-start\]`)
	eventFinishRe      = regexp.MustCompile(`(?is)\[event\-finish\](.*?)\[/event\-finish\]`)
	eventLocationRe    = regexp.MustCompile(`(?is)\[event\-location\](.*?)\[/event\-location\]`)
	eventAdjustRe      = regexp.MustCompile(`(?is)\[event\-adjust\](.*?)\[/event\-adjust\]`)
	eventIDRe          = regexp.MustCompile(`(?is)\[event\-id\](.*?)\[/event\-id\]`)

	urlTagRe       = regexp.MustCompile(`(?is)\[url\](.*?)\[/url\]`)
	urlNamedTagRe  = regexp.MustCompile(`(?is)\[url=(.*?)\](.*?)\[/url\]`)
	zrlNamedTagRe  = regexp.MustCompile(`(?is)\[zrl=(.*?)\](.*?)\[/zrl\]`)
	urlFlattenRe   = regexp.MustCompile(`(?is)\[url\](.*?)\[/url\]`)
	picturePairRe  = regexp.MustCompile(`(?is)\[url=([^\[\]]*)\]\[img\](.*?)\[/img\]\[/url\]`)
	mentionStripRe = regexp.MustCompile(`(?is)([#@!])\[url=(.*?)\](.*?)\[/url\]`)
	mentionLinkRe  = regexp.MustCompile(`(?is)([@!])\[url=(.*?)\](.*?)\[/url\]`)

	bookmarkBareRe  = regexp.MustCompile(`(?is)#\^\[url\](.*?)\[/url\]`)
	bookmarkNamedRe = regexp.MustCompile(`(?is)#\^\[url=(.*?)\](.*?)\[/url\]`)
	bookmarkCaretRe = regexp.MustCompile(`(?i)#\[url=.*?\]\^\[/url\]\[url=(.*?)\](.*?)\[/url\]`)
	bookmarkTagRe   = regexp.MustCompile(`(?is)\[bookmark=([^\]]*)\](.*?)\[/bookmark\]`)

	expandLinkRe     = regexp.MustCompile(`(?is)([^#@!])\[url=([^\]]*)\](.*?)\[/url\]`)
	reduceNamedURLRe = regexp.MustCompile(`(?is)[^#@!]\[url=(.*?)\](.*?)\[/url\]`)

	diasporaPostRe   = regexp.MustCompile(`(?is)\[url=/?posts/([^\[\]]*?)\](.*?)\[/url\]`)
	diasporaPeopleRe = regexp.MustCompile(`(?is)\[url=/people\?q=(.*?)\](.*?)\[/url\]`)
	diasporaURLRe    = regexp.MustCompile(`(?is)diaspora://.*?/post/([0-9A-Za-z\-_@.:]{15,254}[0-9A-Za-z])`)

	hashtagRe = regexp.MustCompile(`(?is)(?:#\[url=.*?\]|\[url=.*?\]#)(.*?)\[/url\]`)

	acctRe = regexp.MustCompile(`acct:([^@\s]+)@((?:[a-zA-Z\d][a-zA-Z\d\-]*[a-zA-Z\d]\.|[a-zA-Z\d]\.)+\d*[a-zA-Z][a-zA-Z\d]{0,61})`)

	mailBareRe  = regexp.MustCompile(`\[mail\](.*?)\[/mail\]`)
	mailNamedRe = regexp.MustCompile(`\[mail=(.*?)\](.*?)\[/mail\]`)

	bracketEntityRe = regexp.MustCompile(`\[&amp;([#a-z0-9]+);\]`)
	escapedAmpRe    = regexp.MustCompile(`(?is)<([^>]*?)(src|href)=(.*?)&amp;(.*?)>`)
	srcAttrRe       = regexp.MustCompile(`(?is)<([^>]*?)src="(.*?)"(.*?)>`)
	hrefAttrRe      = regexp.MustCompile(`(?is)<([^>]*?)href="(.*?)"(.*?)>`)

	abstractBareRe  = regexp.MustCompile(`(?is)[\s|]*\[abstract\].*?\[/abstract\][\s|]*`)
	abstractAddonRe = regexp.MustCompile(`(?is)[\s|]*\[abstract=.*?\].*?\[/abstract\][\s|]*`)
	abstractValueRe = regexp.MustCompile(`(?is)\[abstract\](.*?)\[/abstract\]`)
	abstractNamedRe = regexp.MustCompile(`(?is)\[abstract=(.*?)\](.*?)\[/abstract\]`)
)

// autoLinkRe recognizes bare http(s) URLs in running text. The leading
// group stands in for a lookbehind: URLs already inside a tag or
// attribute are preceded by one of the excluded characters and stay
// untouched, the matched prefix is re-emitted by the replacement.
var autoLinkRe = regexp.MustCompile("(^|[^='\"\\]/0-9A-Za-z_])" +
	"(https?://" +
	"[^/\\s\u00A0`!()\\[\\]{};:'\",<>?«»“”‘’.]" +
	"[^/\\s\u00A0`!()\\[\\]{};:'\",<>?«»“”‘’]*" +
	"\\." +
	"[^/\\s\u00A0`!()\\[\\]{};:'\".,<>?«»“”‘’]+/?" +
	"(?:" +
	"[^\\s\u00A0()<>]+" +
	"|\\((?:[^\\s\u00A0()<>]+|\\([^\\s()<>]+\\))*\\)" +
	"|[^\\s\u00A0`!()\\[\\]{};:'\".,<>?«»“”‘’]" +
	")*" +
	")")

var tableWhitespaceReplacer = strings.NewReplacer(
	"\n[th]", "[th]", "[th]\n", "[th]", " [th]", "[th]",
	"\n[/th]", "[/th]", "[/th]\n", "[/th]", "[/th] ", "[/th]",
	"\n[td]", "[td]", "[td]\n", "[td]", " [td]", "[td]",
	"\n[/td]", "[/td]", "[/td]\n", "[/td]", "[/td] ", "[/td]",
	"\n[tr]", "[tr]", "[tr]\n", "[tr]", " [tr]", "[tr]", "[tr] ", "[tr]",
	"\n[/tr]", "[/tr]", "[/tr]\n", "[/tr]", " [/tr]", "[/tr]", "[/tr] ", "[/tr]",
	"[table]\n", "[table]", "[table] ", "[table]", " [table]", "[table]",
	"\n[/table]", "[/table]", " [/table]", "[/table]", "[/table] ", "[/table]",
)

var multiLineReplacer = strings.NewReplacer(
	"\n\n\n", "\n\n", "\n ", "\n", " \n", "\n",
	"[/quote]\n\n", "[/quote]\n", "\n[/quote]", "[/quote]",
	"[/li]\n", "[/li]", "\n[li]", "[li]", "\n[ul]", "[ul]", "[/ul]\n", "[/ul]",
	"\n\n[share ", "\n[share ", "[/attachment]\n", "[/attachment]",
	"\n[h1]", "[h1]", "[/h1]\n", "[/h1]", "\n[h2]", "[h2]", "[/h2]\n", "[/h2]",
	"\n[h3]", "[h3]", "[/h3]\n", "[/h3]", "\n[h4]", "[h4]", "[/h4]\n", "[/h4]",
	"\n[h5]", "[h5]", "[/h5]\n", "[/h5]", "\n[h6]", "[h6]", "[/h6]\n", "[/h6]",
)

// StripAbstract removes any abstract blocks from a body.
func StripAbstract(text string) string {
	text = abstractBareRe.ReplaceAllString(text, "")
	text = abstractAddonRe.ReplaceAllString(text, "")
	return text
}

// GetAbstract returns the abstract text for an addon, falling back to
// the unnamed abstract.
func GetAbstract(text, addon string) string {
	addon = strings.ToLower(addon)
	if addon != "" {
		for _, m := range abstractNamedRe.FindAllStringSubmatch(text, -1) {
			if strings.ToLower(m[1]) == addon {
				return m[2]
			}
		}
	}
	if m := abstractValueRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// Convert renders a markup body as HTML for the given target format.
// When tryOembed is unset, remote embed lookups are skipped and media
// tags degrade to plain links. forPlaintext prepares the HTML for a
// later plain-text extraction: URLs stay literal and no autolinking is
// performed.
func (c *Converter) Convert(text string, tryOembed bool, format Format, forPlaintext bool) string {
	return c.convert(text, tryOembed, format, forPlaintext)
}

func (c *Converter) convert(text string, tryOembed bool, format Format, forPlaintext bool) string {
	// Stash code blocks away before whitespace handling and autolinking
	// touch their contents.
	text, codeBlocks := extractCodeBlocks(text)
	text = escapeNoparse(text)
	text = StripAbstract(text)

	// Move whitespace out of tags.
	text = whitespaceOpenRe.ReplaceAllString(text, "${2}[${1}]")
	text = whitespaceCloseRe.ReplaceAllString(text, "[/${2}]${1}")

	// Embedded data: URI images blow up regex processing, stash them too.
	text, savedImages := extractDataImages(text)

	ev, evFound := c.events.Parse(text)

	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")

	// Remove the newlines around share and quote blocks.
	text = shareNewlineRe.ReplaceAllString(text, "[share${1}]${2}[/share]")
	text = quoteNewlineRe.ReplaceAllString(text, "[quote${1}]${2}[/quote]")

	// When a share block is rendered as text the avatar attribute is
	// dropped.
	if !tryOembed {
		text = shareAvatarRe.ReplaceAllString(text, "\n[share${1}${2}]${3}[/share]")
	}

	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	// Linefeeds inside table elements break the rendered rows.
	text = fixpointReplace(text, tableWhitespaceReplacer)
	text = strings.NewReplacer("\n[table]", "[table]", "[/table]\n", "[/table]").Replace(text)

	if c.cfg.RemoveMultiplicatedLines {
		text = fixpointReplace(text, multiLineReplacer)
	}

	text = c.convertAttachment(text, format, tryOembed)

	if strings.Contains(text, "[/map]") {
		text = replaceAllSubmatchFunc(mapLocationRe, text, func(m []string) string {
			return `<p class="map">` + c.renderLocation(m[1], format) + `</p>`
		})
	}
	if strings.Contains(text, "[map=") {
		text = replaceAllSubmatchFunc(mapCoordRe, text, func(m []string) string {
			return `<p class="map">` + c.renderCoordinates(strings.ReplaceAll(m[1], "/", " "), format) + `</p>`
		})
	}
	if strings.Contains(text, "[map]") {
		text = strings.ReplaceAll(text, "[map]", `<p class="map"></p>`)
	}

	for i := 1; i <= 6; i++ {
		re := regexp.MustCompile(fmt.Sprintf(`(?is)\[h%d\](.*?)\[/h%d\]`, i, i))
		text = re.ReplaceAllString(text, fmt.Sprintf(`<h%d>${1}</h%d>`, i, i))
	}

	text = paraRe.ReplaceAllString(text, `<p>${1}</p>`)
	text = boldRe.ReplaceAllString(text, `<strong>${1}</strong>`)
	text = italicRe.ReplaceAllString(text, `<em>${1}</em>`)
	text = underlineRe.ReplaceAllString(text, `<u>${1}</u>`)
	text = strikeRe.ReplaceAllString(text, `<s>${1}</s>`)
	text = overlineRe.ReplaceAllString(text, `<span class="overline">${1}</span>`)
	text = colorRe.ReplaceAllString(text, `<span style="color: ${1};">${2}</span>`)
	text = sizeNumRe.ReplaceAllString(text, `<span style="font-size: ${1}px; line-height: initial;">${2}</span>`)
	text = sizeAnyRe.ReplaceAllString(text, `<span style="font-size: ${1}; line-height: initial;">${2}</span>`)
	text = centerRe.ReplaceAllString(text, `<div style="text-align:center;">${1}</div>`)

	text = strings.ReplaceAll(text, "[*]", "<li>")

	text = replaceAllSubmatchFunc(styleRe, text, func(m []string) string {
		return `<span style="` + c.css.Sanitize(m[1]) + `;">` + m[2] + `</span>`
	})
	text = replaceAllSubmatchFunc(classRe, text, func(m []string) string {
		return `<span class="` + c.css.Sanitize(m[1]) + `">` + m[2] + `</span>`
	})

	// Nested lists converge one level per round. The ceiling guards
	// against unbalanced tags.
	for loop := 0; c.hasOpenList(text) && loop < nestedBlockCeiling; loop++ {
		text = listBulletRe.ReplaceAllString(text, `<ul class="listbullet" style="list-style-type: circle;">${1}</ul>`)
		text = listNoneRe.ReplaceAllString(text, `<ul class="listnone" style="list-style-type: none;">${1}</ul>`)
		text = listDecimalRe.ReplaceAllString(text, `<ul class="listdecimal" style="list-style-type: decimal;">${1}</ul>`)
		text = listLowerRomanRe.ReplaceAllString(text, `<ul class="listlowerroman" style="list-style-type: lower-roman;">${1}</ul>`)
		text = listUpperRomanRe.ReplaceAllString(text, `<ul class="listupperroman" style="list-style-type: upper-roman;">${1}</ul>`)
		text = listLowerAlphaRe.ReplaceAllString(text, `<ul class="listloweralpha" style="list-style-type: lower-alpha;">${1}</ul>`)
		text = listUpperAlphaRe.ReplaceAllString(text, `<ul class="listupperalpha" style="list-style-type: upper-alpha;">${1}</ul>`)
		text = ulRe.ReplaceAllString(text, `<ul class="listbullet" style="list-style-type: circle;">${1}</ul>`)
		text = olRe.ReplaceAllString(text, `<ul class="listdecimal" style="list-style-type: decimal;">${1}</ul>`)
		text = liRe.ReplaceAllString(text, `<li>${1}</li>`)
	}

	text = thRe.ReplaceAllString(text, `<th>${1}</th>`)
	text = tdRe.ReplaceAllString(text, `<td>${1}</td>`)
	text = trRe.ReplaceAllString(text, `<tr>${1}</tr>`)
	text = tableRe.ReplaceAllString(text, `<table>${1}</table>`)
	text = tableBorder1Re.ReplaceAllString(text, `<table border="1" >${1}</table>`)
	text = tableBorder0Re.ReplaceAllString(text, `<table border="0" >${1}</table>`)

	text = strings.ReplaceAll(text, "[hr]", "<hr />")

	nosmile := strings.Contains(text, "[nosmile]")
	text = strings.ReplaceAll(text, "[nosmile]", "")

	text = fontRe.ReplaceAllString(text, `<span style="font-family: ${1};">${2}</span>`)

	for loop := 0; strings.Contains(text, "[/spoiler]") && strings.Contains(text, "[spoiler]") && loop < nestedBlockCeiling; loop++ {
		text = spoilerRe.ReplaceAllString(text, `<blockquote class="spoiler">${1}</blockquote>`)
	}
	for loop := 0; strings.Contains(text, "[/spoiler]") && strings.Contains(text, "[spoiler=") && loop < nestedBlockCeiling; loop++ {
		text = spoilerAuthorRe.ReplaceAllString(text,
			`<br /><strong class="spoiler">`+c.t("%s wrote:", "${1}")+`</strong><blockquote class="spoiler">${2}</blockquote>`)
	}
	for loop := 0; strings.Contains(text, "[/quote]") && strings.Contains(text, "[quote]") && loop < nestedBlockCeiling; loop++ {
		text = quoteRe.ReplaceAllString(text, `<blockquote>${1}</blockquote>`)
	}
	for loop := 0; strings.Contains(text, "[/quote]") && strings.Contains(text, "[quote=") && loop < nestedBlockCeiling; loop++ {
		text = quoteAuthorRe.ReplaceAllString(text,
			`<p><strong class="author">`+c.t("%s wrote:", "${1}")+`</strong></p><blockquote>${2}</blockquote>`)
	}

	text = replaceAllSubmatchFunc(imgSizedProxyRe, text, func(m []string) string {
		if strings.HasPrefix(m[3], "data:image/") {
			return m[0]
		}
		return "[img=" + m[1] + "x" + m[2] + "]" + c.proxyURL(m[3], format) + "[/img]"
	})
	text = imgSizedProxyRe.ReplaceAllString(text, `<img src="${3}" style="width: ${1}px;" >`)
	text = zmgSizedRe.ReplaceAllString(text, `<img class="zrl" src="${3}" style="width: ${1}px;" >`)

	text = replaceAllSubmatchFunc(imgAltRe, text, func(m []string) string {
		return `<img src="` + c.proxyURL(m[1], format) + `" alt="` + htmlAttrEscaper.Replace(m[2]) + `">`
	})

	text = replaceAllSubmatchFunc(imgBareRe, text, func(m []string) string {
		if strings.HasPrefix(m[1], "data:image/") {
			return m[0]
		}
		return "[img]" + c.proxyURL(m[1], format) + "[/img]"
	})
	text = imgBareRe.ReplaceAllString(text, `<img src="${1}" alt="`+c.t("Image/photo")+`" />`)
	text = zmgBareRe.ReplaceAllString(text, `<img src="${1}" alt="`+c.t("Image/photo")+`" />`)

	text = cryptBareRe.ReplaceAllString(text,
		`<br/><img src="`+c.cfg.BaseURL+`/images/lock_icon.gif" alt="`+c.t("Encrypted content")+`" title="`+c.t("Encrypted content")+`" /><br />`)
	text = cryptAttrRe.ReplaceAllString(text,
		`<br/><img src="`+c.cfg.BaseURL+`/images/lock_icon.gif" alt="`+c.t("Encrypted content")+`" title="${1} `+c.t("Encrypted content")+`" /><br />`)

	width := strconv.Itoa(c.cfg.VideoWidth)
	height := strconv.Itoa(c.cfg.VideoHeight)

	if tryOembed {
		text = videoExtRe.ReplaceAllString(text,
			`<video src="${1}" controls="controls" width="`+width+`" height="`+height+`" loop="true"><a href="${1}">${1}</a></video>`)
		text = audioExtRe.ReplaceAllString(text, `<audio src="${1}" controls="controls"><a href="${1}">${1}</a></audio>`)
		text = replaceAllSubmatchFunc(videoBareRe, text, c.tryOembedTag)
		text = replaceAllSubmatchFunc(audioBareRe, text, c.tryOembedTag)
	} else {
		text = videoBareRe.ReplaceAllString(text, `<a href="${1}" target="_blank">${1}</a>`)
		text = audioBareRe.ReplaceAllString(text, `<a href="${1}" target="_blank">${1}</a>`)
	}

	if tryOembed {
		text = iframeRe.ReplaceAllString(text, `<iframe src="${1}" width="`+width+`" height="`+height+`"><a href="${1}">${1}</a></iframe>`)
	} else {
		text = iframeRe.ReplaceAllString(text, `<a href="${1}">${1}</a>`)
	}

	if tryOembed {
		text = replaceAllSubmatchFunc(youtubeWatchOembedRe, text, c.tryOembedTag)
		text = replaceAllSubmatchFunc(youtubeBareOembedRe, text, c.tryOembedTag)
		text = replaceAllSubmatchFunc(youtubeShortOembedRe, text, c.tryOembedTag)
	}
	text = youtubeWatchRe.ReplaceAllString(text, "[youtube]${1}[/youtube]")
	text = youtubeEmbedRe.ReplaceAllString(text, "[youtube]${1}[/youtube]")
	text = youtubeShortRe.ReplaceAllString(text, "[youtube]${1}[/youtube]")
	if tryOembed {
		text = youtubeIDRe.ReplaceAllString(text,
			`<iframe width="`+width+`" height="`+height+`" src="https://www.youtube.com/embed/${1}" frameborder="0" ></iframe>`)
	} else {
		text = youtubeIDRe.ReplaceAllString(text,
			`<a href="https://www.youtube.com/watch?v=${1}" target="_blank">https://www.youtube.com/watch?v=${1}</a>`)
	}

	if tryOembed {
		text = replaceAllSubmatchFunc(vimeoPlayerOembedRe, text, c.tryOembedTag)
		text = replaceAllSubmatchFunc(vimeoPageOembedRe, text, c.tryOembedTag)
	}
	text = vimeoPlayerRe.ReplaceAllString(text, "[vimeo]${1}[/vimeo]")
	text = vimeoPageRe.ReplaceAllString(text, "[vimeo]${1}[/vimeo]")
	if tryOembed {
		text = vimeoIDRe.ReplaceAllString(text,
			`<iframe width="`+width+`" height="`+height+`" src="https://player.vimeo.com/video/${1}" frameborder="0" ></iframe>`)
	} else {
		text = vimeoIDRe.ReplaceAllString(text,
			`<a href="https://vimeo.com/${1}" target="_blank">https://vimeo.com/${1}</a>`)
	}

	text = replaceAllSubmatchFunc(embedTagRe, text, func(m []string) string {
		if c.oembed != nil {
			if html, err := c.oembed.HTML(m[1], ""); err == nil {
				return html
			}
		}
		return `<a href="` + m[1] + `" target="_blank">` + m[1] + `</a>`
	})

	// Avoid triple linefeeds through oembed.
	text = strings.ReplaceAll(text, "<br style='clear:left'></span><br /><br />", "<br style='clear:left'></span><br />")

	// Replace the event-start section with the formatted event, strip the
	// other event tags. A description without a summary is accepted for
	// older bodies.
	if evFound && (ev.Description != "" || ev.Summary != "") && ev.Start != "" {
		sub := c.events.Render(ev)
		text = eventSummaryRe.ReplaceAllString(text, "")
		text = eventDescriptionRe.ReplaceAllString(text, "")
		text = eventStartRe.ReplaceAllStringFunc(text, func(string) string { return sub })
		text = eventFinishRe.ReplaceAllString(text, "")
		text = eventLocationRe.ReplaceAllString(text, "")
		text = eventAdjustRe.ReplaceAllString(text, "")
		text = eventIDRe.ReplaceAllString(text, "")
	}

	if !nosmile && !forPlaintext && c.smilies != nil {
		text = c.smilies.Replace(text)
	}

	if !forPlaintext {
		text = autoLinkRe.ReplaceAllString(text, "${1}[url]${2}[/url]")
		if format.is(FormatOStatus, FormatActivityPub) {
			text = replaceAllSubmatchFunc(urlTagRe, text, func(m []string) string {
				return ostatusLink(m[0], m[1])
			})
			text = replaceAllSubmatchFunc(urlNamedTagRe, text, func(m []string) string {
				if m[1] != m[2] {
					return m[0]
				}
				return ostatusLink(m[0], m[1])
			})
		}
	} else {
		text = urlFlattenRe.ReplaceAllString(text, " ${1} ")
		text = replaceAllSubmatchFunc(picturePairRe, text, c.removePictureLink)
	}

	text = strings.ReplaceAll(text, "\r", "<br />")
	text = strings.ReplaceAll(text, "\n", "<br />")

	// Mentions and hashtag addresses.
	switch {
	case (!tryOembed || format != FormatDisplay) && !format.is(FormatDiaspora, FormatOStatus, FormatActivityPub):
		text = mentionStripRe.ReplaceAllString(text, "${1}${3}")
	case format == FormatDiaspora:
		// The ! is converted since Diaspora only understands the @ form.
		text = mentionLinkRe.ReplaceAllString(text, `@<a href="${2}">${3}</a>`)
	case format.is(FormatOStatus, FormatActivityPub):
		text = mentionLinkRe.ReplaceAllString(text,
			`${1}<span class="vcard"><a href="${2}" class="url u-url mention" title="${3}"><span class="fn nickname mention">${3}</span></a></span>`)
	case format == FormatDisplay:
		text = mentionLinkRe.ReplaceAllString(text, `${1}<a href="${2}" class="userinfo mention" title="${3}">${3}</a>`)
	}

	text = bookmarkBareRe.ReplaceAllString(text, "[bookmark=${1}]${1}[/bookmark]")
	text = bookmarkNamedRe.ReplaceAllString(text, "[bookmark=${1}]${2}[/bookmark]")
	text = bookmarkCaretRe.ReplaceAllString(text, "[bookmark=${1}]${2}[/bookmark]")

	if format.is(FormatAPI, Format(6), FormatOStatus, FormatBacklink) {
		text = replaceAllSubmatchFunc(expandLinkRe, text, expandLink)
		text = bookmarkTagRe.ReplaceAllString(text, " ${2} [url]${1}[/url]")
	}

	if format == FormatReducedLinks {
		text = reduceNamedURLRe.ReplaceAllString(text, "[url]${1}[/url]")
	}

	if tryOembed {
		text = replaceAllSubmatchFunc(bookmarkTagRe, text, c.tryOembedTag)
	}

	if format == FormatReducedLinks {
		text = bookmarkTagRe.ReplaceAllString(text, "[url]${1}[/url]")
	} else {
		text = bookmarkTagRe.ReplaceAllString(text, "[url=${1}]${2}[/url]")
	}

	// Server independent links to Diaspora posts and profiles.
	text = diasporaPostRe.ReplaceAllString(text, "[url="+c.cfg.BaseURL+"/display/${1}]${2}[/url]")
	text = diasporaPeopleRe.ReplaceAllString(text, "[url="+c.cfg.BaseURL+"/search?search=%40${1}]${2}[/url]")
	text = diasporaURLRe.ReplaceAllString(text, c.cfg.BaseURL+"/display/${1}")

	text = replaceAllSubmatchFunc(hashtagRe, text, func(m []string) string {
		escaped := htmlutil.EscapeXML(m[1])
		return `#<a href="` + c.cfg.BaseURL + `/search?tag=` + queryEscape(m[1]) + `" class="tag" title="` + escaped + `">` + escaped + `</a>`
	})

	// Local links carry no target attribute.
	if c.localURLRe != nil {
		text = c.localURLRe.ReplaceAllString(text, `<a href="${1}">${1}</a>`)
		text = c.localNamedURLRe.ReplaceAllString(text, `<a href="${1}">${2}</a>`)
	}

	text = urlTagRe.ReplaceAllString(text, `<a href="${1}" target="_blank">${1}</a>`)
	text = urlNamedTagRe.ReplaceAllString(text, `<a href="${1}" target="_blank">${2}</a>`)
	text = zrlNamedTagRe.ReplaceAllString(text, `<a href="${1}" target="_blank">${2}</a>`)

	// acct: links go through the webfinger redirector.
	text = acctRe.ReplaceAllString(text, `<a href="`+c.cfg.BaseURL+`/acctlink?addr=${1}@${2}" target="extlink">acct:${1}@${2}</a>`)

	text = mailBareRe.ReplaceAllString(text, `<a href="mailto:${1}">${1}</a>`)
	text = mailNamedRe.ReplaceAllString(text, `<a href="mailto:${1}">${2}</a>`)

	text = unescapeNoparse(text)

	text = bracketEntityRe.ReplaceAllString(text, "&${1};")
	text = strings.ReplaceAll(text, "&#039;", "'")

	// Escaped ampersands inside src and href may have been converted
	// into entities by the angle bracket pass.
	text = escapedAmpRe.ReplaceAllString(text, "<${1}${2}=${3}&${4}>")

	text = c.sanitizeSrcAttrs(text)
	text = c.sanitizeHrefAttrs(text)

	text = c.ConvertShare(text, c.defaultShareCallback(format, tryOembed))

	if len(savedImages) > 0 {
		text = restoreDataImages(text, savedImages, func(u string) string {
			return c.proxyURL(u, format)
		}, c.t("Image/photo"))
	}

	text = restoreCodeBlocks(text, codeBlocks)

	if !tryOembed || c.cfg.ItemCache {
		text = htmlutil.CleanupFragment(text)
	}

	return strings.TrimSpace(text)
}

// nestedBlockCeiling bounds the convergence loops for nested lists,
// quotes and spoilers.
const nestedBlockCeiling = 20

func (c *Converter) hasOpenList(text string) bool {
	switch {
	case strings.Contains(text, "[/list]") && strings.Contains(text, "[list"):
		return true
	case strings.Contains(text, "[/ol]") && strings.Contains(text, "[ol]"):
		return true
	case strings.Contains(text, "[/ul]") && strings.Contains(text, "[ul]"):
		return true
	case strings.Contains(text, "[/li]") && strings.Contains(text, "[li]"):
		return true
	}
	return false
}

var htmlAttrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func (c *Converter) renderLocation(location string, format Format) string {
	if c.location != nil {
		return c.location.Location(location, format)
	}
	return location
}

func (c *Converter) renderCoordinates(coordinates string, format Format) string {
	if c.location != nil {
		return c.location.Coordinates(coordinates, format)
	}
	return ""
}

// ostatusLink renders a bare URL the way remote OStatus and
// ActivityPub systems display links. URLs without a scheme stay as is.
func ostatusLink(whole, rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return whole
	}
	return shortenedLink(rawURL)
}

// expandLink inlines the label of a named link in front of the bare URL
// unless the label duplicates the URL.
func expandLink(m []string) string {
	if m[3] == "" || m[2] == m[3] || containsFold(m[2], m[3]) {
		return m[1] + "[url]" + m[2] + "[/url]"
	}
	return m[1] + m[3] + " [url]" + m[2] + "[/url]"
}

// removePictureLink resolves a picture link pair for plain-text output:
// direct image links keep the image URL, page links keep the page or its
// preview image.
func (c *Converter) removePictureLink(m []string) string {
	if cached, ok := c.cacheGet("remove-picture:" + m[1]); ok {
		return cached
	}
	var out string
	if info, err := c.probeImage(m[1]); err == nil && strings.HasPrefix(info.Mime, "image/") {
		out = "[url=" + m[1] + "]" + m[1] + "[/url]"
	} else {
		out = "[url=" + m[2] + "]" + m[2] + "[/url]"
		if data, err := c.probeSite(m[1], true); err == nil && len(data.Images) > 0 {
			src := data.Images[0].Src
			out = "[url=" + src + "]" + src + "[/url]"
		}
	}
	c.cacheSet("remove-picture:"+m[1], out)
	return out
}

var srcProtocols = []string{"//", "http://", "https://", "redir/", "cid:"}

func allowedPrefix(value string, protocols []string) bool {
	lower := strings.ToLower(value)
	for _, p := range protocols {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// sanitizeSrcAttrs blanks src attributes with disallowed protocols. The
// original value is kept in data-original-src so nothing is lost.
func (c *Converter) sanitizeSrcAttrs(text string) string {
	return replaceAllSubmatchFunc(srcAttrRe, text, func(m []string) string {
		if allowedPrefix(m[2], srcProtocols) {
			return m[0]
		}
		return `<` + m[1] + `src=""` + m[3] + ` data-original-src="` + m[2] + `" class="invalid-src" title="` + c.t("Invalid source protocol") + `">`
	})
}

// sanitizeHrefAttrs neutralizes href attributes with disallowed
// protocols, keeping the original value in data-original-href.
func (c *Converter) sanitizeHrefAttrs(text string) string {
	protocols := append([]string{"//", "http://", "https://", "redir/"}, c.cfg.AllowedLinkProtocols...)
	return replaceAllSubmatchFunc(hrefAttrRe, text, func(m []string) string {
		if allowedPrefix(m[2], protocols) {
			return m[0]
		}
		return `<` + m[1] + `href="javascript:void(0)"` + m[3] + ` data-original-href="` + m[2] + `" class="invalid-href" title="` + c.t("Invalid link protocol") + `">`
	})
}

// queryEscape percent-encodes a query value the way web servers expect
// tag searches, with spaces as %20.
func queryEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// LimitBodySize truncates a body to the configured maximum import size
// while keeping embedded data: images intact. Text between images counts
// against the limit, the images themselves do not.
func (c *Converter) LimitBodySize(body string) string {
	maxlen := c.cfg.MaxImportSize
	if maxlen == 0 || len(body) <= maxlen {
		return body
	}

	Logger.Printf("limiting body of %d bytes to %d", len(body), maxlen)

	orig := body
	var out strings.Builder
	textlen := 0

	start, closeBracket, end := findImageTag(orig)
	for closeBracket >= 0 && end >= 0 {
		end += len("[/img]")

		if strings.HasPrefix(orig[start+closeBracket:], "data:") {
			if textlen+start > maxlen {
				if textlen < maxlen {
					out.WriteString(orig[:maxlen-textlen])
					textlen = maxlen
				}
			} else {
				out.WriteString(orig[:start])
				textlen += start
			}
			out.WriteString(orig[start:end])
		} else {
			if textlen+end > maxlen {
				if textlen < maxlen {
					out.WriteString(orig[:maxlen-textlen])
					textlen = maxlen
				}
			} else {
				out.WriteString(orig[:end])
				textlen += end
			}
		}
		orig = orig[end:]
		start, closeBracket, end = findImageTag(orig)
	}

	if textlen+len(orig) > maxlen {
		if textlen < maxlen {
			out.WriteString(orig[:maxlen-textlen])
		}
	} else {
		out.WriteString(orig)
	}
	return out.String()
}

// findImageTag locates the next [img tag. closeBracket is the offset
// just past the closing bracket relative to start, end is the offset of
// the [/img] terminator relative to start.
func findImageTag(body string) (start, closeBracket, end int) {
	start = strings.Index(body, "[img")
	if start < 0 {
		return -1, -1, -1
	}
	closeBracket = strings.Index(body[start:], "]")
	if closeBracket >= 0 {
		closeBracket++
	}
	end = strings.Index(body[start:], "[/img]")
	if end >= 0 {
		end += start
	}
	return start, closeBracket, end
}
