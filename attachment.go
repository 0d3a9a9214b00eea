package bbcodify

import (
	stdhtml "html"
	"net/url"
	"regexp"
	"strings"

	"github.com/riverfjs/bbcodify-go/internal/htmlutil"
)

var (
	imgSizedRe     = regexp.MustCompile(`(?is)\[img=([0-9]*)x([0-9]*)\](.*?)\[/img\]`)
	imgNamedRe     = regexp.MustCompile(`(?is)\[img=(.*?)\](.*?)\[/img\]`)
	classWrapRe    = regexp.MustCompile(`(?is)\[class=(.*?)\](.*?)\[/class\]`)
	attachSplitRe  = regexp.MustCompile(`(?is)(.*)\[attachment(.*?)\](.*?)\[/attachment\](.*)`)
	imgPlainRe     = regexp.MustCompile(`(?is)\[img\](.*?)\[/img\]`)
	bookmarkPairRe = regexp.MustCompile(`(?is)\[bookmark=(.*?)\](.*?)\[/bookmark\]`)
	urlPairRe      = regexp.MustCompile(`(?is)\[url=(.*?)\](.*?)\[/url\]`)
	quotePairRe    = regexp.MustCompile(`(?is)\[quote\](.*?)\[/quote\]`)

	imgAltLocalRe  = regexp.MustCompile(`(?is)\[img=([^\[\]]*)\]([^\[\]]*)\[/img\]`)
	imgBareLocalRe = regexp.MustCompile(`(?is)\[img\]([^\[\]]*)\[/img\]`)
	urlImgPairRe   = regexp.MustCompile(`(?is)\[url=(.*?)\]\s*\[img\](.*?)\[/img\]\s*\[/url\]`)
	urlBareRe      = regexp.MustCompile(`(?is)\[url\](.*?)\[/url\]`)
	urlAnyRe       = regexp.MustCompile(`(?is)\[url=(.*?)\].*?\[/url\]`)
	vimeoPairRe    = regexp.MustCompile(`(?is)\[vimeo\](.*?)\[/vimeo\]`)
	youtubePairRe  = regexp.MustCompile(`(?is)\[youtube\](.*?)\[/youtube\]`)
	videoPairRe    = regexp.MustCompile(`(?is)\[video\](.*?)\[/video\]`)
	audioPairRe    = regexp.MustCompile(`(?is)\[audio\](.*?)\[/audio\]`)
)

// attrValue reads a name='...' or name="..." value out of an attribute
// string, accepting both quote styles. The double-quoted form wins when
// both are present.
func attrValue(attributes, name string) string {
	value := ""
	if m := regexp.MustCompile(`(?is)` + name + `='(.*?)'`).FindStringSubmatch(attributes); m != nil && m[1] != "" {
		value = m[1]
	}
	if m := regexp.MustCompile(`(?is)` + name + `="(.*?)"`).FindStringSubmatch(attributes); m != nil && m[1] != "" {
		value = m[1]
	}
	return value
}

// getOldAttachmentData infers an attachment from the legacy
// [class=type-*] wrapper format.
func (c *Converter) getOldAttachmentData(body string) Attachment {
	var post Attachment

	// Simplify image codes
	body = imgSizedRe.ReplaceAllString(body, "[img]${3}[/img]")

	for _, data := range classWrapRe.FindAllStringSubmatch(body, -1) {
		if data[1] != "type-link" && data[1] != "type-video" && data[1] != "type-photo" {
			continue
		}

		post.Type = strings.TrimPrefix(data[1], "type-")

		pos := strings.Index(body, data[0])
		if pos > 0 {
			post.Text = strings.TrimSpace(body[:pos])
			post.After = strings.TrimSpace(body[pos+len(data[0]):])
		} else {
			post.Text = strings.TrimSpace(strings.ReplaceAll(body, data[0], ""))
			post.After = ""
		}

		attached := data[2]

		if m := imgPlainRe.FindStringSubmatch(attached); m != nil {
			if info, err := c.probeImage(m[1]); err == nil {
				if info.Width >= 500 && info.Width >= info.Height {
					post.Image = m[1]
				} else {
					post.Preview = m[1]
				}
			}
		}

		if m := bookmarkPairRe.FindStringSubmatch(attached); m != nil {
			post.URL = m[1]
			post.Title = m[2]
		}
		if post.URL != "" && (post.Type == "link" || post.Type == "video") {
			if m := urlPairRe.FindStringSubmatch(attached); m != nil {
				post.URL = m[1]
			}
		}

		if m := quotePairRe.FindStringSubmatch(attached); m != nil {
			post.Description = m[1]
		}
	}

	return post
}

// GetAttachmentData parses the structured [attachment] tag of a body. An
// absent tag falls back to the legacy format; an absent or unrecognized
// type yields an empty descriptor.
func (c *Converter) GetAttachmentData(body string) Attachment {
	match := attachSplitRe.FindStringSubmatch(body)
	if match == nil {
		return c.getOldAttachmentData(body)
	}

	attributes := match[2]

	var data Attachment
	data.Text = strings.TrimSpace(match[1])

	attachType := strings.ToLower(attrValue(attributes, "type"))
	switch attachType {
	case "link", "audio", "photo", "video":
		data.Type = attachType
	default:
		return Attachment{}
	}

	if u := attrValue(attributes, "url"); u != "" {
		data.URL = stdhtml.UnescapeString(u)
	}

	if title := attrValue(attributes, "title"); title != "" {
		// Round-trip the title through the converter so stray markup is
		// flattened, then defuse literal brackets.
		title = c.convert(stdhtml.UnescapeString(title), false, Format(1), false)
		title = stdhtml.UnescapeString(title)
		title = strings.NewReplacer("[", "&#91;", "]", "&#93;").Replace(title)
		data.Title = title
	}

	if image := attrValue(attributes, "image"); image != "" {
		data.Image = stdhtml.UnescapeString(image)
	}

	if preview := attrValue(attributes, "preview"); preview != "" {
		data.Preview = stdhtml.UnescapeString(preview)
	}

	data.Description = strings.TrimSpace(match[3])
	data.After = strings.TrimSpace(match[4])

	return data
}

// GetAttachedData is the rendering-level attachment policy: structured
// tag first, then the heuristic cascade over images, links and media
// embeds. A single unambiguous picture-link pair wins; multiple
// candidates degrade toward text/link typing.
func (c *Converter) GetAttachedData(body string, item *ItemHints) Attachment {
	if item == nil {
		item = &ItemHints{}
	}
	hasTitle := item.Title != ""
	plink := item.Plink

	post := c.GetAttachmentData(body)

	// Collect all linked local images, alternative description included.
	for _, picture := range imgAltLocalRe.FindAllStringSubmatch(body, -1) {
		if c.cfg.IsLocalImage(picture[1]) {
			post.Images = append(post.Images, AttachedImage{
				URL:         strings.ReplaceAll(picture[1], "-1.", "-0."),
				Description: picture[2],
			})
		}
	}
	if len(post.Images) > 0 && post.Images[0].Description != "" {
		post.ImageDescription = post.Images[0].Description
	}
	for _, picture := range imgBareLocalRe.FindAllStringSubmatch(body, -1) {
		if c.cfg.IsLocalImage(picture[1]) {
			post.Images = append(post.Images, AttachedImage{
				URL: strings.ReplaceAll(picture[1], "-1.", "-0."),
			})
		}
	}

	if post.Type == "" {
		// Simplify image codes
		body = imgSizedRe.ReplaceAllString(body, "[img]${3}[/img]")
		body = imgNamedRe.ReplaceAllString(body, "[img]${1}[/img]")
		post.Text = body

		if pictures := urlImgPairRe.FindAllStringSubmatch(body, -1); len(pictures) > 0 {
			if len(pictures) == 1 && !hasTitle {
				var data SiteInfo
				if item.ObjectType == ObjectTypeImage {
					// Replace the preview picture with the real picture
					data = SiteInfo{
						URL:  strings.ReplaceAll(pictures[0][2], "-1.", "-0."),
						Type: "photo",
					}
				} else {
					// Checking, if the link goes to a picture
					data, _ = c.probeSite(pictures[0][1], true)
				}

				// Photo posts to the own album are sometimes not detected
				// on the first pass, so force a fresh probe for those.
				if data.Type != "photo" && strings.Contains(pictures[0][1], "/photos/") {
					data, _ = c.probeSiteFresh(pictures[0][1], true)
				}

				if data.Type == "photo" {
					post.Type = "photo"
					if len(data.Images) > 0 {
						post.Image = data.Images[0].Src
						post.URL = data.URL
					} else {
						post.Image = data.URL
					}
					post.Preview = pictures[0][2]
					post.Text = strings.TrimSpace(strings.ReplaceAll(body, pictures[0][0], ""))
				} else if info, err := c.probeImage(pictures[0][1]); err == nil && strings.HasPrefix(info.Mime, "image/") {
					post.Type = "photo"
					post.Image = pictures[0][1]
					post.Preview = pictures[0][2]
					post.Text = strings.TrimSpace(strings.ReplaceAll(body, pictures[0][0], ""))
				}
			} else {
				post.Type = "link"
				post.URL = plink
				post.Image = pictures[0][2]
				post.Text = body
				for _, picture := range pictures {
					post.Text = strings.TrimSpace(strings.ReplaceAll(post.Text, picture[0], ""))
				}
			}
		} else if pictures := imgPlainRe.FindAllStringSubmatch(body, -1); len(pictures) > 0 {
			if len(pictures) == 1 && !hasTitle {
				post.Type = "photo"
				post.Image = pictures[0][1]
				post.Text = strings.ReplaceAll(body, pictures[0][0], "")
			} else {
				post.Type = "link"
				post.URL = plink
				post.Image = pictures[0][1]
				post.Text = body
				for _, picture := range pictures {
					post.Text = strings.TrimSpace(strings.ReplaceAll(post.Text, picture[0], ""))
				}
			}
		}

		// Test for the external links
		links := urlBareRe.FindAllStringSubmatch(post.Text, -1)
		links = append(links, urlAnyRe.FindAllStringSubmatch(post.Text, -1)...)

		// A single link covers link posts via API.
		if len(links) == 1 && post.Preview == "" && !hasTitle {
			post.Type = "link"
			post.URL = links[0][1]
		}

		// Count the external media references on top.
		for _, re := range []*regexp.Regexp{vimeoPairRe, youtubePairRe, videoPairRe, audioPairRe} {
			links = append(links, re.FindAllStringSubmatch(post.Text, -1)...)
		}

		// More than one reference means a blog-style text post.
		if len(links) > 1 {
			post.Type = ""
			post.URL = plink
		}

		if post.Type == "" {
			post.Type = "text"
			post.Text = strings.TrimSpace(body)
		}
	} else if post.URL != "" && post.Type == "video" {
		if data, err := c.probeSite(post.URL, true); err == nil && len(data.Images) > 0 {
			post.Image = data.Images[0].Src
		}
	}

	return post
}

// convertAttachment renders the attachment span of a body per target
// format. oEmbed gets the first shot for native and blog output; every
// failure path falls back to the type-* preview block.
func (c *Converter) convertAttachment(text string, format Format, tryOembed bool) string {
	data := c.GetAttachmentData(text)
	if data.Empty() || data.URL == "" {
		return text
	}

	if data.Title != "" {
		data.Title = htmlutil.StripTags(data.Title)
		data.Title = strings.NewReplacer("http://", "", "https://", "").Replace(data.Title)
	}

	if (strings.Contains(data.Text, "[img=") || strings.Contains(data.Text, "[img]") ||
		c.cfg.AlwaysShowPreview) && data.Image != "" {
		data.Preview = data.Image
		data.Image = ""
	}

	var rendered string
	switch {
	case format.is(FormatOStatus, FormatActivityPub):
		rendered = shortenedLink(data.URL)
	case format != FormatBlog && format != FormatDisplay:
		rendered = `<a href="` + data.URL + `" target="_blank">` + data.Title + `</a><br>`
	default:
		if tryOembed && c.oembedAllowed(data.URL) {
			if html, err := c.oembed.HTML(data.URL, data.Title); err == nil {
				rendered = html
				break
			}
		}
		rendered = c.renderAttachmentBlock(data, format)
	}

	out := strings.TrimSpace(data.Text + " " + rendered + " " + data.After)
	return out
}

// renderAttachmentBlock is the non-oEmbed preview block.
func (c *Converter) renderAttachmentBlock(data Attachment, format Format) string {
	if data.Title == "" {
		data.Title = data.URL
	}

	var b strings.Builder
	if format != FormatBlog {
		b.WriteString(`<div class="type-` + data.Type + `">`)
	}

	if data.Title != "" && data.URL != "" {
		if data.Image != "" && data.Text == "" && data.Type == "photo" {
			b.WriteString(`<a href="` + data.URL + `" target="_blank"><img src="` +
				c.proxyURL(data.Image, format) + `" alt="" title="` + data.Title +
				`" class="attachment-image" /></a>`)
		} else {
			if data.Image != "" {
				b.WriteString(`<a href="` + data.URL + `" target="_blank"><img src="` +
					c.proxyURL(data.Image, format) + `" alt="" title="` + data.Title +
					`" class="attachment-image" /></a><br />`)
			} else if data.Preview != "" {
				b.WriteString(`<a href="` + data.URL + `" target="_blank"><img src="` +
					c.proxyURL(data.Preview, format) + `" alt="" title="` + data.Title +
					`" class="attachment-preview" /></a><br />`)
			}
			b.WriteString(`<h4><a href="` + data.URL + `">` + data.Title + `</a></h4>`)
		}
	}

	if data.Description != "" && data.Description != data.Title {
		// Flatten the description before re-rendering so remote markup
		// cannot smuggle anything in.
		desc := c.convert(htmlutil.StripTags(data.Description), false, format, false)
		b.WriteString(`<blockquote>` + strings.TrimSpace(desc) + `</blockquote>`)
	}

	if data.URL != "" {
		b.WriteString(`<sup><a href="` + data.URL + `">` + urlHost(data.URL) + `</a></sup>`)
	}

	if format != FormatBlog {
		b.WriteString(`</div>`)
	}

	return b.String()
}

// RemoveShareInformation strips the attachment decoration from a body,
// leaving the bare text plus at most one link. Diaspora-bound exports use
// this because the target platform renders its own preview.
func (c *Converter) RemoveShareInformation(text string, plaintext, nolink bool) string {
	data := c.GetAttachmentData(text)

	if data.Empty() && data.Text == "" {
		return text
	}
	if nolink {
		return data.Text + data.After
	}

	title := stdhtml.EscapeString(data.Title)
	bodyText := stdhtml.EscapeString(data.Text)
	if plaintext || (title != "" && strings.Contains(bodyText, title)) {
		data.Title = data.URL
	} else if bodyText != "" && strings.Contains(title, bodyText) {
		data.Text = data.Title
		data.Title = data.URL
	}

	if data.Text == "" && data.Title != "" && data.URL == "" {
		return data.Title + data.After
	}

	// Skip the link when the post already contains it.
	if data.URL != "" && strings.Index(data.Text, data.URL) > 0 {
		return data.Text + data.After
	}

	out := data.Text
	if data.URL != "" && data.Title != "" {
		out += "\n[url=" + data.URL + "]" + data.Title + "[/url]"
	} else if data.URL != "" {
		out += "\n[url]" + data.URL + "[/url]"
	}

	return out + "\n" + data.After
}

var (
	cleanPicNamedRe = regexp.MustCompile(`(?is)\[url=([^\[\]]*)\]\[img=(.*?)\](.*?)\[/img\]\[/url\]`)
	cleanPicBareRe  = regexp.MustCompile(`(?is)\[url=([^\[\]]*)\]\[img\](.*?)\[/img\]\[/url\]`)
)

// CleanPictureLinks unwraps picture-link pairs whose link target is
// itself a picture, embedding the target directly. Results of the remote
// probes are memoized in the cache.
func (c *Converter) CleanPictureLinks(text string) string {
	text = replaceAllSubmatchFunc(cleanPicNamedRe, text, c.cleanPictureLink)
	text = replaceAllSubmatchFunc(cleanPicBareRe, text, func(m []string) string {
		return c.cleanPictureLink([]string{m[0], m[1], m[2], ""})
	})
	return text
}

func (c *Converter) cleanPictureLink(m []string) string {
	linkURL, imgURL, alt := m[1], m[2], m[3]

	if cached, ok := c.cacheGet("clean-picture:" + linkURL); ok {
		return cached
	}

	var out string
	if info, err := c.probeImage(linkURL); err == nil && strings.HasPrefix(info.Mime, "image/") {
		// The link points to a picture, embed it directly.
		out = "[img]" + linkURL + "[/img]"
	} else {
		if alt != "" {
			out = "[img=" + imgURL + "]" + alt + "[/img]"
		} else {
			out = "[img]" + imgURL + "[/img]"
		}

		// Maybe the page behind the link advertises a picture.
		if data, err := c.probeSite(linkURL, true); err == nil && len(data.Images) > 0 {
			if alt != "" {
				out = "[img=" + data.Images[0].Src + "]" + alt + "[/img]"
			} else {
				out = "[img]" + data.Images[0].Src + "[/img]"
			}
		}
	}

	c.cacheSet("clean-picture:"+linkURL, out)
	return out
}

// urlHost returns the host part of a URL, or the URL itself when it does
// not parse.
func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
