package bbcodify

import (
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/araddon/dateparse"
)

// ShareCallback renders one [share] block. attributes carries the block
// attribute values completed by the directory lookup, authorContact is
// the resolved contact record, content is the inner block content and
// isQuoteShare reports whether any text precedes the block. The return
// value replaces the whole [share]...[/share] span.
type ShareCallback func(attributes ShareAttributes, authorContact Contact, content string, isQuoteShare bool) string

var (
	shareBlockRe  = regexp.MustCompile(`(?is)(.*?)\[share(.*?)\](.*?)\[/share\]`)
	addrFromURLRe = regexp.MustCompile(`(?i)^https?://([^/]*)/(?:profile|u|channel|user)/([^/]*)`)
)

// ConvertShare replaces every [share] block of text through callback.
// Attribute values accept both quote styles and are entity-decoded. The
// author identity is resolved against the contact directory, which may
// register a previously unknown identity; directory data overrides the
// block attributes where available.
func (c *Converter) ConvertShare(text string, callback ShareCallback) string {
	return replaceAllSubmatchFunc(shareBlockRe, text, func(m []string) string {
		attributeString := m[2]

		attrs := ShareAttributes{
			Author:  stdhtml.UnescapeString(attrValue(attributeString, "author")),
			Profile: stdhtml.UnescapeString(attrValue(attributeString, "profile")),
			Avatar:  stdhtml.UnescapeString(attrValue(attributeString, "avatar")),
			Link:    stdhtml.UnescapeString(attrValue(attributeString, "link")),
			Posted:  stdhtml.UnescapeString(attrValue(attributeString, "posted")),
		}

		// The lookup also registers a previously unknown contact, seeded
		// from the block attributes.
		hints := Contact{
			URL:   attrs.Profile,
			Name:  attrs.Author,
			Photo: attrs.Avatar,
		}

		var authorContact Contact
		if c.directory != nil {
			contact, err := c.directory.Resolve(attrs.Profile, hints)
			if err != nil {
				Logger.Printf("contact lookup failed for %s: %v", attrs.Profile, err)
			} else {
				authorContact = contact
			}
		}
		if authorContact.Addr == "" {
			authorContact.Addr = addrFromProfileURL(attrs.Profile)
		}

		if authorContact.Name != "" {
			attrs.Author = authorContact.Name
		}
		if authorContact.Micro != "" {
			attrs.Avatar = authorContact.Micro
		}
		if authorContact.URL != "" {
			attrs.Profile = authorContact.URL
		}

		if attrs.Avatar != "" {
			attrs.Avatar = c.proxy.Proxy(attrs.Avatar, ProxySizeThumb)
		}

		return m[1] + callback(attrs, authorContact, m[3], strings.TrimSpace(m[1]) != "")
	})
}

// defaultShareCallback selects the share rendering per target format.
func (c *Converter) defaultShareCallback(format Format, tryOembed bool) ShareCallback {
	return func(attrs ShareAttributes, authorContact Contact, content string, isQuoteShare bool) string {
		return c.renderShare(attrs, authorContact, content, isQuoteShare, format, tryOembed)
	}
}

func (c *Converter) renderShare(attrs ShareAttributes, authorContact Contact, content string, isQuoteShare bool, format Format, tryOembed bool) string {
	mention := formatMention(attrs.Profile, attrs.Author)

	switch format {
	case FormatAPI, FormatReducedLinks:
		// The recycling symbol carries a trailing space of its own, then
		// the address is joined with another one.
		return br(isQuoteShare) + "<p>♲  " + authorContact.Addr + ": </p>\n" + content

	case FormatDiaspora:
		if strings.HasPrefix(normalizeLink(attrs.Link), "http://twitter.com/") {
			return hr(isQuoteShare) + `<p><a href="` + attrs.Link + `">` + attrs.Link + "</a></p>\n"
		}
		headline := `<p><b>♲ <a href="` + attrs.Profile + `">` + attrs.Author + "</a>:</b></p>\n"
		if attrs.Posted != "" && attrs.Link != "" {
			headline = `<p><b>♲ <a href="` + attrs.Profile + `">` + attrs.Author +
				`</a></b> - <a href="` + attrs.Link + `">` + attrs.Posted + " GMT</a></p>\n"
		}
		out := hr(isQuoteShare) + headline + "<blockquote>" + strings.TrimSpace(content) + "</blockquote>\n"
		if attrs.Posted == "" && attrs.Link != "" {
			out += `<p><a href="` + attrs.Link + `">[Source]</a></p>` + "\n"
		}
		return out

	case FormatBlog:
		headline := "<p><b>♲ " +
			c.t(`<a href="%s" target="_blank">%s</a> %s`, attrs.Link, mention, attrs.Posted) +
			":</b></p>\n"
		return hr(isQuoteShare) + headline +
			`<blockquote class="shared_content">` + strings.TrimSpace(content) + "</blockquote>\n"

	case FormatOStatus, FormatActivityPub:
		return br(isQuoteShare) + "<p>♲  @" + authorContact.Addr + ": " + content + "</p>\n"

	default:
		// Quoted tweets become rich attachments to avoid nested embeds.
		if strings.HasPrefix(normalizeLink(attrs.Link), "http://twitter.com/") && c.oembedAllowed(attrs.Link) {
			if tryOembed {
				if html, err := c.oembed.HTML(attrs.Link, ""); err == nil {
					return br(isQuoteShare) + html
				}
			}
			return br(isQuoteShare) + "[bookmark=" + attrs.Link + "]" + content + "[/bookmark]"
		}

		prefix := ""
		if isQuoteShare {
			prefix = "\n"
		}
		return prefix + c.renderSharedContent(attrs, content)
	}
}

// renderSharedContent is the native shared-content block.
func (c *Converter) renderSharedContent(attrs ShareAttributes, content string) string {
	var b strings.Builder
	b.WriteString(`<div class="shared-wrapper">` + "\n")
	b.WriteString(`<div class="shared_header">` + "\n")
	if attrs.Avatar != "" {
		b.WriteString(`<a href="` + attrs.Profile + `" target="_blank"><img src="` +
			attrs.Avatar + `" height="32" width="32" alt=""></a>` + "\n")
	}
	b.WriteString(`<span><a href="` + attrs.Profile + `" target="_blank">` + attrs.Author + `</a></span>` + "\n")
	if attrs.Link != "" {
		b.WriteString(`<span class="shared-posted"><a href="` + attrs.Link + `" target="_blank">` +
			c.displayPosted(attrs.Posted) + `</a></span>` + "\n")
	}
	b.WriteString(`</div>` + "\n")
	b.WriteString(`<blockquote class="shared_content">` + strings.TrimSpace(content) + `</blockquote>` + "\n")
	b.WriteString(`</div>`)
	return b.String()
}

// displayPosted normalizes the posted attribute for display. Unparseable
// values are shown as-is.
func (c *Converter) displayPosted(posted string) string {
	if posted == "" {
		return ""
	}
	t, err := dateparse.ParseAny(posted)
	if err != nil {
		return posted
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// addrFromProfileURL guesses a user@host address from a profile URL.
func addrFromProfileURL(profileURL string) string {
	m := addrFromURLRe.FindStringSubmatch(profileURL)
	if m == nil {
		return ""
	}
	return m[2] + "@" + m[1]
}

// formatMention renders "Name (user@host)".
func formatMention(profileURL, name string) string {
	return name + " (" + addrFromProfileURL(profileURL) + ")"
}

// normalizeLink levels scheme and www differences for URL comparison.
func normalizeLink(link string) string {
	link = strings.ReplaceAll(link, "https:", "http:")
	link = strings.ReplaceAll(link, "//www.", "//")
	return strings.TrimRight(link, "/")
}

func br(isQuoteShare bool) string {
	if isQuoteShare {
		return "<br />"
	}
	return ""
}

func hr(isQuoteShare bool) string {
	if isQuoteShare {
		return "<hr />"
	}
	return ""
}
