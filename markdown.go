package bbcodify

import (
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/riverfjs/bbcodify-go/internal/htmlutil"
	"github.com/riverfjs/bbcodify-go/internal/mdbb"
)

// markdownConverter is the default HTMLToMarkdown collaborator.
type markdownConverter struct {
	conv *converter.Converter
}

func newHTMLToMarkdown() markdownConverter {
	return markdownConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (m markdownConverter) Convert(html string) (string, error) {
	return m.conv.ConvertString(html)
}

var (
	hashtagFlattenRe = regexp.MustCompile(`(?i)#\[url=([^\[\]]*)\](.*?)\[/url\]`)
	hashtagAllRe     = regexp.MustCompile(`(?is)#\[url=([^\[\]]*)\](.*?)\[/url\]`)
	imgSizedPlainRe  = regexp.MustCompile(`(?is)\[img=([0-9]*)x([0-9]*)\](.*?)\[/img\]`)
	mdMentionRe      = regexp.MustCompile(`(?is)([@!])\[(.*?)\]\(([^\[\]]*?)\)`)
	escapedHashtagRe = regexp.MustCompile(`#[\pL\pN_\\]+`)

	entityMasker = strings.NewReplacer("&lt;", "&_lt_;", "&gt;", "&_gt_;", "&amp;", "&_amp_;")
	// The markdown renderer escapes the underscores of the mask.
	entityUnmasker = strings.NewReplacer(
		`&\_lt\_;`, "&lt;", `&\_gt\_;`, "&gt;", `&\_amp\_;`, "&amp;",
		"&_lt_;", "&lt;", "&_gt_;", "&gt;", "&_amp_;", "&amp;",
	)
)

// ToMarkdown converts a markup body for Markdown-speaking systems.
// forDiaspora applies the Diaspora peculiarities: shared-post summaries
// are dropped, hashtags are appended when the conversion swallowed them
// and mentions use the {Name; user@host} form.
func (c *Converter) ToMarkdown(text string, forDiaspora bool) string {
	original := text

	// Diaspora builds its own summary for links.
	if forDiaspora {
		text = c.RemoveShareInformation(text, false, false)
	}

	// Hashtag links become plain hashtags with underscored spaces.
	text = replaceAllSubmatchFunc(hashtagFlattenRe, text, func(m []string) string {
		return "#" + strings.ReplaceAll(m[2], " ", "_")
	})

	// Markdown knows no image sizes.
	text = imgSizedPlainRe.ReplaceAllString(text, "[img]${3}[/img]")

	if forDiaspora {
		text = c.convert(text, false, FormatDiaspora, false)

		// Re-append tags the conversion swallowed.
		var tagline strings.Builder
		decoded := stdhtml.UnescapeString(text)
		for _, m := range hashtagAllRe.FindAllStringSubmatch(original, -1) {
			tag := stdhtml.UnescapeString(m[2])
			if strings.Index(decoded, "#"+tag) <= 0 {
				tagline.WriteString("#" + tag + " ")
			}
		}
		if tagline.Len() > 0 {
			text = text + " " + tagline.String()
		}
	} else {
		text = c.convert(text, false, FormatBlog, false)
	}

	// Mask entities the markdown renderer would recode.
	text = entityMasker.Replace(text)

	// A quote directly after a link needs a line of its own.
	text = strings.ReplaceAll(text, "</a><blockquote>", "</a><br><blockquote>")

	md, err := c.markdown.Convert(text)
	if err != nil {
		Logger.Printf("markdown conversion failed: %v", err)
		md = htmlutil.ToPlaintext(text, true)
	}
	text = entityUnmasker.Replace(md)

	// Libertree has a problem with escaped hashtags. The renderer also
	// escapes the underscores of flattened multi-word hashtags.
	text = strings.ReplaceAll(text, `\#`, "#")
	text = escapedHashtagRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, `\_`, "_")
	})

	// Leading or trailing whitespace breaks Diaspora signatures.
	text = strings.TrimSpace(text)

	if forDiaspora {
		text = replaceAllSubmatchFunc(mdMentionRe, text, c.diasporaMention)
	}

	return text
}

// diasporaMention rewrites a rendered markdown mention link into the
// Diaspora {Name; user@host} form, resolving the address through the
// directory.
func (c *Converter) diasporaMention(m []string) string {
	if c.directory == nil {
		return m[0]
	}
	contact, err := c.directory.Resolve(m[3], Contact{})
	if err != nil || contact.Addr == "" {
		return m[0]
	}
	return m[1] + "{" + m[2] + "; " + contact.Addr + "}"
}

// FromMarkdown converts a Markdown body into markup tags, for posts
// arriving from Markdown-speaking systems.
func FromMarkdown(markdown string) string {
	return mdbb.Convert(markdown)
}

// ToPlaintext strips a markup body down to plain text. With keepURLs the
// link targets stay in the text in brackets.
func (c *Converter) ToPlaintext(text string, keepURLs bool) string {
	return htmlutil.ToPlaintext(c.convert(text, false, FormatDisplay, true), keepURLs)
}
