package bbcodify

import (
	stdhtml "html"
	"regexp"
	"strconv"
	"strings"
)

var anyImgRe = regexp.MustCompile(`(?is)\[img.*?\](.*?)\[/img\]`)

// ScaleExternalImages rewrites oversized remote images to a scaled-down
// size tag, optionally followed by a link to the full-size original.
// Locally hosted images are never touched.
func (c *Converter) ScaleExternalImages(body string, includeLink bool) string {
	if c.cfg.NoViewFullSize {
		includeLink = false
	}

	// Picture addresses can contain special characters.
	s := stdhtml.UnescapeString(body)

	localHost := strings.TrimPrefix(urlHost(c.cfg.BaseURL), "www.")

	for _, m := range anyImgRe.FindAllStringSubmatch(s, -1) {
		if localHost != "" && containsFold(m[1], localHost) {
			continue
		}

		info, err := c.probeImage(m[1])
		if err != nil {
			Logger.Printf("image scaling: probe %s: %v", m[1], err)
			return body
		}
		if info.Width <= 640 && info.Height <= 640 {
			continue
		}

		width, height := scaleDimensions(info.Width, info.Height, 640)
		repl := "[img=" + strconv.Itoa(width) + "x" + strconv.Itoa(height) + "]" + m[1] + "[/img]\n"
		if includeLink {
			repl += "[url=" + m[1] + "]" + c.t("view full size") + "[/url]\n"
		}
		s = strings.Replace(s, m[0], repl, 1)
	}

	return escapeNoQuotes(s)
}

// scaleDimensions fits a width/height pair into a square bounding box.
func scaleDimensions(width, height, max int) (int, int) {
	if width >= height {
		return max, height * max / width
	}
	return width * max / height, max
}

var noQuotesEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeNoQuotes(s string) string {
	return noQuotesEscaper.Replace(s)
}
