package bbcodify

import (
	"regexp"
	"strings"
)

var (
	tagHashtagLinkRe = regexp.MustCompile(`(?is)#\[url=([^\[\]]*)\](.*?)\[/url\]`)
	tagCodeRe        = regexp.MustCompile(`(?s)\[code.*?\].*?\[/code\]`)
	tagBracketRe     = regexp.MustCompile(`(?s)\[(.*?)\]`)

	// Full names can contain a space between first and last name.
	tagFullNameRe = regexp.MustCompile(`(@[^ \r\n,:?]+ [^ \r\n@,:?]+)([ \r\n@,:?]|$)`)
	tagSingleRe   = regexp.MustCompile(`([!#@][^\^ \r\n,;:?]+)([ \r\n,;:?]|$)`)

	wordCharRe = regexp.MustCompile(`[a-zA-Z0-9/]`)
)

// GetTags pulls all #hashtags and @person mentions out of a body.
// Mentions spanning a first and last name are kept whole; a trailing
// sentence period is stripped from any tag.
func GetTags(body string) []string {
	var ret []string

	// Hashtag links become plain hashtags.
	body = tagHashtagLinkRe.ReplaceAllString(body, "#${2}")

	// Anything inside a code block is ignored.
	body = tagCodeRe.ReplaceAllString(body, "")

	// Force line feeds at tags, then drop the tags themselves so their
	// attribute values never look like mentions.
	body = strings.NewReplacer("[", "\n[", "]", "]\n").Replace(body)
	body = tagBracketRe.ReplaceAllString(body, "")

	for _, m := range tagFullNameRe.FindAllStringSubmatch(body, -1) {
		match := m[1]
		if strings.Contains(match, "]") {
			// Might be inside a color tag, leave it alone.
			continue
		}
		ret = append(ret, strings.TrimSuffix(match, "."))
	}

	for _, m := range tagSingleRe.FindAllStringSubmatch(body, -1) {
		match := strings.TrimSuffix(m[1], ".")
		if strings.Contains(match, "]") {
			continue
		}
		// Strictly numeric tags like #1 are list markers, not tags.
		if strings.HasPrefix(match, "#") && isDigits(match[1:]) {
			continue
		}
		// Try not to catch url fragments.
		if idx := strings.Index(body, match); idx > 0 && wordCharRe.MatchString(body[idx-1:idx]) {
			continue
		}
		ret = append(ret, match)
	}

	return ret
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
