package bbcodify

import (
	"regexp"
	"strconv"
	"strings"
)

// Protection passes. Code blocks and embedded data images are pulled out
// into numbered placeholders before the regex-heavy tag cascade runs;
// very large embedded payloads make pattern matching unacceptably slow.
// Restoration happens after all other processing and must be total for
// well-formed input.

var (
	codeBlockRe   = regexp.MustCompile(`(?is)\[code(?:=([^\]]*))?\](.*?)\[/code\]`)
	codeRestoreRe = regexp.MustCompile(`(?i)#codeblock-([0-9]+)#`)

	noparseRe = regexp.MustCompile(`(?is)\[noparse\](.*?)\[/noparse\]`)
	nobbRe    = regexp.MustCompile(`(?is)\[nobb\](.*?)\[/nobb\]`)
	preRe     = regexp.MustCompile(`(?is)\[pre\](.*?)\[/pre\]`)

	bracketSpacefyRe   = regexp.MustCompile(`\[(.*?)\]`)
	bracketUnspacefyRe = regexp.MustCompile(`\[ (.*?) \]`)
)

// extractCodeBlocks replaces every [code] span with a #codeblock-N#
// placeholder and returns the rendered blocks in extraction order.
// Multi-line payloads render as <pre><code>, single-line ones as <code>.
func extractCodeBlocks(text string) (string, []string) {
	var blocks []string

	text = codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		m := codeBlockRe.FindStringSubmatch(match)
		placeholder := "#codeblock-" + strconv.Itoa(len(blocks)) + "#"
		if strings.Contains(m[2], "\n") {
			blocks = append(blocks, `<pre><code class="language-`+strings.TrimSpace(m[1])+`">`+
				strings.Trim(m[2], "\n\r")+`</code></pre>`)
		} else {
			blocks = append(blocks, "<code>"+m[2]+"</code>")
		}
		return placeholder
	})

	return text, blocks
}

// restoreCodeBlocks replaces the placeholders with their rendered form,
// in extraction order. Unknown indices are left untouched.
func restoreCodeBlocks(text string, blocks []string) string {
	if len(blocks) == 0 {
		return text
	}
	return codeRestoreRe.ReplaceAllStringFunc(text, func(match string) string {
		m := codeRestoreRe.FindStringSubmatch(match)
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= len(blocks) {
			return match
		}
		return blocks[idx]
	})
}

// spacefyBrackets hides the inner tags of one noparse-family span from
// the parser: [i] turns into [ i ].
func spacefyBrackets(match, captured string) string {
	spacefied := bracketSpacefyRe.ReplaceAllString(captured, "[ ${1} ]")
	return strings.ReplaceAll(match, captured, spacefied)
}

// escapeNoparse must run as the very first content-shaping step so the
// protected spans survive the whole cascade untouched.
func escapeNoparse(text string) string {
	for _, re := range []*regexp.Regexp{noparseRe, nobbRe, preRe} {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			m := re.FindStringSubmatch(match)
			return spacefyBrackets(match, m[1])
		})
	}
	return text
}

// unescapeNoparse reverses escapeNoparse and drops the wrapping tag. It
// must run as the last content-shaping step.
func unescapeNoparse(text string) string {
	for _, re := range []*regexp.Regexp{noparseRe, nobbRe, preRe} {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			m := re.FindStringSubmatch(match)
			return bracketUnspacefyRe.ReplaceAllString(m[1], "[${1}]")
		})
	}
	return text
}

// imagePlaceholder builds the token substituted for the nth extracted
// embedded image.
func imagePlaceholder(n int) string {
	return "[$#saved_image" + strconv.Itoa(n) + "#$]"
}

// extractDataImages pulls inline data: payloads out of [img] tags into
// numbered placeholders. The scan is linear on purpose: regex engines
// choke on multi-megabyte data URIs.
func extractDataImages(body string) (string, []string) {
	var images []string
	var out strings.Builder

	rest := body
	for {
		start := strings.Index(rest, "[img")
		if start < 0 {
			break
		}
		closeRel := strings.Index(rest[start:], "]")
		endRel := strings.Index(rest[start:], "[/img]")
		if closeRel < 0 || endRel < 0 {
			break
		}
		payloadStart := start + closeRel + 1
		end := start + endRel

		if strings.HasPrefix(rest[payloadStart:], "data:") && payloadStart <= end {
			images = append(images, rest[payloadStart:end])
			out.WriteString(rest[:start])
			out.WriteString(imagePlaceholder(len(images) - 1))
		} else {
			out.WriteString(rest[:end+len("[/img]")])
		}
		rest = rest[end+len("[/img]"):]
	}
	out.WriteString(rest)

	return out.String(), images
}

// restoreDataImages substitutes each placeholder with an <img> tag whose
// source went through the proxy rewriter. Restoration order matches
// extraction order.
func restoreDataImages(body string, images []string, proxy func(string) string, alt string) string {
	for i, image := range images {
		body = strings.ReplaceAll(body, imagePlaceholder(i),
			`<img src="`+proxy(image)+`" alt="`+alt+`" />`)
	}
	return body
}
