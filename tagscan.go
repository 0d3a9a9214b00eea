package bbcodify

import (
	"regexp"
	"strings"
)

// tagReplaceCeiling bounds ReplaceInTag against runaway input. The value
// is a compatibility constant; changing it can change observable output.
const tagReplaceCeiling = 1000

// TagBracket holds the byte offsets of one bracket pair of a tag.
type TagBracket struct {
	// Open is the offset of the opening bracket.
	Open int
	// Close is the offset right after the closing bracket.
	Close int
	// Equal is the offset right after the "=" of an attributed open tag,
	// or -1 when the tag carries no attribute.
	Equal int
}

// TagPosition is the span of one [name]...[/name] occurrence.
// Start.Open < Start.Close <= End.Open < End.Close always holds for a
// found position.
type TagPosition struct {
	Start TagBracket
	End   TagBracket
}

// GetTagPosition returns the bracket offsets of a set of opening and
// closing tags, skipping the first occurrences occurrences. The second
// return value is false when no complete occurrence exists.
func GetTagPosition(text, name string, occurrences int) (TagPosition, bool) {
	if occurrences < 0 {
		occurrences = 0
	}

	startOpen := -1
	for i := 0; i <= occurrences; i++ {
		// allow [name= type tags
		rel := strings.Index(text[startOpen+1:], "["+name)
		if rel < 0 {
			return TagPosition{}, false
		}
		startOpen += 1 + rel
	}

	startClose := strings.Index(text[startOpen:], "]")
	if startClose < 0 {
		return TagPosition{}, false
	}
	startClose += startOpen + 1

	startEqual := strings.Index(text[startOpen:startClose], "=")
	if startEqual >= 0 {
		startEqual += startOpen + 1
	}

	endOpen := strings.Index(text[startClose:], "[/"+name+"]")
	if endOpen < 0 {
		return TagPosition{}, false
	}
	endOpen += startClose

	pos := TagPosition{
		Start: TagBracket{Open: startOpen, Close: startClose, Equal: -1},
		End:   TagBracket{Open: endOpen, Close: endOpen + len("[/"+name+"]"), Equal: -1},
	}
	if startEqual >= 0 {
		pos.Start.Equal = startEqual
	}

	return pos, true
}

// ReplaceInTag applies pattern/replace only within the spans of the named
// tag, occurrence after occurrence, and reassembles the full text. The
// loop is bounded; on hitting the ceiling the text is returned as far as
// it got.
func ReplaceInTag(pattern *regexp.Regexp, replace, name, text string) string {
	occurrences := 0
	pos, found := GetTagPosition(text, name, occurrences)
	for found && occurrences < tagReplaceCeiling {
		occurrences++

		start := text[:pos.Start.Open]
		subject := text[pos.Start.Open:pos.End.Close]
		end := text[pos.End.Close:]

		text = start + pattern.ReplaceAllString(subject, replace) + end

		pos, found = GetTagPosition(text, name, occurrences)
	}

	return text
}
