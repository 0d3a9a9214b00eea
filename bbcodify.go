// Package bbcodify converts the square-bracket markup used by federated
// social platforms into HTML, Markdown and plain text.
//
// The conversion is a fixed sequence of text transformations whose order
// is load-bearing: code blocks and embedded data images are extracted
// first, block structure and inline formatting are rewritten next, link
// handling and mention rendering depend on the target format, and the
// extracted fragments are restored at the end. Remote lookups (embeds,
// page metadata, image probing, contact resolution) go through the
// collaborator interfaces and every one of them degrades to a plain
// rendering when unavailable.
//
// Main API:
//   - Convert(): markup to HTML for a target Format
//   - ToMarkdown() / FromMarkdown(): exchange with Markdown systems
//   - ToPlaintext(): naked text extraction
//   - GetTags(): hashtag and mention harvesting
//
// Example:
//
//	conv := bbcodify.New(
//	    bbcodify.WithBaseURL("https://example.net"),
//	)
//	html := conv.Convert("[b]bold[/b]", false, bbcodify.FormatDisplay, false)
package bbcodify

import "sync"

var (
	defaultConverter     *Converter
	defaultConverterOnce sync.Once
)

// Default returns the shared Converter built from the default
// configuration. Use New for a customized instance.
func Default() *Converter {
	defaultConverterOnce.Do(func() {
		defaultConverter = New()
	})
	return defaultConverter
}

// Convert renders text as HTML with the default Converter.
func Convert(text string, tryOembed bool, format Format, forPlaintext bool) string {
	return Default().Convert(text, tryOembed, format, forPlaintext)
}

// ToMarkdown converts text to Markdown with the default Converter.
func ToMarkdown(text string, forDiaspora bool) string {
	return Default().ToMarkdown(text, forDiaspora)
}

// ToPlaintext strips text down to plain text with the default Converter.
func ToPlaintext(text string, keepURLs bool) string {
	return Default().ToPlaintext(text, keepURLs)
}
