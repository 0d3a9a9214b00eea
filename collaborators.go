package bbcodify

import (
	"fmt"
	"sync"

	"github.com/riverfjs/bbcodify-go/internal/types"
)

// The converter reaches the outside world only through the interfaces
// below. Every call site degrades to a plain-link or plain-text rendering
// when the collaborator is missing or fails; no failure aborts a
// conversion. Network-backed implementations should enforce their own
// timeouts.

// OembedResolver resolves a URL into rich embed HTML.
type OembedResolver interface {
	// HTML returns the embed markup for url. title may be empty.
	HTML(url, title string) (string, error)
	// IsAllowed reports whether remote embedding is permitted for url.
	IsAllowed(url string) bool
}

// ImageProber fetches the geometry and mime type of a remote image.
type ImageProber interface {
	Probe(url string) (ImageInfo, error)
}

// SiteProber fetches metadata of a remote page, optionally including its
// preview images.
type SiteProber interface {
	Probe(url string, withImages bool) (SiteInfo, error)
}

// Directory resolves an author identity by profile URL. Implementations
// may register a previously unknown identity as a side effect, seeded
// from the hint record.
type Directory interface {
	Resolve(profileURL string, hints Contact) (Contact, error)
}

// SmilieReplacer substitutes graphical smilies into rendered text.
type SmilieReplacer interface {
	Replace(text string) string
}

// EventHandler recognizes and renders calendar events embedded in a body.
type EventHandler interface {
	// Parse extracts an event from the body, reporting whether one was
	// recognized.
	Parse(text string) (EventDescriptor, bool)
	// Render produces the HTML block replacing the event markup.
	Render(ev EventDescriptor) string
}

// Proxy sizes understood by URLProxy implementations.
const (
	ProxySizeLarge = "large"
	ProxySizeThumb = "thumb"
)

// URLProxy rewrites a media URL through the local proxy.
type URLProxy interface {
	Proxy(url, size string) string
}

// LocationRenderer renders map tags for a named location or a
// coordinate pair.
type LocationRenderer interface {
	Location(location string, format Format) string
	Coordinates(coordinates string, format Format) string
}

// HTMLToMarkdown converts rendered HTML into Markdown.
type HTMLToMarkdown interface {
	Convert(html string) (string, error)
}

// CSSSanitizer cleans user-supplied style and class values.
type CSSSanitizer interface {
	Sanitize(value string) string
}

// Translator looks up a localized string. Arguments are interpolated
// with fmt verbs. The default implementation returns the English key.
type Translator interface {
	T(key string, args ...interface{}) string
}

// Cache is re-exported for collaborator implementations.
type Cache = types.Cache

// englishTranslator returns keys untranslated.
type englishTranslator struct{}

func (englishTranslator) T(key string, args ...interface{}) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf(key, args...)
}

// memoryCache is the default in-process Cache. The conversion core treats
// the cache as an external store, so any KV backend can replace it.
type memoryCache struct {
	m sync.Map
}

func (c *memoryCache) Get(key string) (string, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *memoryCache) Set(key, value string) {
	c.m.Store(key, value)
}
