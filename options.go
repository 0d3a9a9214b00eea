package bbcodify

// Option configures a Converter.
type Option func(*Converter)

// WithConfig replaces the whole configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Converter) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithBaseURL sets the absolute base URL of the local instance.
func WithBaseURL(baseURL string) Option {
	return func(c *Converter) {
		c.cfg.BaseURL = baseURL
	}
}

// WithVideoSize sets the dimensions of native video and iframe embeds.
func WithVideoSize(width, height int) Option {
	return func(c *Converter) {
		c.cfg.VideoWidth = width
		c.cfg.VideoHeight = height
	}
}

// WithAllowedLinkProtocols extends the href scheme allow-list.
func WithAllowedLinkProtocols(protocols []string) Option {
	return func(c *Converter) {
		c.cfg.AllowedLinkProtocols = protocols
	}
}

// WithRemoveMultiplicatedLines enables blank-line deduplication around
// block-level tags.
func WithRemoveMultiplicatedLines(enable bool) Option {
	return func(c *Converter) {
		c.cfg.RemoveMultiplicatedLines = enable
	}
}

// WithItemCache marks item-level caching as active, which enables the
// final HTML cleanup pass for display conversions too.
func WithItemCache(enable bool) Option {
	return func(c *Converter) {
		c.cfg.ItemCache = enable
	}
}

// WithLocalImageCheck sets the predicate deciding whether an image URL is
// hosted locally.
func WithLocalImageCheck(isLocal func(url string) bool) Option {
	return func(c *Converter) {
		if isLocal != nil {
			c.cfg.IsLocalImage = isLocal
		}
	}
}

// WithOembed sets the oEmbed resolver.
func WithOembed(resolver OembedResolver) Option {
	return func(c *Converter) { c.oembed = resolver }
}

// WithImageProber sets the remote image prober.
func WithImageProber(prober ImageProber) Option {
	return func(c *Converter) { c.imageProber = prober }
}

// WithSiteProber sets the remote page metadata prober.
func WithSiteProber(prober SiteProber) Option {
	return func(c *Converter) { c.siteProber = prober }
}

// WithDirectory sets the contact directory.
func WithDirectory(directory Directory) Option {
	return func(c *Converter) { c.directory = directory }
}

// WithCache sets the memoization cache for collaborator calls.
func WithCache(cache Cache) Option {
	return func(c *Converter) { c.cache = cache }
}

// WithSmilies sets the smilie replacer.
func WithSmilies(smilies SmilieReplacer) Option {
	return func(c *Converter) { c.smilies = smilies }
}

// WithEvents sets the calendar event handler.
func WithEvents(events EventHandler) Option {
	return func(c *Converter) { c.events = events }
}

// WithURLProxy sets the media URL proxy rewriter.
func WithURLProxy(proxy URLProxy) Option {
	return func(c *Converter) { c.proxy = proxy }
}

// WithLocationRenderer sets the map tag renderer.
func WithLocationRenderer(location LocationRenderer) Option {
	return func(c *Converter) { c.location = location }
}

// WithTranslator sets the localization lookup.
func WithTranslator(translator Translator) Option {
	return func(c *Converter) { c.translate = translator }
}

// WithHTMLToMarkdown sets the HTML to Markdown converter.
func WithHTMLToMarkdown(markdown HTMLToMarkdown) Option {
	return func(c *Converter) { c.markdown = markdown }
}

// WithCSSSanitizer sets the style/class value sanitizer.
func WithCSSSanitizer(css CSSSanitizer) Option {
	return func(c *Converter) { c.css = css }
}
