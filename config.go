package bbcodify

// Config holds the read-only settings of a Converter.
type Config struct {
	// BaseURL is the absolute base URL of the local instance, without a
	// trailing slash. Links starting with it are rendered without
	// target="_blank", and search/display routes are built from it.
	// When empty, local-link detection is disabled.
	BaseURL string

	// VideoWidth and VideoHeight size native <video>/<iframe> embeds.
	VideoWidth  int
	VideoHeight int

	// AllowedLinkProtocols extends the href scheme allow-list
	// (//, http://, https:// and redir/ are always allowed).
	AllowedLinkProtocols []string

	// RemoveMultiplicatedLines enables the generic blank-line
	// deduplication pass around block-level tags.
	RemoveMultiplicatedLines bool

	// AlwaysShowPreview forces the attachment preview image even when the
	// body already shows the picture inline.
	AlwaysShowPreview bool

	// NoViewFullSize suppresses the "view full size" link below scaled
	// external images.
	NoViewFullSize bool

	// MaxImportSize truncates imported bodies (embedded data images are
	// never counted or split). Zero disables the limit.
	MaxImportSize int

	// ItemCache enables the final HTML well-formedness cleanup even for
	// oEmbed-enabled display conversions. The cleanup always runs when
	// oEmbed is disabled.
	ItemCache bool

	// IsLocalImage reports whether an image URL is hosted by the local
	// instance. Used by the attachment heuristics.
	IsLocalImage func(url string) bool
}

// defaultConfig returns the default converter configuration.
func defaultConfig() *Config {
	cfg := &Config{
		VideoWidth:  425,
		VideoHeight: 350,
	}
	cfg.IsLocalImage = func(url string) bool {
		return cfg.BaseURL != "" && containsFold(url, cfg.BaseURL)
	}
	return cfg
}
