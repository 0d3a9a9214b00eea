package bbcodify

// Format selects which downstream system's rendering conventions apply
// during a conversion. The numeric values are a wire contract shared with
// existing consumers and must not be renumbered.
type Format int

const (
	// FormatDisplay is the native display rendering.
	FormatDisplay Format = 0
	// FormatAPI is used for push notifications and API consumers.
	FormatAPI Format = 2
	// FormatDiaspora is used right before converting to Markdown for
	// Diaspora-compatible systems.
	FormatDiaspora Format = 3
	// FormatBlog is used for generic blog platform export. No avatar
	// decoration is produced.
	FormatBlog Format = 4
	// FormatReducedLinks is a reduced-link export variant.
	FormatReducedLinks Format = 5
	// FormatOStatus is used for OStatus-family federation.
	FormatOStatus Format = 7
	// FormatBacklink is used for backlink/plaintext-link export.
	FormatBacklink Format = 8
	// FormatActivityPub is used for ActivityPub federation.
	FormatActivityPub Format = 9
)

// is reports whether f is one of the given codes.
func (f Format) is(codes ...Format) bool {
	for _, c := range codes {
		if f == c {
			return true
		}
	}
	return false
}
