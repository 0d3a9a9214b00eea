package types

// Attachment is a structured summary of a link/photo/video/audio preview
// embedded in a post body. Only Type and Text are reliably set; consumers
// must tolerate absent fields.
type Attachment struct {
	Type             string          `json:"type,omitempty"`
	Text             string          `json:"text"`
	After            string          `json:"after,omitempty"`
	URL              string          `json:"url,omitempty"`
	Title            string          `json:"title,omitempty"`
	Image            string          `json:"image,omitempty"`
	Preview          string          `json:"preview,omitempty"`
	Description      string          `json:"description,omitempty"`
	Images           []AttachedImage `json:"images,omitempty"`
	ImageDescription string          `json:"image_description,omitempty"`
}

// Empty reports whether no attachment information was found at all.
func (a Attachment) Empty() bool {
	return a.Type == "" && a.URL == "" && a.Title == "" && a.Image == "" &&
		a.Preview == "" && a.Description == "" && len(a.Images) == 0
}

// AttachedImage is one locally hosted picture referenced by a post body.
type AttachedImage struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// ShareAttributes holds the attribute values of a [share] block.
type ShareAttributes struct {
	Author  string
	Profile string
	Avatar  string
	Link    string
	Posted  string
}

// Contact is a directory record for an author identity.
type Contact struct {
	Name  string
	Nick  string
	URL   string
	Addr  string
	Photo string
	Micro string
}

// SiteInfo is the metadata probed from a remote page.
type SiteInfo struct {
	Type   string      `json:"type"`
	URL    string      `json:"url"`
	Title  string      `json:"title,omitempty"`
	Text   string      `json:"text,omitempty"`
	Images []SiteImage `json:"images,omitempty"`
}

// SiteImage is one preview image advertised by a remote page.
type SiteImage struct {
	Src    string `json:"src"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ImageInfo is the probed geometry and mime type of a remote image.
type ImageInfo struct {
	Width  int
	Height int
	Mime   string
}

// EventDescriptor is a calendar event embedded in a post body through
// the event-* tag family.
type EventDescriptor struct {
	Summary     string
	Description string
	Start       string
	Finish      string
	Location    string
	AdjustTZ    bool
	NoFinish    bool
	ID          string
}

// Empty reports whether no event information was recognized.
func (e EventDescriptor) Empty() bool {
	return e.Summary == "" && e.Description == "" && e.Start == ""
}

// Cache is a simple external key-value store used to memoize expensive
// collaborator calls. Implementations must be safe for concurrent use;
// the conversion core does not own the store.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}
